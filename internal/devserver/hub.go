package devserver

import "sync"

// message is one server-sent event.
type message struct {
	id   string
	data []byte
}

// hub fans rebuild events out to connected event streams.
type hub struct {
	mu      sync.Mutex
	clients map[chan message]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan message]struct{})}
}

// subscribe registers a client and returns its channel and a function that
// removes it again.
func (h *hub) subscribe() (<-chan message, func()) {
	ch := make(chan message, 8)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

// broadcast never blocks; a client that is not keeping up misses the event.
func (h *hub) broadcast(msg message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for ch := range h.clients {
		select {
		case ch <- msg:
			sent++
		default:
		}
	}
	return sent
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
