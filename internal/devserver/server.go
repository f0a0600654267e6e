// Package devserver serves in-memory build results and pushes rebuild
// notifications to the browser over server-sent events.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/assets"
	httpmiddleware "github.com/wolfeidau/webbundle/internal/http"
)

// EventsPath is where browsers subscribe to rebuild notifications.
const EventsPath = "/events"

// ScriptsPath lists the ordered script URLs of an entry.
const ScriptsPath = "/scripts/"

// Results provides the latest successful build.
type Results interface {
	Current() *assets.Result
	LoadScripts(entry string) ([]string, string, error)
}

// EntryScripts is the response body of the scripts endpoint.
type EntryScripts struct {
	Entry   string   `json:"entry"`
	Scripts []string `json:"scripts"`
}

// ChangeEvent is the payload of a "change" event.
type ChangeEvent struct {
	ID      string   `json:"id"`
	Updated []string `json:"updated"`
}

// Server serves the outputs of a build pipeline.
type Server struct {
	results  Results
	prefix   string
	logger   zerolog.Logger
	hub      *hub
	mu       sync.Mutex
	previous map[string]string
	done     chan struct{}
	closer   sync.Once
}

// New creates a server for results. Assets are served below the URL path of
// publicPath, which may be an absolute URL.
func New(results Results, publicPath string, logger zerolog.Logger) (*Server, error) {
	u, err := url.Parse(publicPath)
	if err != nil {
		return nil, fmt.Errorf("invalid public path %q: %w", publicPath, err)
	}

	return &Server{
		results: results,
		prefix:  strings.TrimSuffix(u.Path, "/") + "/",
		logger:  logger,
		hub:     newHub(),
		done:    make(chan struct{}),
	}, nil
}

// Handler returns the HTTP handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+EventsPath, s.events)
	mux.HandleFunc("GET "+ScriptsPath+"{entry}", s.scripts)
	mux.HandleFunc("GET "+s.prefix, s.asset)
	mux.HandleFunc("GET /{$}", s.page)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})

	return httpmiddleware.RequestLogger(s.logger)(corsHandler.Handler(mux))
}

// Notify is called after every build. Successful builds broadcast the URLs
// of outputs whose content changed since the previous build.
func (s *Server) Notify(res *assets.Result, err error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("Rebuild failed")
		return
	}
	if res == nil {
		return
	}

	s.mu.Lock()
	previous := s.previous
	s.previous = res.Hashes()
	s.mu.Unlock()

	if previous == nil {
		return
	}

	var updated []string
	for _, asset := range res.Assets {
		if previous[asset.Name] != asset.Hash {
			updated = append(updated, asset.URL)
		}
	}

	if len(updated) == 0 {
		s.logger.Debug().Msg("Rebuild produced no changes")
		return
	}

	event := ChangeEvent{ID: uuid.NewString(), Updated: updated}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode change event")
		return
	}

	sent := s.hub.broadcast(message{id: event.ID, data: data})
	s.logger.Info().Str("event_id", event.ID).Int("updated", len(updated)).Int("clients", sent).Msg("Sent change event")
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// streams outlive the server write timeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to clear write deadline")
	}

	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case msg := <-ch:
			if _, err := fmt.Fprintf(w, "id: %s\nevent: change\ndata: %s\n\n", msg.id, msg.data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) scripts(w http.ResponseWriter, r *http.Request) {
	scripts, entry, err := s.results.LoadScripts(r.PathValue("entry"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(EntryScripts{Entry: entry, Scripts: scripts}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode scripts")
	}
}

func (s *Server) asset(w http.ResponseWriter, r *http.Request) {
	res := s.results.Current()
	if res == nil {
		http.Error(w, "build not ready", http.StatusServiceUnavailable)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, s.prefix)
	asset, ok := res.Lookup(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	serve(w, r, asset)
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	res := s.results.Current()
	if res == nil {
		http.Error(w, "build not ready", http.StatusServiceUnavailable)
		return
	}
	if res.HTML == nil {
		http.NotFound(w, r)
		return
	}

	serve(w, r, res.HTML)
}

func serve(w http.ResponseWriter, r *http.Request, asset *assets.Asset) {
	if ctype := mime.TypeByExtension(path.Ext(asset.Name)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", `"`+asset.Hash+`"`)

	http.ServeContent(w, r, asset.Name, time.Time{}, bytes.NewReader(asset.Contents))
}

// Close ends all open event streams.
func (s *Server) Close() {
	s.closer.Do(func() { close(s.done) })
}

// ListenAndServe serves on srv until ctx is cancelled, then shuts down.
// Event streams are closed first so shutdown does not wait on them.
func (s *Server) ListenAndServe(ctx context.Context, srv *http.Server) error {
	logger := s.logger
	srv.RegisterOnShutdown(s.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Dev server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("dev server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info().Msg("Shutting down dev server")
	return srv.Shutdown(shutdownCtx)
}
