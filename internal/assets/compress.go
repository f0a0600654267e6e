package assets

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// compressAll writes a gzip sibling next to every script, stylesheet and
// page, in parallel.
func compressAll(outdir string, files []Asset) error {
	var g errgroup.Group
	g.SetLimit(4)

	for _, asset := range files {
		if asset.Kind == KindFile {
			continue
		}

		g.Go(func() error {
			data, err := gzipBytes(asset.Contents)
			if err != nil {
				return fmt.Errorf("failed to compress %s: %w", asset.Name, err)
			}

			dest := filepath.Join(outdir, filepath.FromSlash(asset.Name)) + ".gz"
			if err := os.WriteFile(dest, data, 0o644); err != nil { //nolint:gosec
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}

			log.Debug().Str("file", dest).Int("size", len(data)).Int("original", len(asset.Contents)).Msg("Compressed file")
			return nil
		})
	}

	return g.Wait()
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
