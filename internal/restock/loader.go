package restock

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for gzipped manifests on the local file system.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based manifest loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "manifest-loader").Logger(),
	}
}

// Load reads a gzipped manifest file.
func (l *fileLoader) Load(ctx context.Context, path string) (*Manifest, error) {
	l.logger.Info().Str("file", path).Msg("loading restock manifest")

	file, err := os.Open(path)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to open restock manifest")
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer file.Close()

	m, err := readGzip(ctx, file, path)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to read restock manifest")
		return nil, err
	}

	l.logger.Info().
		Str("file", path).
		Int("lines", len(m.Lines)).
		Msg("restock manifest loaded")

	return m, nil
}

func readGzip(ctx context.Context, r io.Reader, source string) (*Manifest, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", source, err)
	}
	defer gz.Close()

	return Parse(ctx, gz, source)
}
