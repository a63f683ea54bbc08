package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Local writes files below a directory and serves them under a URL prefix.
// It is used when no Cloudinary credentials are configured.
type Local struct {
	dir       string
	urlPrefix string
	logger    zerolog.Logger
}

// NewLocal ensures dir exists and returns a Local store.
func NewLocal(dir, urlPrefix string, logger zerolog.Logger) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}

	return &Local{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		logger:    logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// Upload copies reader to a uniquely named file and returns its public path.
func (l *Local) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName := uuid.NewString() + "-" + filepath.Base(name)
	target := filepath.Join(l.dir, fileName)

	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(target)
		if copyErr != nil {
			return "", fmt.Errorf("write upload file: %w", copyErr)
		}
		return "", fmt.Errorf("close upload file: %w", closeErr)
	}

	l.logger.Info().Str("file", fileName).Int64("bytes", written).Msg("presentation stored on disk")

	return l.urlPrefix + "/" + fileName, nil
}
