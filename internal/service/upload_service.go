package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/skilltest-api/internal/observability"
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// StoredUpload describes a presentation file that passed validation.
type StoredUpload struct {
	Path      string
	FileName  string
	MimeType  string
	SizeBytes int64
	Checksum  string
}

// UploadService validates presentation files and hands them to storage.
type UploadService interface {
	StorePresentation(ctx context.Context, file *multipart.FileHeader) (StoredUpload, error)
}

// presentationMIMEs lists, per accepted extension, the detected types (or
// their ancestors) a file must match.
var presentationMIMEs = map[string][]string{
	".pdf":  {"application/pdf"},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
	".ppt":  {"application/vnd.ms-powerpoint", "application/x-ole-storage"},
	".key":  {"application/zip"},
}

type uploadService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
	now     func() time.Time
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &uploadService{
		storage: storage,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/skilltest-api/internal/service/upload"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *uploadService) StorePresentation(ctx context.Context, file *multipart.FileHeader) (StoredUpload, error) {
	ctx, span := s.tracer.Start(ctx, "upload.presentation")
	defer span.End()

	span.SetAttributes(attribute.Int64("upload.max_bytes", s.maxSize))

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		span.SetStatus(codes.Error, "validation failed")
		return StoredUpload{}, ErrEmptySubmission
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	ext := strings.ToLower(filepath.Ext(file.Filename))
	allowed, ok := presentationMIMEs[ext]
	if !ok {
		return StoredUpload{}, s.reject(span, "extension", ErrInvalidFileType)
	}

	if file.Size > s.maxSize {
		return StoredUpload{}, s.reject(span, "size", ErrFileTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return StoredUpload{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return StoredUpload{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return StoredUpload{}, s.reject(span, "size", ErrFileTooLarge)
	}
	if buf.Len() == 0 {
		return StoredUpload{}, s.reject(span, "empty", ErrEmptySubmission)
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if !matchesAny(detected, allowed) {
		return StoredUpload{}, s.reject(span, "type", ErrInvalidFileType)
	}

	if isZipFamily(detected) {
		if err := s.scanArchive(buf.Bytes()); err != nil {
			return StoredUpload{}, s.reject(span, "scan", err)
		}
	}

	checksum := sha256.Sum256(buf.Bytes())
	sanitizedName := s.sanitizeFileName(file.Filename)
	span.SetAttributes(
		attribute.String("upload.sanitized_name", sanitizedName),
		attribute.Int64("upload.size_bytes", int64(buf.Len())),
	)

	path, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return StoredUpload{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	s.logger.Info().
		Str("file_name", sanitizedName).
		Str("mime_type", detected.String()).
		Int("size_bytes", buf.Len()).
		Msg("presentation stored")

	return StoredUpload{
		Path:      path,
		FileName:  sanitizedName,
		MimeType:  detected.String(),
		SizeBytes: int64(buf.Len()),
		Checksum:  hex.EncodeToString(checksum[:]),
	}, nil
}

func (s *uploadService) reject(span trace.Span, reason string, err error) error {
	observability.UploadRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected: "+reason)
	return err
}

// scanArchive refuses zip containers that inflate far beyond the upload limit.
func (s *uploadService) scanArchive(payload []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return fmt.Errorf("%w: unreadable archive", ErrInvalidFileType)
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("%w: archive expands beyond limit", ErrFileTooLarge)
		}
	}
	return nil
}

func (s *uploadService) sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("presentation-%d", s.now().Unix())
	}
	return base + strings.ToLower(filepath.Ext(name))
}

func matchesAny(detected *mimetype.MIME, allowed []string) bool {
	for mime := detected; mime != nil; mime = mime.Parent() {
		for _, candidate := range allowed {
			if mime.Is(candidate) {
				return true
			}
		}
	}
	return false
}

func isZipFamily(detected *mimetype.MIME) bool {
	return matchesAny(detected, []string{"application/zip"})
}
