package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrValidation = errors.New("validation error")

const (
	signedURLTTL = 5 * time.Minute

	maxImageSize = 10 << 20  // 10 MiB
	maxVideoSize = 100 << 20 // 100 MiB
)

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload is one evidence file attached to a complaint submission.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// Service stores complaint evidence and hands out short-lived read URLs.
type Service struct {
	storage ObjectStorage
	now     func() time.Time
}

func NewService(storage ObjectStorage) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

// StoreImages uploads every image and returns the object keys in input
// order. Any failure removes the objects already written so a rejected
// submission leaves no orphans.
func (s *Service) StoreImages(ctx context.Context, userID int64, uploads []Upload) ([]string, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.storage == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	keys := make([]string, 0, len(uploads))
	for _, up := range uploads {
		if up.Body == nil || up.Size <= 0 || up.Size > maxImageSize {
			s.cleanup(ctx, keys)
			return nil, ErrValidation
		}
		if !contentTypeAllowed("images", up.ContentType) {
			s.cleanup(ctx, keys)
			return nil, fmt.Errorf("%w: unsupported image content type %q", ErrValidation, up.ContentType)
		}

		key := buildObjectKey(userID, "images", up.FileName)
		if err := s.storage.PutObject(ctx, key, up.Body, up.Size, canonicalContentType(up.ContentType)); err != nil {
			s.cleanup(ctx, keys)
			return nil, fmt.Errorf("put image: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// StoreVideo uploads the optional video evidence and returns its object key.
func (s *Service) StoreVideo(ctx context.Context, userID int64, up Upload) (string, error) {
	if userID <= 0 || up.Body == nil || up.Size <= 0 || up.Size > maxVideoSize {
		return "", ErrValidation
	}
	if !contentTypeAllowed("videos", up.ContentType) {
		return "", fmt.Errorf("%w: unsupported video content type %q", ErrValidation, up.ContentType)
	}
	if s.storage == nil {
		return "", fmt.Errorf("object storage is not configured")
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	key := buildObjectKey(userID, "videos", up.FileName)
	if err := s.storage.PutObject(ctx, key, up.Body, up.Size, canonicalContentType(up.ContentType)); err != nil {
		return "", fmt.Errorf("put video: %w", err)
	}

	return key, nil
}

// PresignKeys resolves stored object keys to short-lived GET URLs.
func (s *Service) PresignKeys(ctx context.Context, keys []string) ([]string, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}

	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		url, err := s.storage.PresignGet(ctx, key, signedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("presign evidence url: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, nil
}

// Cleanup removes stored objects, used when a submission is rejected after
// evidence was already written.
func (s *Service) Cleanup(ctx context.Context, keys []string) {
	s.cleanup(ctx, keys)
}

func (s *Service) cleanup(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = s.storage.Delete(ctx, key)
	}
}

func buildObjectKey(userID int64, kind, fileName string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("users/%d/%s/%s%s", userID, kind, uuid.NewString(), ext)
}

func canonicalContentType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(contentType))
}
