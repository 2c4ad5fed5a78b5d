package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/internal/mq"
	"github.com/primeacre/apiserver/internal/storage"
	"go.uber.org/zap"
)

// allowedImageExtensions lists the accepted upload formats.
var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ObjectStore is the object storage used for listing images.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	PublicURL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}

// CleanupPublisher enqueues durable image cleanup tasks.
type CleanupPublisher interface {
	PublishCleanup(ctx context.Context, channel string, task mq.CleanupTask) (string, error)
}

// Upload is one image file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MediaService stores uploaded listing images and retires the ones that are
// no longer referenced.
type MediaService struct {
	objects ObjectStore
	queue   CleanupPublisher
	channel string
	limits  config.UploadConfig
	log     *zap.Logger
}

// NewMediaService constructs a MediaService. queue may be nil, in which case
// superseded objects are deleted inline.
func NewMediaService(objects ObjectStore, queue CleanupPublisher, channel string, limits config.UploadConfig, log *zap.Logger) *MediaService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaService{
		objects: objects,
		queue:   queue,
		channel: channel,
		limits:  limits,
		log:     log,
	}
}

// Validate checks count, size and format of uploads without storing anything.
func (s *MediaService) Validate(uploads []Upload) error {
	if s.limits.MaxImages > 0 && len(uploads) > s.limits.MaxImages {
		return invalidInput("at most %d images may be uploaded", s.limits.MaxImages)
	}
	for _, upload := range uploads {
		ext := strings.ToLower(filepath.Ext(upload.Filename))
		if !allowedImageExtensions[ext] {
			return invalidInput("image %q must be jpg, jpeg, png or webp", upload.Filename)
		}
		if s.limits.MaxImageBytes > 0 && upload.Size > s.limits.MaxImageBytes {
			return invalidInput("image %q exceeds %d bytes", upload.Filename, s.limits.MaxImageBytes)
		}
	}
	return nil
}

// Upload stores every file and returns their public URLs in order. If any
// upload fails the ones already stored are removed again.
func (s *MediaService) Upload(ctx context.Context, uploads []Upload) ([]string, error) {
	if err := s.Validate(uploads); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(uploads))
	keys := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		ext := strings.ToLower(filepath.Ext(upload.Filename))
		key := storage.ImagePrefix + uuid.NewString() + ext
		contentType := upload.ContentType
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mime.TypeByExtension(ext)
		}

		if err := s.objects.Put(ctx, key, upload.Body, upload.Size, contentType); err != nil {
			s.deleteNow(context.WithoutCancel(ctx), keys)
			return nil, fmt.Errorf("%w: store image %q: %v", ErrExternalService, upload.Filename, err)
		}
		keys = append(keys, key)
		urls = append(urls, s.objects.PublicURL(key))
	}
	return urls, nil
}

// Discard retires the stored objects behind urls. URLs that were not
// produced by Upload are left alone. Failures are logged, never returned.
func (s *MediaService) Discard(ctx context.Context, urls []string, reason string) {
	keys := s.ownedKeys(urls)
	if len(keys) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if s.queue != nil {
		_, err := s.queue.PublishCleanup(ctx, s.channel, mq.CleanupTask{Keys: keys, Reason: reason})
		if err == nil {
			return
		}
		s.log.Warn("enqueue image cleanup failed, deleting inline",
			zap.Strings("keys", keys),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	s.deleteNow(ctx, keys)
}

func (s *MediaService) deleteNow(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.log.Warn("delete image failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Hosted reports whether url points at an image stored by Upload.
func (s *MediaService) Hosted(url string) bool {
	_, ok := s.imageKey(url)
	return ok
}

func (s *MediaService) imageKey(url string) (string, bool) {
	key, ok := s.objects.KeyFromURL(url)
	if !ok || !strings.HasPrefix(key, storage.ImagePrefix) {
		return "", false
	}
	return key, true
}

func (s *MediaService) ownedKeys(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	keys := make([]string, 0, len(urls))
	for _, url := range urls {
		key, ok := s.imageKey(url)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
