package services

import (
	"context"
	"time"

	"github.com/primeacre/apiserver/internal/mq"
	"github.com/primeacre/apiserver/internal/storage"
	"go.uber.org/zap"
)

// ImageReferences reports which image URLs are still in use.
type ImageReferences interface {
	ReferencedImages(ctx context.Context) ([]string, error)
}

// CleanupWorker deletes retired listing images. It consumes cleanup tasks
// and periodically reconciles storage against the listings table.
type CleanupWorker struct {
	objects ObjectStore
	refs    ImageReferences
	minAge  time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewCleanupWorker(objects ObjectStore, refs ImageReferences, minAge time.Duration, log *zap.Logger) *CleanupWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupWorker{
		objects: objects,
		refs:    refs,
		minAge:  minAge,
		log:     log,
		now:     time.Now,
	}
}

// HandleMessage deletes the objects named by a cleanup task. Malformed
// messages are dropped; a storage failure is returned so the broker
// redelivers the task.
func (w *CleanupWorker) HandleMessage(ctx context.Context, msg mq.Message) error {
	task, err := mq.DecodeCleanupTask(msg)
	if err != nil {
		w.log.Error("drop malformed cleanup task", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}

	for _, key := range task.Keys {
		if err := w.objects.Delete(ctx, key); err != nil {
			w.log.Warn("delete image failed",
				zap.String("message_id", msg.ID),
				zap.String("key", key),
				zap.Error(err),
			)
			return err
		}
	}
	w.log.Info("cleanup task done",
		zap.String("message_id", msg.ID),
		zap.Int("keys", len(task.Keys)),
		zap.String("reason", task.Reason),
	)
	return nil
}

// Reconcile deletes stored images that no listing references and that are
// older than the minimum age. The age guard protects uploads whose listing
// has not been written yet. It returns the number of deleted objects.
func (w *CleanupWorker) Reconcile(ctx context.Context) (int, error) {
	objects, err := w.objects.List(ctx, storage.ImagePrefix)
	if err != nil {
		return 0, err
	}
	referenced, err := w.refs.ReferencedImages(ctx)
	if err != nil {
		return 0, err
	}

	inUse := make(map[string]bool, len(referenced))
	for _, url := range referenced {
		if key, ok := w.objects.KeyFromURL(url); ok {
			inUse[key] = true
		}
	}

	cutoff := w.now().Add(-w.minAge)
	deleted := 0
	for _, object := range objects {
		if inUse[object.Key] || object.LastModified.After(cutoff) {
			continue
		}
		if err := w.objects.Delete(ctx, object.Key); err != nil {
			w.log.Warn("delete orphaned image failed", zap.String("key", object.Key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
