// Package worker runs the background side of image cleanup: it consumes
// cleanup tasks from the queue and reconciles storage on a cron schedule.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/primeacre/apiserver/internal/mq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Subscriber delivers queued messages to a handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Cleaner performs the actual image deletions.
type Cleaner interface {
	HandleMessage(ctx context.Context, msg mq.Message) error
	Reconcile(ctx context.Context) (int, error)
}

// Worker ties a Cleaner to the queue and the reconcile schedule.
type Worker struct {
	queue   Subscriber
	channel string
	cleaner Cleaner
	cron    *cron.Cron
	spec    string
	log     *zap.Logger

	mu      sync.Mutex
	running bool
}

// New constructs a Worker. queue may be nil, in which case only the
// scheduled reconcile runs. An empty spec disables the schedule.
func New(queue Subscriber, channel string, cleaner Cleaner, spec string, log *zap.Logger) *Worker {
	return &Worker{
		queue:   queue,
		channel: channel,
		cleaner: cleaner,
		cron:    cron.New(),
		spec:    spec,
		log:     log,
	}
}

// Run blocks until ctx is done or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.startSchedule(ctx); err != nil {
		return err
	}
	defer w.stopSchedule()

	if w.queue == nil {
		w.log.Info("no message queue configured, running reconcile only")
		<-ctx.Done()
		return nil
	}

	w.log.Info("consuming cleanup tasks", zap.String("channel", w.channel))
	err := w.queue.Subscribe(ctx, w.channel, w.cleaner.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return err
	}
	return nil
}

// ReconcileNow runs one reconcile pass immediately.
func (w *Worker) ReconcileNow(ctx context.Context) (int, error) {
	deleted, err := w.cleaner.Reconcile(ctx)
	if err != nil {
		w.log.Error("reconcile failed", zap.Error(err))
		return deleted, err
	}
	w.log.Info("reconcile done", zap.Int("deleted", deleted))
	return deleted, nil
}

func (w *Worker) startSchedule(ctx context.Context) error {
	if w.spec == "" {
		w.log.Info("reconcile schedule disabled")
		return nil
	}
	if _, err := w.cron.AddFunc(w.spec, func() {
		_, _ = w.ReconcileNow(ctx)
	}); err != nil {
		return err
	}

	w.cron.Start()
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	w.log.Info("reconcile scheduled", zap.String("spec", w.spec))
	return nil
}

// stopSchedule waits for a reconcile pass in progress to finish.
func (w *Worker) stopSchedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
}
