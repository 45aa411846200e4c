// Package scheduler sends each subscriber one weather digest per local day.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ykvlv/weather-bot/internal/domain"
)

// SubscriberStore loads and persists subscriber records.
type SubscriberStore interface {
	FetchAll(ctx context.Context) ([]domain.Subscriber, error)
	Save(ctx context.Context, s domain.Subscriber) error
}

// ContentProvider builds the digest text for a location.
type ContentProvider interface {
	FetchContent(ctx context.Context, city string) (string, error)
}

// Notifier delivers a message to a chat.
type Notifier interface {
	Deliver(ctx context.Context, chatID int64, content string) error
}

// Options tune the sweep loop. Zero values fall back to defaults.
type Options struct {
	TickInterval time.Duration  // default 1m
	DefaultTZ    *time.Location // used when a subscriber's zone is invalid; default UTC
	Workers      int            // subscribers processed in parallel; default 4
	CallTimeout  time.Duration  // per collaborator call; default 30s
	Now          func() time.Time
}

const (
	defaultTick        = time.Minute
	defaultWorkers     = 4
	defaultCallTimeout = 30 * time.Second
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Total   int
	Due     int
	Sent    int
	Failed  int
	Skipped int
	// FetchErr is set when the subscriber list could not be loaded.
	FetchErr error
}

// Scheduler periodically sweeps all subscribers and dispatches due digests.
type Scheduler struct {
	store    SubscriberStore
	content  ContentProvider
	notifier Notifier
	log      *zap.Logger
	opts     Options

	running atomic.Bool
}

// New creates a Scheduler.
func New(store SubscriberStore, content ContentProvider, notifier Notifier, log *zap.Logger, opts Options) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTick
	}
	if opts.DefaultTZ == nil {
		opts.DefaultTZ = time.UTC
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:    store,
		content:  content,
		notifier: notifier,
		log:      log,
		opts:     opts,
	}
}

// Start runs the loop until ctx is canceled. Sweeps never overlap: the ticker
// is only read between sweeps, and ticks that fire during a long sweep are
// dropped. Start returns after the in-flight sweep has finished.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	s.log.Info("scheduler started",
		zap.Duration("interval", s.opts.TickInterval),
		zap.String("defaultTZ", s.opts.DefaultTZ.String()),
		zap.Int("workers", s.opts.Workers))

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// safeSweep keeps the loop alive if a sweep panics outside per-subscriber work.
func (s *Scheduler) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panicked", zap.Any("panic", r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep performs one pass over all subscribers.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	now := s.opts.Now().UTC()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	subs, err := s.store.FetchAll(fetchCtx)
	cancel()
	if err != nil {
		s.log.Error("fetch subscribers failed", zap.Error(err))
		recordSweep("fetch_error", time.Since(start))
		return SweepResult{FetchErr: err}
	}

	var (
		mu  sync.Mutex
		res = SweepResult{Total: len(subs)}
	)
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)

	for _, sub := range subs {
		g.Go(func() error {
			outcome, due := s.process(ctx, now, sub)
			mu.Lock()
			defer mu.Unlock()
			if due {
				res.Due++
			}
			switch outcome {
			case outcomeSent:
				res.Sent++
			case outcomeSkipped:
				res.Skipped++
			case "":
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	recordSweep("ok", time.Since(start))
	if res.Due > 0 {
		s.log.Info("sweep finished",
			zap.Int("total", res.Total),
			zap.Int("due", res.Due),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Duration("took", time.Since(start)))
	}
	return res
}

// process handles one subscriber. It returns the recorded outcome ("" when
// not due) and whether the subscriber was due.
func (s *Scheduler) process(ctx context.Context, now time.Time, sub domain.Subscriber) (outcome string, due bool) {
	log := s.log.With(zap.Int64("chatID", sub.ChatID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("subscriber processing panicked", zap.Any("panic", r))
			outcome = outcomePanic
			recordOutcome(outcome)
		}
	}()

	due, err := domain.IsDue(now, sub, s.opts.DefaultTZ)
	if err != nil {
		// Disabled subscribers are the normal case, not a misconfiguration.
		if sub.Enabled {
			log.Debug("subscriber skipped", zap.Error(err))
			recordOutcome(outcomeSkipped)
			return outcomeSkipped, false
		}
		return "", false
	}
	if !due {
		return "", false
	}
	if ctx.Err() != nil {
		return "", true
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	content, err := s.content.FetchContent(callCtx, sub.City)
	cancel()
	if err != nil {
		log.Warn("fetch content failed", zap.String("city", sub.City), zap.Error(err))
		recordOutcome(outcomeContentError)
		return outcomeContentError, true
	}

	callCtx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
	err = s.notifier.Deliver(callCtx, sub.ChatID, content)
	cancel()
	if err != nil {
		log.Warn("deliver failed", zap.Error(err))
		recordOutcome(outcomeDeliverError)
		return outcomeDeliverError, true
	}

	// The message is out; record it even if shutdown has begun.
	sub.MarkSent(now)
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CallTimeout)
	defer cancel()
	if err := s.store.Save(saveCtx, sub); err != nil {
		log.Error("save after delivery failed", zap.Error(err))
		recordOutcome(outcomeSaveError)
		return outcomeSaveError, true
	}

	log.Info("digest sent", zap.String("city", sub.City))
	recordOutcome(outcomeSent)
	return outcomeSent, true
}
