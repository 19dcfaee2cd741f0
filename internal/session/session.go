// Package session runs one synchronization session: it opens the live feed,
// backfills the historical snapshot once the feed is open and merges both
// into a single point set.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AhmedBakrXI/GeoMap/internal/api"
	"github.com/AhmedBakrXI/GeoMap/internal/feed"
	"github.com/AhmedBakrXI/GeoMap/internal/merge"
	"github.com/AhmedBakrXI/GeoMap/internal/model"
	"github.com/AhmedBakrXI/GeoMap/internal/pager"
	"github.com/AhmedBakrXI/GeoMap/internal/window"
)

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrClosed         = errors.New("session closed")
)

// Subscriber opens the live feed.
type Subscriber interface {
	Subscribe(ctx context.Context) (*feed.Subscription, error)
}

type Config struct {
	PageSize int
	Dedupe   bool
}

// Option configures a Session.
type Option func(*Session)

// WithPhaseHook registers fn to be called with a state copy after every
// phase transition. fn runs on the session's goroutines and must not block.
func WithPhaseHook(fn func(State)) Option {
	return func(s *Session) {
		s.hooks = append(s.hooks, fn)
	}
}

type Session struct {
	cfg        Config
	subscriber Subscriber
	fetcher    api.PageFetcher
	store      *merge.Store
	logger     *zap.Logger
	hooks      []func(State)

	mu      sync.RWMutex
	state   State
	sub     *feed.Subscription
	cancel  context.CancelFunc
	started bool
	closed  bool
	runDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func New(cfg Config, subscriber Subscriber, fetcher api.PageFetcher, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}

	var storeOpts []merge.Option
	if cfg.Dedupe {
		storeOpts = append(storeOpts, merge.WithDedupe())
	}

	id := uuid.New().String()
	s := &Session{
		cfg:        cfg,
		subscriber: subscriber,
		fetcher:    fetcher,
		store:      merge.NewStore(storeOpts...),
		logger:     logger.With(zap.String("session", id)),
		runDone:    make(chan struct{}),
		state: State{
			SessionID: id,
			Phase:     PhaseConnecting,
			StartedAt: time.Now().UTC(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.state.SessionID
}

// Run subscribes to the live feed and, once it is open, backfills history
// while live batches are merged concurrently. It blocks until the session
// ends: nil after Close, ctx.Err() on cancellation, otherwise the connect or
// fetch failure that ended it.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.runDone)
	defer cancel()

	s.logger.Info("session starting")
	s.notify()

	sub, err := s.subscriber.Subscribe(ctx)
	if err != nil {
		if s.isClosed() {
			return nil
		}
		s.fail(msgConnectFailed, err)
		s.store.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	s.sub = sub
	if s.closed {
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.state.Phase = PhaseLoadingHistory
	s.mu.Unlock()
	s.notify()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pumpLive(gctx, sub) })
	g.Go(func() error { return s.backfill(gctx) })

	err = g.Wait()
	_ = sub.Close()
	s.store.Close()

	switch {
	case s.isClosed():
		return nil
	case err == nil:
		s.mu.Lock()
		s.state.Phase = PhaseClosed
		s.mu.Unlock()
		s.notify()
		return ctx.Err()
	}
	return err
}

func (s *Session) pumpLive(ctx context.Context, sub *feed.Subscription) error {
	err := sub.Run(ctx, func(batch []model.Record) {
		if s.store.AppendLive(batch) {
			s.logger.Debug("live batch merged", zap.Int("records", len(batch)))
		}
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case s.isClosed():
		return nil
	}
	s.fail(msgFeedLost, err)
	return fmt.Errorf("live feed: %w", err)
}

func (s *Session) backfill(ctx context.Context) error {
	p := pager.New(s.fetcher, s.cfg.PageSize, s.logger)

	result, err := p.Run(ctx, func(ev pager.PageEvent) {
		if !s.store.AppendHistorical(ev.Records) {
			return
		}
		s.mu.Lock()
		s.state.Page = ev.Page
		s.state.TotalPages = ev.TotalPages
		s.state.SnapshotMaxID = ev.SnapshotMaxID
		s.mu.Unlock()
	})
	if err != nil {
		var fetchErr *api.FetchError
		if errors.As(err, &fetchErr) && ctx.Err() == nil && !s.isClosed() {
			// Drop the partial backfill; nothing more is merged into this session.
			s.store.Close()
			s.store.Reset()
			s.fail(fmt.Sprintf(msgHistoryFailed, fetchErr.Page), err)
			return fmt.Errorf("backfill: %w", err)
		}
		// Cancelled: the cause is reported by whoever cancelled.
		return nil
	}

	s.mu.Lock()
	if s.state.Phase == PhaseLoadingHistory {
		s.state.Phase = PhaseReady
	}
	s.mu.Unlock()

	s.logger.Info("history loaded",
		zap.Int("pages", result.Pages),
		zap.Int("records", len(result.Records)),
		zap.Int64("max_id", result.SnapshotMaxID),
	)
	s.notify()
	return nil
}

// fail records the first terminal error; later ones are only logged.
func (s *Session) fail(msg string, err error) {
	s.mu.Lock()
	if s.state.Phase == PhaseError || s.state.Phase == PhaseClosed {
		s.mu.Unlock()
		s.logger.Debug("ignoring error after terminal phase", zap.Error(err))
		return
	}
	s.state.Phase = PhaseError
	s.state.Error = msg
	s.mu.Unlock()

	s.logger.Error(msg, zap.Error(err))
	s.notify()
}

// State returns a copy of the current status including point counts.
func (s *Session) State() State {
	s.mu.RLock()
	st := s.state
	sub := s.sub
	s.mu.RUnlock()

	stats := s.store.Stats()
	st.Points = stats.Points
	st.LiveBatches = stats.LiveBatches
	st.Duplicates = stats.Duplicates
	if latest, ok := s.store.LatestTime(); ok {
		st.LatestTime = latest
	}
	if sub != nil {
		st.DroppedMessages = sub.Dropped()
	}
	return st
}

// Points returns the whole point set in storage order.
func (s *Session) Points() []model.Record {
	return s.store.Snapshot()
}

// Window returns the time-ordered points selected by b.
func (s *Session) Window(b window.Bounds) []model.Record {
	return b.Apply(s.store.Snapshot())
}

// Close cancels any in-flight work, closes the live feed and the store and
// waits for Run to return. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.state.Phase = PhaseClosed
		cancel := s.cancel
		started := s.started
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-s.runDone
		}

		s.mu.RLock()
		sub := s.sub
		s.mu.RUnlock()
		if sub != nil {
			s.closeErr = multierr.Append(s.closeErr, sub.Close())
		}
		s.store.Close()

		s.logger.Info("session closed")
		s.notify()
	})
	return s.closeErr
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) notify() {
	if len(s.hooks) == 0 {
		return
	}
	st := s.State()
	for _, fn := range s.hooks {
		fn(st)
	}
}
