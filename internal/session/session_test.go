package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/api"
	"github.com/AhmedBakrXI/GeoMap/internal/feed"
	"github.com/AhmedBakrXI/GeoMap/internal/model"
	"github.com/AhmedBakrXI/GeoMap/internal/origintest"
	"github.com/AhmedBakrXI/GeoMap/internal/window"
)

const waitFor = 5 * time.Second
const tick = 10 * time.Millisecond

func newSession(origin *origintest.Origin, dedupe bool, opts ...Option) *Session {
	logger := zap.NewNop()
	sub := feed.NewSubscriber(feed.Config{URL: origin.WSURL()}, logger)
	client := api.NewHistoryClient(origin.BaseURL(), 0, waitFor, logger)
	return New(Config{PageSize: 100, Dedupe: dedupe}, sub, client, logger, opts...)
}

func start(s *Session) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	return errCh
}

func waitPhase(t *testing.T, s *Session, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().Phase == phase }, waitFor, tick,
		"phase %s not reached, state: %+v", phase, s.State())
}

func result(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	return nil
}

func ids(recs []model.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestSession_BackfillThenLive(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(250)

	s := newSession(origin, true)
	errCh := start(s)

	waitPhase(t, s, PhaseReady)
	st := s.State()
	assert.Equal(t, 250, st.Points)
	assert.Equal(t, 3, st.Page)
	assert.Equal(t, 3, st.TotalPages)
	assert.Equal(t, 100, st.Percent())
	assert.Equal(t, int64(250), st.SnapshotMaxID)

	reqs := origin.Requests()
	require.Len(t, reqs, 3)
	assert.Nil(t, reqs[0].BeforeID)
	assert.Equal(t, int64(250), *reqs[2].BeforeID)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, origin.WaitForSubscribers(ctx, 1))
	origin.Publish(2)

	require.Eventually(t, func() bool { return s.State().Points == 252 }, waitFor, tick)
	points := s.Points()
	assert.Equal(t, []int64{251, 252}, ids(points[250:]))
	assert.Equal(t, 1, s.State().LiveBatches)

	last := points[251].TimeString()
	latest := s.State().LatestTime
	assert.Equal(t, last, latest)

	require.NoError(t, s.Close())
	assert.NoError(t, result(t, errCh))
	assert.Equal(t, PhaseClosed, s.State().Phase)
}

func TestSession_LiveDuringBackfill(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(250)

	// While page 2 is requested, five new records go live and record 250
	// is re-sent over the feed.
	origin.OnHistory(func(req origintest.HistoryRequest) {
		if req.Page != 2 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = origin.WaitForSubscribers(ctx, 1)
		origin.Publish(5)
		origin.Broadcast([]model.Record{origintest.NewRecord(250, time.Date(2025, 1, 1, 10, 4, 10, 0, time.UTC))})
	})

	s := newSession(origin, true)
	errCh := start(s)
	defer func() {
		_ = s.Close()
		<-errCh
	}()

	waitPhase(t, s, PhaseReady)
	require.Eventually(t, func() bool {
		st := s.State()
		return st.Points == 255 && st.Duplicates == 1
	}, waitFor, tick, "state: %+v", s.State())

	seen := make(map[int64]int)
	for _, rec := range s.Points() {
		seen[rec.ID]++
	}
	for id := int64(1); id <= 255; id++ {
		assert.Equal(t, 1, seen[id], "id %d", id)
	}

	// Backfilled pages stay bounded by the first page's snapshot.
	for _, req := range origin.Requests()[1:] {
		assert.Equal(t, int64(250), *req.BeforeID)
	}

	w := s.Window(window.Full)
	require.Len(t, w, 255)
	assert.Equal(t, int64(1), w[0].ID)
	assert.Equal(t, int64(255), w[254].ID)
}

func TestSession_FetchFailure(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(250)
	origin.FailPage(2, 500)

	s := newSession(origin, true)
	err := result(t, start(s))

	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrFetchFailed)

	st := s.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, "Failed to load history data (page 2)", st.Error)
	assert.Zero(t, st.Points, "partial backfill kept")
	assert.Empty(t, s.Window(window.Full))
	assert.Len(t, origin.Requests(), 2)

	require.NoError(t, s.Close())
}

func TestSession_ConnectFailure(t *testing.T) {
	logger := zap.NewNop()
	sub := feed.NewSubscriber(feed.Config{URL: "ws://127.0.0.1:1/api/ws/data", HandshakeTimeout: time.Second}, logger)
	client := api.NewHistoryClient("http://127.0.0.1:1/api", 0, time.Second, logger)
	s := New(Config{PageSize: 100}, sub, client, logger)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, feed.ErrConnectFailed)

	st := s.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, "Failed to connect to live feed", st.Error)
}

func TestSession_FeedLostAfterReady(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(30)

	s := newSession(origin, false)
	errCh := start(s)
	waitPhase(t, s, PhaseReady)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, origin.WaitForSubscribers(ctx, 1))
	origin.DropSubscribers()

	err := result(t, errCh)
	assert.ErrorIs(t, err, feed.ErrConnectFailed)

	st := s.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, "Live feed connection lost", st.Error)
	assert.Equal(t, 30, st.Points)
}

func TestSession_CloseAbandonsInFlightFetch(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(250)

	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	origin.OnHistory(func(req origintest.HistoryRequest) {
		if req.Page == 2 {
			entered <- struct{}{}
			<-release
		}
	})

	s := newSession(origin, true)
	errCh := start(s)

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("page 2 never requested")
	}

	require.NoError(t, s.Close())
	assert.NoError(t, result(t, errCh))

	st := s.State()
	assert.Equal(t, PhaseClosed, st.Phase)
	assert.Empty(t, st.Error)
	assert.Equal(t, 100, st.Points)
	assert.Equal(t, 33, st.Percent())
}

func TestSession_RunOnce(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()

	s := newSession(origin, false)
	errCh := start(s)
	waitPhase(t, s, PhaseReady)

	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoError(t, result(t, errCh))
	assert.ErrorIs(t, s.Run(context.Background()), ErrClosed)
}

func TestSession_ContextCancel(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(10)

	s := newSession(origin, false)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	waitPhase(t, s, PhaseReady)
	cancel()

	assert.ErrorIs(t, result(t, errCh), context.Canceled)
	assert.Equal(t, PhaseClosed, s.State().Phase)
	require.NoError(t, s.Close())
}

func TestSession_PhaseHook(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(5)

	var (
		mu     sync.Mutex
		phases []Phase
	)
	s := newSession(origin, false, WithPhaseHook(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, st.Phase)
	}))
	errCh := start(s)
	waitPhase(t, s, PhaseReady)
	require.NoError(t, s.Close())
	require.NoError(t, result(t, errCh))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseConnecting, PhaseLoadingHistory, PhaseReady, PhaseClosed}, phases)
}

func TestState_Percent(t *testing.T) {
	assert.Equal(t, 0, State{}.Percent())
	assert.Equal(t, 33, State{Page: 1, TotalPages: 3}.Percent())
	assert.Equal(t, 67, State{Page: 2, TotalPages: 3}.Percent())
	assert.Equal(t, 100, State{Page: 3, TotalPages: 3}.Percent())
}
