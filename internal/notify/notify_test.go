package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/session"
)

type captured struct {
	path    string
	headers http.Header
	body    string
}

func ntfyServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{path: r.URL.Path, headers: r.Header.Clone(), body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestSendReady(t *testing.T) {
	server, requests := ntfyServer(t, http.StatusOK)
	client := NewClient(&Config{
		Enabled:  true,
		Server:   server.URL + "/",
		Topic:    "geomap",
		Priority: "default",
		Tags:     "world_map",
		Token:    "tk_123",
	}, zap.NewNop())

	st := session.State{SessionID: "s1", Phase: session.PhaseReady, Points: 250, Page: 3, TotalPages: 3, SnapshotMaxID: 250}
	require.NoError(t, client.SendReady(context.Background(), st, 1500*time.Millisecond))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/geomap", reqs[0].path)
	assert.Equal(t, "GeoMap ready: 250 points", reqs[0].headers.Get("Title"))
	assert.Equal(t, "world_map,white_check_mark", reqs[0].headers.Get("Tags"))
	assert.Equal(t, "Bearer tk_123", reqs[0].headers.Get("Authorization"))
	assert.Contains(t, reqs[0].body, "Points: 250")
	assert.Contains(t, reqs[0].body, "Duration: 1.5s")
}

func TestSendFailure(t *testing.T) {
	server, requests := ntfyServer(t, http.StatusOK)
	client := NewClient(&Config{Enabled: true, Server: server.URL, Topic: "geomap", Priority: "low", Tags: "world_map"}, nil)

	st := session.State{SessionID: "s1", Phase: session.PhaseError, Error: "Failed to load history data (page 2)", Page: 1, TotalPages: 3}
	require.NoError(t, client.SendFailure(context.Background(), st, 2, errors.New("boom")))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "high", reqs[0].headers.Get("Priority"))
	assert.Equal(t, "GeoMap sync failed: Failed to load history data (page 2)", reqs[0].headers.Get("Title"))
	assert.Contains(t, reqs[0].body, "Attempt: 2")
	assert.Contains(t, reqs[0].body, "Progress: page 1 of 3 (33%)")
	assert.Contains(t, reqs[0].body, "Error: boom")
}

func TestSend_NonSuccessStatus(t *testing.T) {
	server, _ := ntfyServer(t, http.StatusForbidden)
	client := NewClient(&Config{Enabled: true, Server: server.URL, Topic: "geomap", Priority: "default"}, zap.NewNop())

	err := client.SendReady(context.Background(), session.State{}, time.Second)
	assert.Error(t, err)
}

func TestDisabledSendsNothing(t *testing.T) {
	server, requests := ntfyServer(t, http.StatusOK)
	cfg := &Config{Enabled: false, Server: server.URL, Topic: "geomap"}

	n := New(cfg, zap.NewNop())
	_, isNoop := n.(*NoopNotifier)
	assert.True(t, isNoop)

	require.NoError(t, NewClient(cfg, nil).SendReady(context.Background(), session.State{}, 0))
	assert.Empty(t, requests())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Enabled: true, Priority: "default"}).Validate())
	assert.Error(t, (&Config{Enabled: true, Topic: "t", Priority: "loud"}).Validate())
	assert.NoError(t, (&Config{Enabled: true, Topic: "t", Priority: "urgent"}).Validate())
}
