package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
	"github.com/AhmedBakrXI/GeoMap/internal/origintest"
)

func TestFetchPage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history" {
			t.Errorf("expected path /api/history, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "50", q.Get("page_size"))
		assert.Equal(t, "120", q.Get("before_id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.PageResult{
			Data:       []model.Record{{ID: 51}, {ID: 52}},
			Page:       2,
			PageSize:   50,
			Total:      120,
			TotalPages: 3,
			MaxID:      120,
		})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewHistoryClient(server.URL+"/api/", 0, 5*time.Second, logger)

	bound := int64(120)
	page, err := client.FetchPage(context.Background(), 2, 50, &bound)
	require.NoError(t, err)

	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(120), page.MaxID)
	require.Len(t, page.Data, 2)
	assert.Equal(t, int64(51), page.Data[0].ID)
}

func TestFetchPage_OmitsBeforeIDWithoutBound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("before_id") {
			t.Error("expected no before_id on an unbounded request")
		}
		_ = json.NewEncoder(w).Encode(model.PageResult{Page: 1, PageSize: 10})
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 0, 5*time.Second, zap.NewNop())
	_, err := client.FetchPage(context.Background(), 1, 10, nil)
	require.NoError(t, err)
}

func TestFetchPage_NonSuccessStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 0, 5*time.Second, zap.NewNop())
	_, err := client.FetchPage(context.Background(), 3, 100, nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrFetchFailed))
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 3, fetchErr.Page)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, "maintenance", fetchErr.Body)

	// Failures are surfaced, never retried here.
	assert.Equal(t, 1, attempts)
}

func TestFetchPage_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL, 0, 5*time.Second, zap.NewNop())
	_, err := client.FetchPage(context.Background(), 1, 10, nil)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 1, fetchErr.Page)
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFetchPage_InvalidArguments(t *testing.T) {
	client := NewHistoryClient("http://127.0.0.1:1", 0, time.Second, zap.NewNop())

	_, err := client.FetchPage(context.Background(), 0, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = client.FetchPage(context.Background(), 1, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewHistoryClient(server.URL, 0, 5*time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchPage(ctx, 1, 10, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchPage_AgainstOriginBoundsSnapshot(t *testing.T) {
	origin := origintest.New(nil)
	defer origin.Close()
	origin.AddRecords(30)

	client := NewHistoryClient(origin.BaseURL(), 0, 5*time.Second, zap.NewNop())

	first, err := client.FetchPage(context.Background(), 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), first.MaxID)
	assert.Equal(t, 3, first.TotalPages)

	// Records created after the boundary must not leak into bounded pages.
	origin.AddRecords(15)

	last, err := client.FetchPage(context.Background(), 3, 10, &first.MaxID)
	require.NoError(t, err)
	require.Len(t, last.Data, 10)
	assert.Equal(t, int64(30), last.Data[9].ID)
	assert.Equal(t, int64(30), last.MaxID)
}
