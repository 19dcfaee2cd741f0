// Package origintest provides an in-process fake of the measurement origin:
// a paginated history endpoint bounded by before_id and a websocket feed that
// broadcasts chunk envelopes. It is meant for tests and local demos.
package origintest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

// HistoryRequest records the query of one history call.
type HistoryRequest struct {
	Page     int
	PageSize int
	BeforeID *int64
}

// Origin is a fake measurement service.
type Origin struct {
	mu        sync.Mutex
	records   []model.Record
	nextID    int64
	requests  []HistoryRequest
	failPages map[int]int
	onHistory func(HistoryRequest)

	hub    *hub
	server *httptest.Server
	cancel context.CancelFunc
	logger *zap.Logger
}

// New starts a fake origin. Close it when done.
func New(logger *zap.Logger) *Origin {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Origin{
		nextID:    1,
		failPages: make(map[int]int),
		hub:       newHub(logger),
		cancel:    cancel,
		logger:    logger,
	}
	go o.hub.run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
		r.Method(http.MethodGet, "/history", gzhttp.GzipHandler(http.HandlerFunc(o.handleHistory)))
		r.Get("/ws/data", func(w http.ResponseWriter, r *http.Request) {
			o.hub.serveWS(ctx, w, r)
		})
	})

	o.server = httptest.NewServer(r)
	return o
}

// Close stops the server and drops every subscriber.
func (o *Origin) Close() {
	o.cancel()
	o.hub.dropAll()
	o.server.Close()
}

// BaseURL is the REST prefix, e.g. http://127.0.0.1:1234/api.
func (o *Origin) BaseURL() string {
	return o.server.URL + "/api"
}

// WSURL is the live feed endpoint.
func (o *Origin) WSURL() string {
	return "ws" + strings.TrimPrefix(o.server.URL, "http") + "/api/ws/data"
}

// AddRecords creates n records with increasing ids and one-second spaced
// timestamps, without broadcasting them.
func (o *Origin) AddRecords(n int) []model.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addLocked(n)
}

func (o *Origin) addLocked(n int) []model.Record {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	created := make([]model.Record, 0, n)
	for i := 0; i < n; i++ {
		id := o.nextID
		o.nextID++
		created = append(created, NewRecord(id, base.Add(time.Duration(id)*time.Second)))
	}
	o.records = append(o.records, created...)
	return created
}

// Publish creates n new records and broadcasts them as one chunk.
func (o *Origin) Publish(n int) []model.Record {
	o.mu.Lock()
	created := o.addLocked(n)
	o.mu.Unlock()

	o.Broadcast(created)
	return created
}

// Broadcast sends records to all subscribers as a chunk envelope.
func (o *Origin) Broadcast(records []model.Record) {
	payload, _ := json.Marshal(model.ChunkEnvelope{Type: model.ChunkType, Data: records})
	o.SendRaw(payload)
}

// SendRaw broadcasts an arbitrary payload, e.g. a malformed message.
func (o *Origin) SendRaw(payload []byte) {
	o.hub.broadcast <- payload
}

// Subscribers returns the number of registered live connections.
func (o *Origin) Subscribers() int {
	return o.hub.count()
}

// WaitForSubscribers blocks until at least n subscribers are registered.
func (o *Origin) WaitForSubscribers(ctx context.Context, n int) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.hub.count() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d subscribers: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// DropSubscribers closes every live connection abruptly.
func (o *Origin) DropSubscribers() {
	o.hub.dropAll()
}

// FailPage makes requests for page respond with status.
func (o *Origin) FailPage(page, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failPages[page] = status
}

// OnHistory registers a hook run before each history request is served.
// The hook runs without the origin lock held, so it may call AddRecords.
func (o *Origin) OnHistory(fn func(HistoryRequest)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onHistory = fn
}

// Requests returns the history requests served so far.
func (o *Origin) Requests() []HistoryRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryRequest, len(o.requests))
	copy(out, o.requests)
	return out
}

// MaxID returns the current highest record id.
func (o *Origin) MaxID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.nextID - 1
}

func (o *Origin) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid page"})
		return
	}
	pageSize, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || pageSize < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid page_size"})
		return
	}

	req := HistoryRequest{Page: page, PageSize: pageSize}
	if raw := q.Get("before_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid before_id"})
			return
		}
		req.BeforeID = &id
	}

	o.mu.Lock()
	o.requests = append(o.requests, req)
	hook := o.onHistory
	o.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if status, ok := o.failPages[page]; ok {
		writeJSON(w, status, map[string]string{"detail": "injected failure"})
		return
	}

	bound := o.nextID - 1
	if req.BeforeID != nil {
		bound = *req.BeforeID
	}

	var bounded []model.Record
	for _, rec := range o.records {
		if rec.ID <= bound {
			bounded = append(bounded, rec)
		}
	}

	total := len(bounded)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, model.PageResult{
		Data:       append([]model.Record{}, bounded[start:end]...),
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		MaxID:      bound,
	})
}

// NewRecord builds a fully populated record for id at t.
func NewRecord(id int64, t time.Time) model.Record {
	ts := t.UTC().Format("2006-01-02T15:04:05.000")
	eq := "EQ1"
	dir := "DL"
	mode := "NR"
	lat := 28.0 + float64(id)*0.0001
	lon := 34.4 + float64(id)*0.0001
	rsrp := -90.0 - float64(id%20)
	snr := 10.0 + float64(id%10)
	return model.Record{
		ID:                       id,
		EQ:                       &eq,
		Direction:                &dir,
		Time:                     &ts,
		Latitude:                 &lat,
		Longitude:                &lon,
		ServingCellSSBRSRP:       &rsrp,
		ServingCellSSBSNR:        &snr,
		MultiRATConnectivityMode: &mode,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
