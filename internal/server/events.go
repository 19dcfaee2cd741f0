package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster pushes status snapshots to SSE subscribers at a fixed interval.
type Broadcaster struct {
	src      Source
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	sequence uint64
	clients  map[*sseClient]bool
}

type sseClient struct {
	id      string
	dataCh  chan []byte
	doneCh  chan struct{}
	flusher http.Flusher
	writer  http.ResponseWriter
}

func NewBroadcaster(src Source, interval time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		src:      src,
		interval: interval,
		logger:   logger,
		clients:  make(map[*sseClient]bool),
	}
}

// Run broadcasts until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Info("status broadcaster starting", zap.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("status broadcaster stopping")
			return
		case <-ticker.C:
			b.broadcastToAll()
		}
	}
}

// Clients returns the number of connected subscribers.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE streams a "snapshot" event on connect, then a "status" event per tick.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{
		id:      uuid.New().String(),
		dataCh:  make(chan []byte, 10),
		doneCh:  make(chan struct{}),
		flusher: flusher,
		writer:  w,
	}

	b.addClient(client)
	defer b.removeClient(client)

	b.logger.Debug("events client connected",
		zap.String("client_id", client.id),
		zap.String("remote_addr", r.RemoteAddr),
	)

	snapshot, err := b.event("snapshot")
	if err != nil {
		b.logger.Error("failed to build snapshot", zap.Error(err))
		return
	}
	if _, err := w.Write(snapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			b.logger.Debug("events client disconnected", zap.String("client_id", client.id))
			return
		case <-client.doneCh:
			return
		case data := <-client.dataCh:
			if _, err := client.writer.Write(data); err != nil {
				b.logger.Debug("failed to write to client", zap.Error(err))
				return
			}
			client.flusher.Flush()
		}
	}
}

func (b *Broadcaster) addClient(c *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = true
}

func (b *Broadcaster) removeClient(c *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
	close(c.doneCh)
}

func (b *Broadcaster) broadcastToAll() {
	b.mu.RLock()
	clients := make([]*sseClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := b.event("status")
	if err != nil {
		b.logger.Warn("failed to build status event", zap.Error(err))
		return
	}

	for _, c := range clients {
		select {
		case c.dataCh <- data:
		default:
			b.logger.Debug("client channel full, dropping status", zap.String("client_id", c.id))
		}
	}
}

func (b *Broadcaster) event(eventType string) ([]byte, error) {
	sess := b.src.Current()
	if sess == nil {
		return nil, ErrNoSession
	}

	payload, err := json.Marshal(statusOf(sess, b.src.Restarts()))
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.sequence++
	seq := b.sequence
	b.mu.Unlock()

	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, seq, payload)), nil
}
