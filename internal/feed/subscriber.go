// Package feed subscribes to the live measurement stream over a websocket
// and delivers chunk batches in arrival order.
package feed

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

const (
	// Time allowed to write a control frame.
	writeWait = 5 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultMaxMessageBytes  = 4 << 20
)

// Config describes the live feed endpoint.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	// PongWait is how long the connection may stay silent to our pings before
	// it is considered stale. Pings go out every 9/10 of it.
	PongWait        time.Duration
	MaxMessageBytes int64
	Compression     bool
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	return c
}

// Subscriber opens subscriptions to one live feed URL.
type Subscriber struct {
	cfg    Config
	logger *zap.Logger
}

func NewSubscriber(cfg Config, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{cfg: cfg.withDefaults(), logger: logger}
}

// Subscribe dials the feed. A nil error means the connection is open and
// batches may start arriving on the returned subscription.
func (s *Subscriber) Subscribe(ctx context.Context) (*Subscription, error) {
	dialer := websocket.Dialer{
		Proxy:             websocket.DefaultDialer.Proxy,
		HandshakeTimeout:  s.cfg.HandshakeTimeout,
		EnableCompression: s.cfg.Compression,
	}

	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		cerr := &ConnectError{URL: s.cfg.URL, Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, cerr
	}

	sub := &Subscription{
		url:      s.cfg.URL,
		conn:     conn,
		pongWait: s.cfg.PongWait,
		logger:   s.logger,
		batches:  make(chan []model.Record),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(sub.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(sub.pongWait))
	})

	go sub.readLoop()
	go sub.pingLoop()

	s.logger.Info("live feed connected", zap.String("url", s.cfg.URL))
	return sub, nil
}

// Subscription is one open live feed connection.
type Subscription struct {
	url      string
	conn     *websocket.Conn
	pongWait time.Duration
	logger   *zap.Logger

	batches chan []model.Record
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64

	mu  sync.Mutex
	err error
}

// Batches delivers decoded batches in arrival order. It is never closed;
// select on Done to learn that the stream ended.
func (s *Subscription) Batches() <-chan []model.Record {
	return s.batches
}

// Done is closed once the read loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error after Done is closed: nil when the caller
// closed the subscription, a *ConnectError when the connection was lost.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped counts inbound messages discarded as undecodable.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops delivery and closes the connection. It is safe to call more
// than once; when it returns no further batch will be delivered.
func (s *Subscription) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			closeErr = err
		}
	})
	<-s.done
	return closeErr
}

// Run hands every batch to onBatch until the stream ends or ctx is cancelled.
// It returns the terminal error of the stream, or ctx.Err() after closing the
// subscription on cancellation.
func (s *Subscription) Run(ctx context.Context, onBatch func([]model.Record)) error {
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return ctx.Err()
		case batch := <-s.batches:
			onBatch(batch)
		case <-s.done:
			return s.Err()
		}
	}
}

func (s *Subscription) readLoop() {
	defer close(s.done)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.fail(err)
			}
			return
		}

		batch, err := Decode(payload)
		if err != nil {
			s.dropped.Add(1)
			s.logger.Debug("dropping live message", zap.Error(err), zap.Int("bytes", len(payload)))
			continue
		}

		select {
		case s.batches <- batch:
		case <-s.closing:
			return
		}
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = &ConnectError{URL: s.url, Err: err}
	s.mu.Unlock()
	_ = s.conn.Close()
	s.logger.Warn("live feed lost", zap.String("url", s.url), zap.Error(err))
}

// pingLoop keeps the connection alive; a missing pong lets the read deadline expire.
func (s *Subscription) pingLoop() {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("live feed ping failed", zap.Error(err))
			}
		}
	}
}
