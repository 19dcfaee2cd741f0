package main

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/api"
	"github.com/AhmedBakrXI/GeoMap/internal/config"
	"github.com/AhmedBakrXI/GeoMap/internal/feed"
	"github.com/AhmedBakrXI/GeoMap/internal/session"
	"github.com/AhmedBakrXI/GeoMap/internal/window"
)

// maxRestartDelay caps the exponential backoff between session restarts.
const maxRestartDelay = 2 * time.Minute

func newHistoryClient(cfg *config.Config, logger *zap.Logger) *api.HistoryClient {
	return api.NewHistoryClient(cfg.Origin.BaseURL, cfg.Origin.RatePerSecond, cfg.Origin.Timeout(), logger)
}

func newSubscriber(cfg *config.Config, logger *zap.Logger) *feed.Subscriber {
	return feed.NewSubscriber(feed.Config{
		URL:              cfg.Origin.WSURL,
		HandshakeTimeout: time.Duration(cfg.Feed.HandshakeTimeoutSec) * time.Second,
		PongWait:         time.Duration(cfg.Feed.PongWaitSec) * time.Second,
		MaxMessageBytes:  cfg.Feed.MaxMessageBytes,
		Compression:      cfg.Feed.Compression,
	}, logger)
}

func newSession(cfg *config.Config, logger *zap.Logger, opts ...session.Option) *session.Session {
	return session.New(
		session.Config{PageSize: cfg.History.PageSize, Dedupe: cfg.Merge.DedupeByID},
		newSubscriber(cfg, logger),
		newHistoryClient(cfg, logger),
		logger,
		opts...,
	)
}

// parseBounds reads START and END percentages.
func parseBounds(args []string) (window.Bounds, error) {
	start, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return window.Bounds{}, fmt.Errorf("invalid START %q: %w", args[0], err)
	}
	end, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return window.Bounds{}, fmt.Errorf("invalid END %q: %w", args[1], err)
	}

	b := window.Bounds{Start: start, End: end}
	if err := b.Validate(); err != nil {
		return window.Bounds{}, err
	}
	return b, nil
}

// restartDelay doubles base for every attempt after the first, up to maxRestartDelay.
func restartDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(maxRestartDelay) {
		return maxRestartDelay
	}
	return time.Duration(d)
}
