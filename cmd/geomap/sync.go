package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/notify"
	"github.com/AhmedBakrXI/GeoMap/internal/server"
	"github.com/AhmedBakrXI/GeoMap/internal/session"
)

func syncCmd() *cobra.Command {
	var noServer bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync session and serve the merged point set",
		Long: `Subscribe to the live feed, backfill the bounded history snapshot and keep
the merged point set up to date until interrupted.

The point set and sync status are served over HTTP (server.addr):
  GET /api/points?start=0&end=100   time-ordered window
  GET /api/points?raw=true          storage order
  GET /api/status                   phase, progress and counts
  GET /api/events                   status as server-sent events

A failed session is restarted session.restart_attempts times with
exponential backoff starting at session.restart_delay_sec.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sw := &server.Switch{}
			var wg sync.WaitGroup
			defer wg.Wait()

			if cfg.Server.Enabled && !noServer {
				stop := startServer(ctx, sw, &wg)
				defer stop()
			}

			notifier := notify.New(&cfg.Notify, logger)
			return runSessions(ctx, sw, notifier, &wg)
		},
	}

	cmd.Flags().BoolVar(&noServer, "no-server", false, "do not start the HTTP server")

	return cmd
}

func startServer(ctx context.Context, sw *server.Switch, wg *sync.WaitGroup) func() {
	events := server.NewBroadcaster(sw, cfg.Server.EventInterval(), logger)
	router := server.NewRouter(sw, events, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eventsCtx, stopEvents := context.WithCancel(ctx)
	wg.Add(2)
	go func() {
		defer wg.Done()
		events.Run(eventsCtx)
	}()
	go func() {
		defer wg.Done()
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	return func() {
		stopEvents()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}
}

// runSessions runs sessions until one ends cleanly, ctx is cancelled or the
// restart budget is spent.
func runSessions(ctx context.Context, sw *server.Switch, notifier notify.Notifier, wg *sync.WaitGroup) error {
	for attempt := 1; ; attempt++ {
		started := time.Now()
		sess := newSession(cfg, logger, session.WithPhaseHook(func(st session.State) {
			if st.Phase != session.PhaseReady {
				return
			}
			logger.Info("sync ready",
				zap.String("session", st.SessionID),
				zap.Int("points", st.Points),
				zap.Duration("elapsed", time.Since(started)),
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := notifier.SendReady(ctx, st, time.Since(started)); err != nil {
					logger.Warn("ready notification failed", zap.Error(err))
				}
			}()
		}))
		sw.Swap(sess)

		err := sess.Run(ctx)
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("closing session", zap.Error(cerr))
		}
		if err == nil || errors.Is(err, context.Canceled) {
			logger.Info("sync stopped", zap.String("session", sess.ID()))
			return nil
		}

		st := sess.State()
		if nerr := notifier.SendFailure(ctx, st, attempt, err); nerr != nil {
			logger.Warn("failure notification failed", zap.Error(nerr))
		}

		if attempt > cfg.Session.RestartAttempts {
			return fmt.Errorf("sync failed after %d attempt(s): %w", attempt, err)
		}

		delay := restartDelay(cfg.Session.RestartDelay(), attempt)
		logger.Warn("restarting sync session",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
