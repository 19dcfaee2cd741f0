package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// FieldError is one invalid configuration key.
type FieldError struct {
	Key     string
	Problem string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) add(key, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Key: key, Problem: fmt.Sprintf(format, args...)})
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Key, f.Problem))
	}
	return sb.String()
}

// Keys lists the offending keys in the order they were found.
func (e *ValidationErrors) Keys() []string {
	keys := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Validate reports every problem at once as a *ValidationErrors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateURL(errs, "origin.base_url", c.Origin.BaseURL, "http", "https")
	validateURL(errs, "origin.ws_url", c.Origin.WSURL, "ws", "wss")
	if c.Origin.TimeoutSec < 1 {
		errs.add("origin.timeout_sec", "must be >= 1, got %d", c.Origin.TimeoutSec)
	}
	if c.Origin.RatePerSecond < 0 {
		errs.add("origin.rate_per_second", "must be >= 0, got %d", c.Origin.RatePerSecond)
	}

	if c.History.PageSize < 1 {
		errs.add("history.page_size", "must be >= 1, got %d", c.History.PageSize)
	}

	if c.Feed.HandshakeTimeoutSec < 1 {
		errs.add("feed.handshake_timeout_sec", "must be >= 1, got %d", c.Feed.HandshakeTimeoutSec)
	}
	if c.Feed.PongWaitSec < 1 {
		errs.add("feed.pong_wait_sec", "must be >= 1, got %d", c.Feed.PongWaitSec)
	}
	if c.Feed.MaxMessageBytes < 1024 {
		errs.add("feed.max_message_bytes", "must be >= 1024, got %d", c.Feed.MaxMessageBytes)
	}

	if c.Session.RestartAttempts < 0 {
		errs.add("session.restart_attempts", "must be >= 0, got %d", c.Session.RestartAttempts)
	}
	if c.Session.RestartDelaySec < 0 {
		errs.add("session.restart_delay_sec", "must be >= 0, got %d", c.Session.RestartDelaySec)
	}

	if c.Server.Enabled {
		if c.Server.Addr == "" {
			errs.add("server.addr", "required when server.enabled=true")
		}
		if c.Server.EventIntervalMS < 10 {
			errs.add("server.event_interval_ms", "must be >= 10, got %d", c.Server.EventIntervalMS)
		}
	}

	if err := c.Notify.Validate(); err != nil {
		errs.add("notify", "%v", err)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs.add("logging.level", "%v", err)
	}
	if c.Logging.Enabled && c.Logging.Directory == "" {
		errs.add("logging.directory", "required when logging.enabled=true")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateURL(errs *ValidationErrors, key, raw string, schemes ...string) {
	if raw == "" {
		errs.add(key, "required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		errs.add(key, "%v", err)
		return
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return
		}
	}
	errs.add(key, "must be an absolute %s URL, got %q", strings.Join(schemes, "/"), raw)
}
