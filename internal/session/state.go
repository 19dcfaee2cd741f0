package session

import (
	"math"
	"time"
)

// Phase is the externally visible sync status.
type Phase string

const (
	PhaseConnecting     Phase = "connecting"
	PhaseLoadingHistory Phase = "loading-history"
	PhaseReady          Phase = "ready"
	PhaseError          Phase = "error"
	PhaseClosed         Phase = "closed"
)

const (
	msgConnectFailed = "Failed to connect to live feed"
	msgFeedLost      = "Live feed connection lost"
	msgHistoryFailed = "Failed to load history data (page %d)"
)

// State is a point-in-time copy of a session's status.
type State struct {
	SessionID       string    `json:"session_id"`
	Phase           Phase     `json:"phase"`
	Page            int       `json:"page"`
	TotalPages      int       `json:"total_pages"`
	Error           string    `json:"error,omitempty"`
	Points          int       `json:"points"`
	LiveBatches     int       `json:"live_batches"`
	Duplicates      int       `json:"duplicates"`
	DroppedMessages int64     `json:"dropped_messages"`
	SnapshotMaxID   int64     `json:"snapshot_max_id,omitempty"`
	LatestTime      string    `json:"latest_time,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// Percent is the history loading progress, round(page/totalPages*100).
func (s State) Percent() int {
	if s.TotalPages <= 0 {
		return 0
	}
	return int(math.Round(float64(s.Page) / float64(s.TotalPages) * 100))
}

// Terminal reports whether the session has stopped synchronizing.
func (s State) Terminal() bool {
	return s.Phase == PhaseError || s.Phase == PhaseClosed
}
