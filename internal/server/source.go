package server

import (
	"errors"
	"sync/atomic"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
	"github.com/AhmedBakrXI/GeoMap/internal/session"
	"github.com/AhmedBakrXI/GeoMap/internal/window"
)

var ErrNoSession = errors.New("no active session")

// Session is the read side of a sync session.
type Session interface {
	State() session.State
	Points() []model.Record
	Window(b window.Bounds) []model.Record
}

// Source yields the session currently being served.
type Source interface {
	Current() Session
	Restarts() int
}

// Switch holds the active session. A restart swaps in a fresh session
// while handlers keep serving whichever one they loaded.
type Switch struct {
	current  atomic.Pointer[holder]
	restarts atomic.Int64
}

type holder struct {
	sess Session
}

// Static serves a single session.
func Static(sess Session) *Switch {
	sw := &Switch{}
	sw.current.Store(&holder{sess: sess})
	return sw
}

// Swap installs sess. Every swap after the first counts as a restart.
func (s *Switch) Swap(sess Session) {
	if prev := s.current.Swap(&holder{sess: sess}); prev != nil {
		s.restarts.Add(1)
	}
}

func (s *Switch) Current() Session {
	h := s.current.Load()
	if h == nil {
		return nil
	}
	return h.sess
}

func (s *Switch) Restarts() int {
	return int(s.restarts.Load())
}
