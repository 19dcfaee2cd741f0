package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
	"github.com/AhmedBakrXI/GeoMap/internal/session"
	"github.com/AhmedBakrXI/GeoMap/internal/window"
)

type handlers struct {
	src    Source
	logger *zap.Logger
}

// PointsResponse is the body of GET /api/points.
type PointsResponse struct {
	Count  int            `json:"count"`
	Start  float64        `json:"start"`
	End    float64        `json:"end"`
	First  string         `json:"first,omitempty"`
	Last   string         `json:"last,omitempty"`
	Points []model.Record `json:"points"`
}

// StatusResponse is the body of GET /api/status and of SSE events.
type StatusResponse struct {
	session.State
	Percent  int `json:"percent"`
	Restarts int `json:"restarts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	sess := h.src.Current()
	if sess == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ErrNoSession.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusOf(sess, h.src.Restarts()))
}

func (h *handlers) points(w http.ResponseWriter, r *http.Request) {
	sess := h.src.Current()
	if sess == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ErrNoSession.Error()})
		return
	}

	q := r.URL.Query()
	raw, err := parseBool(q.Get("raw"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "raw: " + err.Error()})
		return
	}
	located, err := parseBool(q.Get("located"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "located: " + err.Error()})
		return
	}

	b := window.Full
	if b.Start, err = parsePercent(q.Get("start"), window.Full.Start); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start: " + err.Error()})
		return
	}
	if b.End, err = parsePercent(q.Get("end"), window.Full.End); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end: " + err.Error()})
		return
	}
	if err := b.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var pts []model.Record
	if raw {
		pts = sess.Points()
	} else {
		pts = sess.Window(b)
	}

	resp := PointsResponse{Start: b.Start, End: b.End}
	if !raw {
		resp.First, resp.Last, _ = window.Range(pts)
	}
	if located {
		pts = onlyLocated(pts)
	}
	resp.Points = pts
	resp.Count = len(pts)

	writeJSON(w, http.StatusOK, resp)
}

func statusOf(sess Session, restarts int) StatusResponse {
	st := sess.State()
	return StatusResponse{State: st, Percent: st.Percent(), Restarts: restarts}
}

func onlyLocated(points []model.Record) []model.Record {
	out := make([]model.Record, 0, len(points))
	for _, p := range points {
		if p.HasLocation() {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parsePercent(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
