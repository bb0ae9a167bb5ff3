package monitor

import (
	"math"
	"net/http"

	"github.com/bevandicjuraj/CamCorder/internal/httputil"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ws.status.Status())
}

// handleEvents lists recent events, newest first.
// Query params:
//   - camera (optional; all cameras when omitted)
//   - limit (optional; default 50, max 1000)
func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if ws.events == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	camera, err := httputil.QueryInt(r, "camera", -1, 0, math.MaxInt32, false)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultEventLimit, 1, maxEventLimit, false)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}

	evs, err := ws.events.Recent(r.Context(), camera, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, evs)
}

// cameraParam parses the required camera query parameter and writes the
// error response when it is missing or has no tracker.
func (ws *WebServer) cameraParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	camera, err := httputil.QueryInt(r, "camera", 0, 0, math.MaxInt32, true)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "%v", err)
		return 0, false
	}
	if _, ok := ws.status.Snapshot(camera); !ok {
		httputil.WriteError(w, http.StatusNotFound, "no tracker for camera %d", camera)
		return 0, false
	}
	return camera, true
}

