// Package httputil holds the response and query helpers shared by the
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bevandicjuraj/CamCorder/internal/monitoring"
)

// ErrMissingParam is returned by QueryInt for an absent required parameter.
var ErrMissingParam = errors.New("missing query parameter")

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteError writes {"error": msg} with the given status code.
func WriteError(w http.ResponseWriter, status int, format string, args ...any) {
	WriteJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// WriteBody writes a pre-rendered body such as an HTML chart or a PNG.
func WriteBody(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(body); err != nil {
		monitoring.Debugf("write %s response: %v", contentType, err)
	}
}

// QueryInt parses the integer query parameter name, which must lie in
// [lo, hi]. An absent parameter yields def, or ErrMissingParam when
// required is set.
func QueryInt(r *http.Request, name string, def, lo, hi int, required bool) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		if required {
			return 0, fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, s)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", name, lo, hi, v)
	}
	return v, nil
}
