package httputil

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "bad camera %d", 7)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "bad camera 7" {
		t.Errorf("error = %s, want 'bad camera 7'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"frames": 12})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"frames":12}` {
		t.Errorf("body = %s", got)
	}
}

func TestWriteBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteBody(rec, "image/png", []byte("\x89PNG"))

	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %s, want image/png", ct)
	}
	if rec.Body.String() != "\x89PNG" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		required bool
		want     int
		wantErr  bool
	}{
		{"absent uses default", "", false, 50, false},
		{"absent required", "", true, 0, true},
		{"in range", "?limit=5", false, 5, false},
		{"upper bound", "?limit=1000", false, 1000, false},
		{"too large", "?limit=1001", false, 0, true},
		{"too small", "?limit=0", false, 0, true},
		{"not a number", "?limit=lots", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/api/events"+tt.query, nil)
			got, err := QueryInt(r, "limit", 50, 1, 1000, tt.required)
			if (err != nil) != tt.wantErr {
				t.Fatalf("QueryInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("QueryInt() = %d, want %d", got, tt.want)
			}
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/charts/trail", nil)
	if _, err := QueryInt(r, "camera", 0, 0, math.MaxInt, true); !errors.Is(err, ErrMissingParam) {
		t.Errorf("error = %v, want ErrMissingParam", err)
	}
}
