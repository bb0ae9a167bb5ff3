// Package monitor serves the HTTP status surface of a running pipeline:
// JSON status and events, trail charts and the sqlite admin routes.
package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/bevandicjuraj/CamCorder/internal/events"
	"github.com/bevandicjuraj/CamCorder/internal/httputil"
	"github.com/bevandicjuraj/CamCorder/internal/pipeline"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
	"github.com/bevandicjuraj/CamCorder/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

var statusTemplate = template.Must(template.ParseFS(statusHTML, "status.html"))

// StatusSource is the pipeline view the monitor reads. *pipeline.Runner
// satisfies it.
type StatusSource interface {
	Status() pipeline.Status
	Snapshot(camera int) (tracking.Snapshot, bool)
	Nodes(camera int) []tracking.Node
}

// EventLister lists recorded events. *events.Store satisfies it.
type EventLister interface {
	Recent(ctx context.Context, camera, limit int) ([]events.Event, error)
}

// AdminRoutes attaches debug routes to a mux. (*events.Store).AttachAdminRoutes
// has this shape.
type AdminRoutes func(mux *http.ServeMux) error

// WebServer handles the HTTP interface for monitoring the pipeline.
type WebServer struct {
	address string
	status  StatusSource
	events  EventLister
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Status  StatusSource
	Events  EventLister // optional
	Admin   AdminRoutes // optional
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address: config.Address,
		status:  config.Status,
		events:  config.Events,
	}
	mux := ws.setupRoutes()
	if config.Admin != nil {
		if err := config.Admin(mux); err != nil {
			return nil, fmt.Errorf("attach admin routes: %w", err)
		}
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /{$}", ws.handleStatusPage)
	mux.HandleFunc("GET /api/status", ws.handleStatus)
	mux.HandleFunc("GET /api/events", ws.handleEvents)
	mux.HandleFunc("GET /charts/trail", ws.handleTrailChart)
	mux.HandleFunc("GET /plots/trail.png", ws.handleTrailPlot)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (ws *WebServer) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, ws.status.Status()); err != nil {
		log.Printf("status page: %v", err)
	}
}
