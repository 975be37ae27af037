package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"lesstraveled/pkg/version"
)

// NewServer creates and configures the HTTP server.
// Handlers that are nil are not routed. shutdown is invoked by POST /api/shutdown.
func NewServer(addr string, sess *SessionHandler, drives *DrivesHandler, cfg *ConfigHandler, hub *Hub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 2. Session control and ingestion
	if sess != nil {
		mux.HandleFunc("GET /api/session", sess.HandleStatus)
		mux.HandleFunc("POST /api/session/start", sess.HandleStart)
		mux.HandleFunc("POST /api/session/stop", sess.HandleStop)
		mux.HandleFunc("POST /api/samples", sess.HandleSamples)
		mux.HandleFunc("POST /api/authorization", sess.HandleAuthorization)
	}

	// 3. History views
	if drives != nil {
		mux.HandleFunc("GET /api/drives", drives.HandleGeoJSON)
		mux.HandleFunc("GET /api/drives/summary", drives.HandleSummary)
		mux.HandleFunc("GET /api/coverage", drives.HandleCoverage)
	}

	if cfg != nil {
		mux.HandleFunc("GET /api/config", cfg.HandleConfig)
	}

	// 4. Live feed
	if hub != nil {
		mux.HandleFunc("GET /api/stream", hub.HandleStream)
	}

	// 5. Shutdown Endpoint
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Call shutdown in a goroutine to allow response to flush
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if hub != nil {
		srv.RegisterOnShutdown(hub.Close)
	}
	return srv
}

// Listen opens the server's TCP listener, capped at maxConns concurrent
// connections when maxConns > 0.
func Listen(addr string, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
