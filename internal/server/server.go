// Package server exposes the experiment surface over HTTP: submit a
// configuration, poll status, fetch the step trace, cancel by run id,
// and stream step events over a websocket.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/events"
)

// runRequestSchema validates experiment submissions before they are
// decoded. Structurally invalid configurations are rejected here, not
// mid-run.
const runRequestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["architecture", "rows", "cols", "iterations"],
	"properties": {
		"architecture": {
			"type": "string",
			"enum": ["centralized", "hierarchical-initial", "hierarchical-feedback", "distributed"]
		},
		"rows": {"type": "integer", "minimum": 1},
		"cols": {"type": "integer", "minimum": 1},
		"iterations": {"type": "integer", "minimum": 1},
		"seed": {"type": "integer"}
	},
	"additionalProperties": false
}`

var runRequestValidator = jsonschema.MustCompileString("run_request.json", runRequestSchema)

// Server owns the run registry and the HTTP handlers.
type Server struct {
	cfg       *config.Config
	publisher *events.Publisher
	upgrader  websocket.Upgrader

	mu   sync.RWMutex
	runs map[string]*runState
}

// New creates a server. The Kafka publisher is attached only when
// events are enabled in config.
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg:  cfg,
		runs: make(map[string]*runState),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if cfg.Events.Enabled && len(cfg.Events.Brokers) > 0 {
		s.publisher = events.NewPublisher(cfg.Events)
	}
	return s
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe blocks serving the configured address.
func (s *Server) ListenAndServe() error {
	slog.Info("experiment server listening", "addr", s.cfg.Server.Addr)
	return http.ListenAndServe(s.cfg.Server.Addr, s.Routes())
}

// handleRuns serves GET (list) and POST (create) on /api/runs.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		list := make([]*runStatus, 0, len(s.runs))
		for _, rs := range s.runs {
			list = append(list, rs.status())
		}
		s.mu.RUnlock()
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		s.createRun(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// createRun validates the request body against the embedded schema and
// starts the run.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := runRequestValidator.Validate(raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid experiment request: "+err.Error())
		return
	}

	data, _ := json.Marshal(raw)
	var exp config.ExperimentConfig
	if err := json.Unmarshal(data, &exp); err != nil {
		writeError(w, http.StatusBadRequest, "decode experiment request: "+err.Error())
		return
	}

	rs, err := s.startRun(exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, rs.status())
}

// handleRunByID routes /api/runs/{id}[/steps|/cancel|/stream].
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "run id required")
		return
	}

	s.mu.RLock()
	rs, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}
	switch {
	case sub == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, rs.status())
	case sub == "steps" && r.Method == http.MethodGet:
		steps, err := rs.store.ListSteps(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, steps)
	case sub == "cancel" && r.Method == http.MethodPost:
		// Takes effect at the next step boundary, never mid-call.
		rs.cancel()
		writeJSON(w, http.StatusOK, rs.status())
	case sub == "stream" && r.Method == http.MethodGet:
		s.streamRun(w, r, rs)
	default:
		writeError(w, http.StatusNotFound, "unknown run endpoint")
	}
}

// streamRun upgrades to a websocket and forwards step events until the
// client disconnects.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, rs *runState) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "run", rs.ID, "err", err)
		return
	}
	rs.subscribe(conn)
	// Reader loop only to detect close; events flow one way.
	go func() {
		defer rs.unsubscribe(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
