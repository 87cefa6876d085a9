package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/events"
	"github.com/collabgrid/collabgrid/internal/oracle"
	"github.com/collabgrid/collabgrid/internal/protocol"
	"github.com/collabgrid/collabgrid/internal/runner"
	"github.com/collabgrid/collabgrid/internal/trace"
)

// Run lifecycle states.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusCanceled = "canceled"
	StatusFailed   = "failed"
)

// maxRetainedRuns bounds how many runs the server keeps around. Each
// retained run holds an open trace store so /steps stays queryable
// after it finishes; beyond the bound the oldest finished runs are
// evicted and their stores closed.
const maxRetainedRuns = 32

// runState tracks one experiment run owned by the server.
type runState struct {
	ID           string
	Architecture string
	StartedAt    time.Time

	cancel context.CancelFunc
	store  *trace.Store

	mu      sync.RWMutex
	state   string
	summary *runner.Summary

	subMu sync.Mutex
	subs  map[*websocket.Conn]struct{}
}

// runStatus is the JSON shape returned for a run.
type runStatus struct {
	ID           string          `json:"id"`
	Architecture string          `json:"architecture"`
	Status       string          `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	Summary      *runner.Summary `json:"summary,omitempty"`
}

func (rs *runState) status() *runStatus {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return &runStatus{
		ID:           rs.ID,
		Architecture: rs.Architecture,
		Status:       rs.state,
		StartedAt:    rs.StartedAt,
		Summary:      rs.summary,
	}
}

func (rs *runState) setFinished(state string, summary *runner.Summary) {
	rs.mu.Lock()
	rs.state = state
	rs.summary = summary
	rs.mu.Unlock()
}

func (rs *runState) subscribe(conn *websocket.Conn) {
	rs.subMu.Lock()
	rs.subs[conn] = struct{}{}
	rs.subMu.Unlock()
}

func (rs *runState) unsubscribe(conn *websocket.Conn) {
	rs.subMu.Lock()
	delete(rs.subs, conn)
	rs.subMu.Unlock()
	conn.Close()
}

// broadcast fans one step event out to every websocket subscriber.
func (rs *runState) broadcast(ev events.StepEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	rs.subMu.Lock()
	defer rs.subMu.Unlock()
	for conn := range rs.subs {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(rs.subs, conn)
			conn.Close()
		}
	}
}

// startRun builds the oracle stack for the requested experiment and
// launches it on its own goroutine.
func (s *Server) startRun(exp config.ExperimentConfig) (*runState, error) {
	cfg := *s.cfg
	cfg.Experiment = exp
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storePath := cfg.Trace.Path
	if storePath == "" {
		storePath = filepath.Join(os.TempDir(), fmt.Sprintf("collabgrid-%s.db", id))
	}
	store, err := trace.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	if err := store.CreateRun(id, exp.Architecture, exp.Rows, exp.Cols, exp.Iterations); err != nil {
		store.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs := &runState{
		ID:           id,
		Architecture: exp.Architecture,
		StartedAt:    time.Now(),
		cancel:       cancel,
		store:        store,
		state:        StatusRunning,
		subs:         make(map[*websocket.Conn]struct{}),
	}

	s.mu.Lock()
	s.runs[id] = rs
	s.mu.Unlock()
	s.evictFinished()

	run := &runner.Runner{
		RunID:   id,
		Cfg:     exp,
		Stepper: &protocol.Stepper{Router: BuildRouter(&cfg)},
		Store:   store,
		OnStep: func(ev events.StepEvent) {
			rs.broadcast(ev)
			if s.publisher != nil {
				s.publisher.PublishStep(context.Background(), ev)
			}
		},
		OnIteration: func(ev events.IterationEvent) {
			if s.publisher != nil {
				s.publisher.PublishIteration(context.Background(), ev)
			}
		},
	}

	go func() {
		defer cancel()
		summary, err := run.Run(ctx)
		state := StatusFinished
		if err != nil {
			state = StatusCanceled
		}
		summaryJSON, _ := json.Marshal(summary)
		if err := store.FinishRun(id, state, string(summaryJSON)); err != nil {
			slog.Warn("finish run record failed", "run", id, "err", err)
		}
		rs.setFinished(state, summary)
		slog.Info("run finished", "run", id, "status", state, "successes", summary.Successes)
	}()

	return rs, nil
}

// evictFinished drops the oldest finished runs beyond the retention
// bound and closes their trace stores. Running runs are never evicted.
func (s *Server) evictFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.runs) > maxRetainedRuns {
		var oldest *runState
		for _, rs := range s.runs {
			rs.mu.RLock()
			running := rs.state == StatusRunning
			rs.mu.RUnlock()
			if running {
				continue
			}
			if oldest == nil || rs.StartedAt.Before(oldest.StartedAt) {
				oldest = rs
			}
		}
		if oldest == nil {
			return
		}
		delete(s.runs, oldest.ID)
		if err := oldest.store.Close(); err != nil {
			slog.Warn("close evicted trace store failed", "run", oldest.ID, "err", err)
		}
		slog.Info("evicted finished run", "run", oldest.ID)
	}
}

// Close cancels every run and releases their trace stores and the
// event publisher.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rs := range s.runs {
		rs.cancel()
		rs.store.Close()
		delete(s.runs, id)
	}
	if s.publisher != nil {
		return s.publisher.Close()
	}
	return nil
}

// BuildRouter constructs the oracle router from backend configuration.
func BuildRouter(cfg *config.Config) *oracle.Router {
	pool := make([]oracle.Oracle, 0, len(cfg.Pool))
	for _, b := range cfg.Pool {
		pool = append(pool, oracle.NewChatBackend(b))
	}
	return oracle.NewRouter(oracle.NewChatBackend(cfg.Coordinator), pool)
}
