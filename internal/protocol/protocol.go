// Package protocol implements the four coordination architectures.
// Each produces one action batch per simulation step from the current
// grid state and a sequence of oracle calls.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/grid"
	"github.com/collabgrid/collabgrid/internal/oracle"
	"github.com/collabgrid/collabgrid/internal/plan"
)

// MaxRounds bounds the per-step agent visiting loops of the
// hierarchical-initial and distributed architectures.
const MaxRounds = 3

// CallRecord describes one oracle call for observability.
type CallRecord struct {
	Role          string // "coordinator" or "local"
	Backend       string
	AgentID       string
	TokenEstimate int
	Duration      time.Duration
	Err           string
}

// CallObserver receives a record after every oracle call. Observers
// must not block; they run on the step's goroutine.
type CallObserver func(CallRecord)

// StepResult is the outcome of one protocol step.
type StepResult struct {
	Batch         plan.Plan
	TokenEstimate int
	Calls         int
	// Feedback is the concatenated dissent log of the
	// hierarchical-feedback architecture, for observability only.
	Feedback string
}

// Stepper runs protocol steps against a router. Calls within a step
// are strictly sequential in deterministic agent order.
type Stepper struct {
	Router  *oracle.Router
	Observe CallObserver
}

// Step produces the action batch for one simulation step under the
// given architecture. A coordinator oracle error aborts the step (and
// the caller's iteration); local oracle errors are swallowed into a
// fallback response.
func (s *Stepper) Step(ctx context.Context, architecture string, w *grid.World) (*StepResult, error) {
	switch architecture {
	case config.ArchCentralized:
		return s.centralized(ctx, w)
	case config.ArchHierarchicalInitial, config.ArchHierarchicalFeedback, config.ArchDistributed:
	default:
		return nil, fmt.Errorf("unknown architecture %q", architecture)
	}
	// The remaining architectures all route agents onto the pool.
	if s.Router.PoolSize() == 0 {
		return nil, fmt.Errorf("architecture %q requires local oracle backends, pool is empty", architecture)
	}
	switch architecture {
	case config.ArchHierarchicalInitial:
		return s.hierarchicalInitial(ctx, w)
	case config.ArchHierarchicalFeedback:
		return s.hierarchicalFeedback(ctx, w)
	default:
		return s.distributed(ctx, w)
	}
}

// centralized: one coordinator call; its extracted plan is the batch.
func (s *Stepper) centralized(ctx context.Context, w *grid.World) (*StepResult, error) {
	res := &StepResult{}
	resp, err := s.call(ctx, res, s.Router.Coordinator(), "coordinator", "", coordinatorPrompt(w))
	if err != nil {
		return nil, fmt.Errorf("coordinator oracle: %w", err)
	}
	res.Batch = plan.Extract(resp.Text)
	return res, nil
}

// hierarchicalInitial: the coordinator proposes, then agents refine over
// up to MaxRounds passes; the first completion marker wins immediately.
func (s *Stepper) hierarchicalInitial(ctx context.Context, w *grid.World) (*StepResult, error) {
	res := &StepResult{}
	resp, err := s.call(ctx, res, s.Router.Coordinator(), "coordinator", "", coordinatorPrompt(w))
	if err != nil {
		return nil, fmt.Errorf("coordinator oracle: %w", err)
	}
	initial := plan.Extract(resp.Text)

	agents := w.Agents()
	for round := 0; round < MaxRounds; round++ {
		for _, agent := range agents {
			backend := s.Router.Route(agent.ID())
			aResp, err := s.call(ctx, res, backend, "local", agent.ID(), localRefinePrompt(w, agent, initial))
			if err != nil {
				// Local failures fall back to silence and the loop
				// continues.
				slog.Warn("local oracle failed", "agent", agent.ID(), "backend", backend.Name(), "err", err)
				continue
			}
			if plan.HasCompletionMarker(aResp.Text) {
				res.Batch = plan.Extract(aResp.Text)
				return res, nil
			}
		}
	}
	// No agent signalled completion; the initial plan stands.
	res.Batch = initial
	return res, nil
}

// hierarchicalFeedback: the coordinator's plan is always executed;
// every agent is asked once and dissent is only recorded.
func (s *Stepper) hierarchicalFeedback(ctx context.Context, w *grid.World) (*StepResult, error) {
	res := &StepResult{}
	resp, err := s.call(ctx, res, s.Router.Coordinator(), "coordinator", "", coordinatorPrompt(w))
	if err != nil {
		return nil, fmt.Errorf("coordinator oracle: %w", err)
	}
	proposed := plan.Extract(resp.Text)

	var feedback strings.Builder
	for _, agent := range w.Agents() {
		backend := s.Router.Route(agent.ID())
		aResp, err := s.call(ctx, res, backend, "local", agent.ID(), localFeedbackPrompt(w, agent, proposed))
		if err != nil {
			// Agreement is assumed on failure so a dead backend cannot
			// stall the run.
			slog.Warn("local oracle failed, assuming agreement", "agent", agent.ID(), "backend", backend.Name(), "err", err)
			continue
		}
		if !plan.HasAgreement(aResp.Text) {
			fmt.Fprintf(&feedback, "%s: %s\n", agent.ID(), aResp.Text)
		}
	}
	res.Batch = proposed
	res.Feedback = feedback.String()
	return res, nil
}

// distributed: no coordinator. Agents extend a shared transcript for up
// to MaxRounds passes; the first completion marker wins, otherwise the
// step is a no-op.
func (s *Stepper) distributed(ctx context.Context, w *grid.World) (*StepResult, error) {
	res := &StepResult{}
	agents := w.Agents()
	var transcript strings.Builder
	for round := 0; round < MaxRounds; round++ {
		for _, agent := range agents {
			backend := s.Router.Route(agent.ID())
			aResp, err := s.call(ctx, res, backend, "local", agent.ID(), dialoguePrompt(w, agent, transcript.String()))
			text := ""
			if err != nil {
				slog.Warn("local oracle failed, appending empty turn", "agent", agent.ID(), "backend", backend.Name(), "err", err)
			} else {
				text = aResp.Text
			}
			fmt.Fprintf(&transcript, "%s (via %s): %s\n", agent.ID(), backend.Name(), text)
			if err == nil && plan.HasCompletionMarker(text) {
				res.Batch = plan.Extract(text)
				return res, nil
			}
		}
	}
	res.Batch = plan.Plan{}
	return res, nil
}

// call performs one oracle call with accounting and observation.
func (s *Stepper) call(ctx context.Context, res *StepResult, o oracle.Oracle, role, agentID, prompt string) (*oracle.Response, error) {
	start := time.Now()
	resp, err := o.Call(ctx, prompt)
	dur := time.Since(start)
	res.Calls++
	rec := CallRecord{Role: role, Backend: o.Name(), AgentID: agentID, Duration: dur}
	if err != nil {
		rec.Err = err.Error()
	} else {
		rec.TokenEstimate = resp.TokenEstimate
		res.TokenEstimate += resp.TokenEstimate
	}
	if s.Observe != nil {
		s.Observe(rec)
	}
	return resp, err
}

func sortedPlanKeys(p plan.Plan) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
