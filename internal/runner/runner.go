// Package runner drives experiment iterations to completion or failure
// and aggregates per-iteration metrics into summary statistics.
package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/events"
	"github.com/collabgrid/collabgrid/internal/grid"
	"github.com/collabgrid/collabgrid/internal/protocol"
	"github.com/collabgrid/collabgrid/internal/trace"
)

// Iteration failure reasons.
const (
	ReasonCollision  = "collision"
	ReasonStepBudget = "step_budget"
	ReasonOracle     = "oracle_error"
	ReasonCanceled   = "canceled"
)

// DefaultStepBudget bounds the steps of one iteration; large grids get
// LargeGridStepBudget instead.
const (
	DefaultStepBudget   = 30
	LargeGridStepBudget = 40
	largeGridSquares    = 32
)

// IterationResult holds the metrics of one iteration.
type IterationResult struct {
	Iteration     int           `json:"iteration"`
	Success       bool          `json:"success"`
	Reason        string        `json:"reason,omitempty"`
	Steps         int           `json:"steps"`
	Duration      time.Duration `json:"duration"`
	TokenEstimate int           `json:"token_estimate"`
	OracleCalls   int           `json:"oracle_calls"`
}

// Summary aggregates a whole experiment.
type Summary struct {
	RunID            string            `json:"run_id"`
	Architecture     string            `json:"architecture"`
	Iterations       int               `json:"iterations"`
	Successes        int               `json:"successes"`
	SuccessRate      float64           `json:"success_rate"`
	AvgDuration      time.Duration     `json:"avg_duration"`
	AvgTokenEstimate float64           `json:"avg_token_estimate"`
	TotalOracleCalls int               `json:"total_oracle_calls"`
	Results          []IterationResult `json:"results"`
}

// Runner executes one experiment. A fresh world is created per
// iteration and owned exclusively by it; iterations run strictly
// sequentially.
type Runner struct {
	RunID   string
	Cfg     config.ExperimentConfig
	Stepper *protocol.Stepper

	// Store, OnStep and OnIteration are optional observability hooks.
	Store       *trace.Store
	OnStep      func(events.StepEvent)
	OnIteration func(events.IterationEvent)

	// WorldFactory overrides random world generation, for fixed
	// scenarios. Nil means grid.New with the configured dimensions.
	WorldFactory func(iteration int) *grid.World
}

// StepBudget returns the iteration step budget for the configured grid.
func (r *Runner) StepBudget() int {
	if r.Cfg.Rows*r.Cfg.Cols >= largeGridSquares {
		return LargeGridStepBudget
	}
	return DefaultStepBudget
}

// Run executes all iterations. Per-iteration failures never abort the
// experiment; the returned error is non-nil only when the context was
// canceled before all iterations finished.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:        r.RunID,
		Architecture: r.Cfg.Architecture,
		Iterations:   r.Cfg.Iterations,
	}
	budget := r.StepBudget()
	canceled := false

	for iter := 0; iter < r.Cfg.Iterations; iter++ {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		res := r.runIteration(ctx, iter, budget)
		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Successes++
		}
		slog.Info("iteration finished",
			"run", r.RunID, "iteration", iter, "success", res.Success,
			"reason", res.Reason, "steps", res.Steps, "calls", res.OracleCalls)
		if r.OnIteration != nil {
			r.OnIteration(events.IterationEvent{
				RunID:     r.RunID,
				Iteration: iter,
				Success:   res.Success,
				Reason:    res.Reason,
				Timestamp: time.Now(),
			})
		}
		if res.Reason == ReasonCanceled {
			canceled = true
			break
		}
	}

	aggregate(summary)
	if canceled {
		return summary, ctx.Err()
	}
	return summary, nil
}

// runIteration plays one puzzle to success, failure or budget
// exhaustion.
func (r *Runner) runIteration(ctx context.Context, iter, budget int) IterationResult {
	res := IterationResult{Iteration: iter}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	var world *grid.World
	if r.WorldFactory != nil {
		world = r.WorldFactory(iter)
	} else {
		seed := int64(0)
		if r.Cfg.Seed > 0 {
			seed = r.Cfg.Seed + int64(iter)
		}
		world = grid.New(r.Cfg.Rows, r.Cfg.Cols, seed)
	}
	if !world.Solvable() {
		// Independent placement draws can produce unbalanced puzzles;
		// that is a known property of the generator, not an error.
		slog.Warn("generated puzzle has unbalanced artifact/target counts", "run", r.RunID, "iteration", iter)
	}

	for step := 0; step < budget; step++ {
		if ctx.Err() != nil {
			res.Reason = ReasonCanceled
			return res
		}
		r.observeCalls(iter, step)

		stepRes, err := r.Stepper.Step(ctx, r.Cfg.Architecture, world)
		if err != nil {
			slog.Warn("step aborted", "run", r.RunID, "iteration", iter, "step", step, "err", err)
			res.Reason = ReasonOracle
			return res
		}
		res.Steps++
		res.TokenEstimate += stepRes.TokenEstimate
		res.OracleCalls += stepRes.Calls

		applied := world.Apply(stepRes.Batch)
		completed := world.IsCompleted()
		r.recordStep(iter, step, stepRes, applied, world)
		if applied.Collision {
			res.Reason = ReasonCollision
			return res
		}
		if completed {
			res.Success = true
			return res
		}
	}
	res.Reason = ReasonStepBudget
	return res
}

// observeCalls points the stepper's call observer at the current
// iteration/step so trace rows carry their position in the run.
func (r *Runner) observeCalls(iter, step int) {
	if r.Store == nil {
		r.Stepper.Observe = nil
		return
	}
	r.Stepper.Observe = func(c protocol.CallRecord) {
		err := r.Store.RecordCall(&trace.CallRecord{
			RunID:         r.RunID,
			Iteration:     iter,
			Step:          step,
			Role:          c.Role,
			Backend:       c.Backend,
			AgentID:       c.AgentID,
			TokenEstimate: c.TokenEstimate,
			DurationMs:    c.Duration.Milliseconds(),
			ErrorText:     c.Err,
		})
		if err != nil {
			slog.Warn("trace call record failed", "err", err)
		}
	}
}

func (r *Runner) recordStep(iter, step int, stepRes *protocol.StepResult, applied grid.ApplyResult, world *grid.World) {
	ev := events.StepEvent{
		RunID:         r.RunID,
		Architecture:  r.Cfg.Architecture,
		Iteration:     iter,
		Step:          step,
		Collision:     applied.Collision,
		Completed:     world.IsCompleted(),
		ItemsLeft:     world.TotalItems(),
		TokenEstimate: stepRes.TokenEstimate,
		Timestamp:     time.Now(),
	}
	if r.OnStep != nil {
		r.OnStep(ev)
	}
	if r.Store != nil {
		batchJSON, _ := json.Marshal(stepRes.Batch)
		err := r.Store.RecordStep(&trace.StepRecord{
			RunID:     r.RunID,
			Iteration: iter,
			Step:      step,
			BatchJSON: string(batchJSON),
			Collision: applied.Collision,
			Completed: ev.Completed,
			ItemsLeft: ev.ItemsLeft,
			Feedback:  stepRes.Feedback,
		})
		if err != nil {
			slog.Warn("trace step record failed", "err", err)
		}
	}
}

// aggregate computes the summary statistics: success rate over
// iterations, arithmetic means of duration and token usage, and the
// total oracle call count.
func aggregate(s *Summary) {
	n := len(s.Results)
	if n == 0 {
		return
	}
	var totalDur time.Duration
	var totalTokens, totalCalls int
	for _, r := range s.Results {
		totalDur += r.Duration
		totalTokens += r.TokenEstimate
		totalCalls += r.OracleCalls
	}
	s.SuccessRate = float64(s.Successes) / float64(s.Iterations)
	s.AvgDuration = totalDur / time.Duration(n)
	s.AvgTokenEstimate = float64(totalTokens) / float64(n)
	s.TotalOracleCalls = totalCalls
}
