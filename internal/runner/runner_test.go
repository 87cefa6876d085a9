package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/events"
	"github.com/collabgrid/collabgrid/internal/grid"
	"github.com/collabgrid/collabgrid/internal/oracle"
	"github.com/collabgrid/collabgrid/internal/protocol"
)

type fakeOracle struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeOracle) Call(_ context.Context, prompt string) (*oracle.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &oracle.Response{Text: f.text, TokenEstimate: oracle.EstimateTokens(prompt, f.text)}, nil
}

func (f *fakeOracle) Name() string { return f.name }

func solvableWorld(int) *grid.World {
	w := grid.Empty(2, 2)
	w.Place(grid.CornerAt(0, 0), grid.Item{Kind: grid.KindArtifact, Color: "blue"})
	w.Place(grid.SquareAt(0, 0), grid.Item{Kind: grid.KindTarget, Color: "blue"})
	return w
}

func newRunner(coord oracle.Oracle, iterations int) *Runner {
	return &Runner{
		RunID: "test-run",
		Cfg: config.ExperimentConfig{
			Architecture: config.ArchCentralized,
			Rows:         2, Cols: 2,
			Iterations: iterations,
		},
		Stepper:      &protocol.Stepper{Router: oracle.NewRouter(coord, nil)},
		WorldFactory: solvableWorld,
	}
}

func TestRunSolvesInOneStep(t *testing.T) {
	coord := &fakeOracle{name: "coord", text: `{"Agent[0.5, 0.5]": "move(artifact_blue, target_blue)"}`}
	r := newRunner(coord, 3)

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Successes != 3 || summary.SuccessRate != 1.0 {
		t.Errorf("successes = %d, rate = %f", summary.Successes, summary.SuccessRate)
	}
	if summary.TotalOracleCalls != 3 {
		t.Errorf("total calls = %d, want 3", summary.TotalOracleCalls)
	}
	for _, res := range summary.Results {
		if res.Steps != 1 || !res.Success || res.Reason != "" {
			t.Errorf("iteration result %+v", res)
		}
		if res.TokenEstimate <= 0 {
			t.Errorf("iteration %d has no token usage", res.Iteration)
		}
	}
}

func TestRunCollisionFailsIteration(t *testing.T) {
	coord := &fakeOracle{name: "coord", text: `{"Agent[0.5, 0.5]": "move(artifact_blue, position[1, 1])", "Agent[1.5, 1.5]": "move(artifact_red, position[1, 1])"}`}
	r := newRunner(coord, 1)
	r.WorldFactory = func(int) *grid.World {
		w := solvableWorld(0)
		w.Place(grid.CornerAt(2, 2), grid.Item{Kind: grid.KindArtifact, Color: "red"})
		return w
	}

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	res := summary.Results[0]
	if res.Success || res.Reason != ReasonCollision {
		t.Errorf("result %+v, want collision failure", res)
	}
	if summary.Successes != 0 {
		t.Errorf("successes = %d", summary.Successes)
	}
}

func TestRunOracleErrorFailsIterationOnly(t *testing.T) {
	coord := &fakeOracle{name: "coord", err: errors.New("unreachable")}
	r := newRunner(coord, 2)

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("per-iteration failures must not abort the run: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want 2 (runner continued)", len(summary.Results))
	}
	for _, res := range summary.Results {
		if res.Success || res.Reason != ReasonOracle {
			t.Errorf("result %+v", res)
		}
	}
}

func TestRunStepBudgetExhaustion(t *testing.T) {
	coord := &fakeOracle{name: "coord", text: "no plan from me"}
	r := newRunner(coord, 1)

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	res := summary.Results[0]
	if res.Success || res.Reason != ReasonStepBudget {
		t.Errorf("result %+v, want step budget failure", res)
	}
	if res.Steps != DefaultStepBudget {
		t.Errorf("steps = %d, want %d", res.Steps, DefaultStepBudget)
	}
}

func TestStepBudgetForLargeGrid(t *testing.T) {
	r := &Runner{Cfg: config.ExperimentConfig{Rows: 4, Cols: 8}}
	if got := r.StepBudget(); got != LargeGridStepBudget {
		t.Errorf("4x8 budget = %d, want %d", got, LargeGridStepBudget)
	}
	r = &Runner{Cfg: config.ExperimentConfig{Rows: 4, Cols: 4}}
	if got := r.StepBudget(); got != DefaultStepBudget {
		t.Errorf("4x4 budget = %d, want %d", got, DefaultStepBudget)
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coord := &fakeOracle{name: "coord", text: "{}"}
	r := newRunner(coord, 5)
	summary, err := r.Run(ctx)
	if err == nil {
		t.Fatal("canceled run returned no error")
	}
	if len(summary.Results) != 0 {
		t.Errorf("canceled-before-start run produced %d results", len(summary.Results))
	}
}

func TestRunEmitsStepAndIterationEvents(t *testing.T) {
	coord := &fakeOracle{name: "coord", text: `{"Agent[0.5, 0.5]": "move(artifact_blue, target_blue)"}`}
	r := newRunner(coord, 1)

	var steps []events.StepEvent
	var iters []events.IterationEvent
	r.OnStep = func(ev events.StepEvent) { steps = append(steps, ev) }
	r.OnIteration = func(ev events.IterationEvent) { iters = append(iters, ev) }

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(steps) != 1 || !steps[0].Completed || steps[0].ItemsLeft != 0 {
		t.Errorf("step events = %+v", steps)
	}
	if len(iters) != 1 || !iters[0].Success {
		t.Errorf("iteration events = %+v", iters)
	}
}
