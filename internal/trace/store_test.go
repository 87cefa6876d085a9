package trace

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateRun("r1", "centralized", 2, 2, 10); err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	if err := s.FinishRun("r1", "finished", `{"successes": 8}`); err != nil {
		t.Fatalf("FinishRun() error: %v", err)
	}
	// Duplicate run ids violate the primary key.
	if err := s.CreateRun("r1", "centralized", 2, 2, 10); err == nil {
		t.Error("duplicate run id accepted")
	}
}

func TestStepsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateRun("r1", "distributed", 2, 2, 1); err != nil {
		t.Fatal(err)
	}

	recs := []StepRecord{
		{RunID: "r1", Iteration: 0, Step: 0, BatchJSON: "{}", ItemsLeft: 4},
		{RunID: "r1", Iteration: 0, Step: 1, BatchJSON: `{"Agent[0.5, 0.5]": "move(artifact_blue, target_blue)"}`, Completed: true, ItemsLeft: 0},
		{RunID: "r1", Iteration: 1, Step: 0, Collision: true, ItemsLeft: 3},
	}
	for i := range recs {
		if err := s.RecordStep(&recs[i]); err != nil {
			t.Fatalf("RecordStep(%d) error: %v", i, err)
		}
	}

	got, err := s.ListSteps("r1")
	if err != nil {
		t.Fatalf("ListSteps() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("steps = %d, want 3", len(got))
	}
	if got[1].Step != 1 || !got[1].Completed || got[1].ItemsLeft != 0 {
		t.Errorf("step[1] = %+v", got[1])
	}
	if !got[2].Collision || got[2].Iteration != 1 {
		t.Errorf("step[2] = %+v", got[2])
	}

	if other, err := s.ListSteps("unknown"); err != nil || len(other) != 0 {
		t.Errorf("ListSteps(unknown) = %v, %v", other, err)
	}
}

func TestCallsRecorded(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateRun("r1", "centralized", 2, 2, 1); err != nil {
		t.Fatal(err)
	}
	calls := []CallRecord{
		{RunID: "r1", Role: "coordinator", Backend: "coord", TokenEstimate: 120, DurationMs: 900},
		{RunID: "r1", Role: "local", Backend: "local-0", AgentID: "Agent[0.5, 0.5]", ErrorText: "timeout"},
	}
	for i := range calls {
		if err := s.RecordCall(&calls[i]); err != nil {
			t.Fatalf("RecordCall(%d) error: %v", i, err)
		}
	}
	n, err := s.CountCalls("r1")
	if err != nil || n != 2 {
		t.Errorf("CountCalls = %d, %v", n, err)
	}
}
