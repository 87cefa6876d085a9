package grid

import (
	"reflect"
	"testing"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"move(artifact_blue, target_blue)", Action{
			Artifact: Item{KindArtifact, "blue"},
			ToTarget: true,
			Target:   Item{KindTarget, "blue"},
		}, true},
		{"move(artifact_red, position[1, 0])", Action{
			Artifact: Item{KindArtifact, "red"},
			Corner:   CornerAt(1, 0),
		}, true},
		{"move(artifact_red, position[1.0, 0.0])", Action{
			Artifact: Item{KindArtifact, "red"},
			Corner:   CornerAt(1, 0),
		}, true},
		{"  move(artifact_green,position[2,2])  ", Action{
			Artifact: Item{KindArtifact, "green"},
			Corner:   CornerAt(2, 2),
		}, true},
		{"move(artifact_red, position[0.5, 0.5])", Action{}, false},
		{"move(target_red, position[1, 0])", Action{}, false},
		{"push(artifact_red, position[1, 0])", Action{}, false},
		{"move(artifact_red)", Action{}, false},
		{"", Action{}, false},
	}
	for _, c := range cases {
		got, err := ParseAction(c.in)
		if c.ok != (err == nil) {
			t.Errorf("ParseAction(%q) err = %v, want ok=%v", c.in, err, c.ok)
			continue
		}
		if c.ok && got != c.want {
			t.Errorf("ParseAction(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestAvailableActions(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(SquareAt(0, 0), Item{KindTarget, "blue"})

	actions := w.AvailableActions(0, 0)
	want := []string{
		"move(artifact_blue, position[0, 1])",
		"move(artifact_blue, position[1, 0])",
		"move(artifact_blue, position[1, 1])",
		"move(artifact_blue, target_blue)",
	}
	if !reflect.DeepEqual(actions, want) {
		t.Errorf("actions = %v, want %v", actions, want)
	}

	// The neighbouring agent shares corner (0,1)..(1,2): no artifact
	// on its corners, no actions.
	if got := w.AvailableActions(0, 1); got != nil {
		t.Errorf("agent (0,1) actions = %v, want none", got)
	}
}

func TestAvailableActionsSkipsMultiItemCorners(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(CornerAt(0, 0), Item{KindArtifact, "red"})
	if got := w.AvailableActions(0, 0); got != nil {
		t.Errorf("multi-item corner produced actions: %v", got)
	}
}

func TestApplyMatchRemovesBoth(t *testing.T) {
	// 2x2 grid, corner 0_0 holds artifact_blue, square 0.5_0.5 holds
	// target_blue; moving onto the target removes both.
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(SquareAt(0, 0), Item{KindTarget, "blue"})

	res := w.Apply(map[string]string{
		"Agent[0.5,0.5]": "move(artifact_blue, target_blue)",
	})
	if res.Collision {
		t.Fatal("unexpected collision")
	}
	if res.Applied != 1 || res.Matched != 1 {
		t.Errorf("applied=%d matched=%d, want 1/1", res.Applied, res.Matched)
	}
	if !w.IsCompleted() {
		t.Errorf("world not completed, snapshot: %v", w.Snapshot())
	}
}

func TestApplyCornerMove(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "red"})

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_red, position[1, 1])",
	})
	if res.Collision || res.Applied != 1 || res.Matched != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(w.Items(CornerAt(0, 0))) != 0 {
		t.Error("artifact still at source")
	}
	got := w.Items(CornerAt(1, 1))
	if len(got) != 1 || got[0] != (Item{KindArtifact, "red"}) {
		t.Errorf("destination holds %v", got)
	}
}

func TestApplySharedDestinationIsCollision(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(CornerAt(2, 2), Item{KindArtifact, "red"})
	before := w.Snapshot()

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_blue, position[1, 1])",
		"Agent[1.5, 1.5]": "move(artifact_red, position[1, 1])",
	})
	if !res.Collision {
		t.Fatal("shared destination not reported as collision")
	}
	if !reflect.DeepEqual(before, w.Snapshot()) {
		t.Error("grid mutated despite collision")
	}
}

func TestApplyOccupiedDestinationIsCollision(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(CornerAt(1, 1), Item{KindArtifact, "red"})
	before := w.Snapshot()

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_blue, position[1, 1])",
	})
	if !res.Collision {
		t.Fatal("occupied destination not reported as collision")
	}
	if !reflect.DeepEqual(before, w.Snapshot()) {
		t.Error("grid mutated despite collision")
	}
}

func TestApplyDropsBadActionsAndContinues(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(SquareAt(0, 0), Item{KindTarget, "blue"})

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_blue, target_blue)",
		"Agent[0.5, 1.5]": "gibberish",
		"Agent[1.5, 0.5]": "move(artifact_purple, target_purple)", // not on grid
		"Agent[1.5, 1.5]": "move(artifact_blue, position[9, 9])",  // blue already claimed above
	})
	if res.Collision {
		t.Fatal("unexpected collision")
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if len(res.Skipped) != 3 {
		t.Errorf("skipped = %v, want 3 entries", res.Skipped)
	}
	if !w.IsCompleted() {
		t.Error("matching move was not applied")
	}
}

func TestApplyDropsOffGridDestination(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "red"})

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_red, position[9, 9])",
	})
	if res.Collision || res.Applied != 0 || len(res.Skipped) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(w.Items(CornerAt(0, 0))) != 1 {
		t.Error("artifact moved despite off-grid destination")
	}
}

func TestApplyDuplicateArtifactClaimDropped(t *testing.T) {
	// One artifact_blue, two batch entries moving it to different
	// corners: the second entry has no unclaimed instance left and is
	// dropped, so the artifact cannot be duplicated.
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_blue, position[0, 1])",
		"Agent[0.5, 1.5]": "move(artifact_blue, position[1, 0])",
	})
	if res.Collision {
		t.Fatal("unexpected collision")
	}
	if res.Applied != 1 || len(res.Skipped) != 1 {
		t.Errorf("applied=%d skipped=%v, want 1 applied and 1 skipped", res.Applied, res.Skipped)
	}
	if w.TotalItems() != 1 {
		t.Errorf("total items = %d, want 1", w.TotalItems())
	}
	if len(w.Items(CornerAt(0, 1))) != 1 {
		t.Errorf("first claim did not win, snapshot: %v", w.Snapshot())
	}
	if len(w.Items(CornerAt(1, 0))) != 0 {
		t.Errorf("dropped entry still placed an artifact, snapshot: %v", w.Snapshot())
	}
}

func TestApplyIdenticalArtifactsMoveIndependently(t *testing.T) {
	// Two artifact_blue instances at different corners: each batch
	// entry claims its own instance in scan order.
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "blue"})
	w.Place(CornerAt(2, 2), Item{KindArtifact, "blue"})

	res := w.Apply(map[string]string{
		"Agent[0.5, 0.5]": "move(artifact_blue, position[0, 1])",
		"Agent[1.5, 1.5]": "move(artifact_blue, position[2, 1])",
	})
	if res.Collision || res.Applied != 2 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(w.Items(CornerAt(0, 1))) != 1 || len(w.Items(CornerAt(2, 1))) != 1 {
		t.Errorf("moves not applied, snapshot: %v", w.Snapshot())
	}
	if w.TotalItems() != 2 {
		t.Errorf("total items = %d, want 2", w.TotalItems())
	}
}

func TestApplyEmptyBatchIsNoOp(t *testing.T) {
	w := Empty(2, 2)
	w.Place(CornerAt(0, 0), Item{KindArtifact, "green"})
	before := w.Snapshot()
	res := w.Apply(map[string]string{})
	if res.Collision || res.Applied != 0 {
		t.Errorf("empty batch result %+v", res)
	}
	if !reflect.DeepEqual(before, w.Snapshot()) {
		t.Error("empty batch mutated grid")
	}
}
