package grid

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Action is a parsed move directive.
type Action struct {
	Artifact Item
	// ToTarget is true when the destination is the matching target tag
	// rather than an explicit corner.
	ToTarget bool
	Target   Item
	Corner   Position
}

var (
	actionRe   = regexp.MustCompile(`^move\(\s*(artifact_[a-z]+)\s*,\s*(.+?)\s*\)$`)
	positionRe = regexp.MustCompile(`^position\[\s*(-?[0-9.]+)\s*,\s*(-?[0-9.]+)\s*\]$`)
)

// ParseAction parses the fixed action-language grammar
// "move(artifact_<color>, position[<x>, <y>])" or
// "move(artifact_<color>, target_<color>)".
func ParseAction(s string) (Action, error) {
	m := actionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Action{}, fmt.Errorf("action %q does not match move grammar", s)
	}
	artifact, ok := ParseItemTag(m[1])
	if !ok || artifact.Kind != KindArtifact {
		return Action{}, fmt.Errorf("action %q: bad artifact tag", s)
	}
	dest := m[2]
	if strings.HasPrefix(dest, "target_") {
		target, ok := ParseItemTag(dest)
		if !ok {
			return Action{}, fmt.Errorf("action %q: bad target tag", s)
		}
		return Action{Artifact: artifact, ToTarget: true, Target: target}, nil
	}
	pm := positionRe.FindStringSubmatch(dest)
	if pm == nil {
		return Action{}, fmt.Errorf("action %q: bad destination %q", s, dest)
	}
	x, errX := strconv.ParseFloat(pm[1], 64)
	y, errY := strconv.ParseFloat(pm[2], 64)
	if errX != nil || errY != nil {
		return Action{}, fmt.Errorf("action %q: non-numeric destination", s)
	}
	if x != math.Trunc(x) || y != math.Trunc(y) {
		return Action{}, fmt.Errorf("action %q: destination is not a corner", s)
	}
	return Action{Artifact: artifact, Corner: CornerAt(int(x), int(y))}, nil
}

// AvailableActions enumerates the legal moves for the agent at square
// (row, col): for each of its four corners holding exactly one artifact,
// a move to each of the other three corners, plus a move onto the
// square's target when the colors match. Corners holding zero or more
// than one item produce nothing.
func (w *World) AvailableActions(row, col int) []string {
	corners := squareCorners(row, col)
	square := SquareAt(row, col)
	var actions []string
	for _, corner := range corners {
		items := w.cells[corner]
		if len(items) != 1 || items[0].Kind != KindArtifact {
			continue
		}
		artifact := items[0]
		for _, other := range corners {
			if other == corner {
				continue
			}
			actions = append(actions, fmt.Sprintf("move(%s, position[%d, %d])", artifact.Tag(), other.Row, other.Col))
		}
		for _, it := range w.cells[square] {
			if it.Kind == KindTarget && it.Color == artifact.Color {
				actions = append(actions, fmt.Sprintf("move(%s, target_%s)", artifact.Tag(), artifact.Color))
				break
			}
		}
	}
	return actions
}

// squareCorners returns the four corners of square (row, col) in a
// fixed order.
func squareCorners(row, col int) [4]Position {
	return [4]Position{
		CornerAt(row, col),
		CornerAt(row, col+1),
		CornerAt(row+1, col),
		CornerAt(row+1, col+1),
	}
}

// ApplyResult reports the outcome of one batch apply.
type ApplyResult struct {
	// Collision means the whole batch was rejected and the grid is
	// unchanged.
	Collision bool
	// Applied counts moves that mutated the grid.
	Applied int
	// Matched counts moves that annihilated an artifact/target pair.
	Matched int
	// Skipped lists agent keys whose action was dropped before the
	// collision check (parse failure or unresolved reference).
	Skipped []string
}

type resolvedMove struct {
	agent    string
	artifact Item
	src      Position
	dst      Position
}

// claimKey counts claimed item instances per position during batch
// resolution.
type claimKey struct {
	pos  Position
	item Item
}

// Apply parses, resolves, collision-checks and applies an action batch
// (agent id -> action string). Individual actions that fail to parse or
// resolve are dropped; the rest are checked as a batch before any
// mutation. On collision the grid is left bit-identical.
func (w *World) Apply(batch map[string]string) ApplyResult {
	var res ApplyResult
	var moves []resolvedMove
	claims := make(map[claimKey]int)
	for _, agent := range sortedBatchKeys(batch) {
		raw := batch[agent]
		action, err := ParseAction(raw)
		if err != nil {
			slog.Warn("dropping unparseable action", "agent", agent, "action", raw, "err", err)
			res.Skipped = append(res.Skipped, agent)
			continue
		}
		src, ok := w.findUnclaimed(action.Artifact, claims)
		if !ok {
			slog.Warn("dropping action: no unclaimed artifact on grid", "agent", agent, "artifact", action.Artifact.Tag())
			res.Skipped = append(res.Skipped, agent)
			continue
		}
		claims[claimKey{pos: src, item: action.Artifact}]++
		var dst Position
		if action.ToTarget {
			dst, ok = w.findItem(action.Target)
			if !ok {
				slog.Warn("dropping action: target not on grid", "agent", agent, "target", action.Target.Tag())
				res.Skipped = append(res.Skipped, agent)
				continue
			}
		} else {
			dst = action.Corner
			if _, exists := w.cells[dst]; !exists {
				slog.Warn("dropping action: destination outside grid", "agent", agent, "dest", dst.Key())
				res.Skipped = append(res.Skipped, agent)
				continue
			}
		}
		moves = append(moves, resolvedMove{
			agent:    agent,
			artifact: action.Artifact,
			src:      src,
			dst:      dst,
		})
	}

	// Collision check for the whole batch before any mutation.
	seen := make(map[Position]string, len(moves))
	for _, mv := range moves {
		if prev, dup := seen[mv.dst]; dup {
			slog.Info("collision: shared destination", "dest", mv.dst.Key(), "agents", prev+","+mv.agent)
			res.Collision = true
			return res
		}
		seen[mv.dst] = mv.agent
		matching := Item{Kind: KindTarget, Color: mv.artifact.Color}
		for _, it := range w.cells[mv.dst] {
			if it != matching {
				slog.Info("collision: destination occupied", "dest", mv.dst.Key(), "by", it.Tag(), "agent", mv.agent)
				res.Collision = true
				return res
			}
		}
	}

	for _, mv := range moves {
		w.removeItem(mv.src, mv.artifact)
		matching := Item{Kind: KindTarget, Color: mv.artifact.Color}
		if w.removeItem(mv.dst, matching) {
			res.Matched++
		} else {
			w.cells[mv.dst] = append(w.cells[mv.dst], mv.artifact)
		}
		res.Applied++
		slog.Debug("applied move", "agent", mv.agent, "artifact", mv.artifact.Tag(), "from", mv.src.Key(), "to", mv.dst.Key())
	}
	return res
}

// findItem scans all positions in the fixed order and returns the first
// position holding the item.
func (w *World) findItem(it Item) (Position, bool) {
	for _, p := range w.positions() {
		for _, held := range w.cells[p] {
			if held == it {
				return p, true
			}
		}
	}
	return Position{}, false
}

// findUnclaimed is findItem minus instances already claimed by earlier
// moves of the batch, so two batch entries can never move the same
// physical artifact.
func (w *World) findUnclaimed(it Item, claims map[claimKey]int) (Position, bool) {
	for _, p := range w.positions() {
		n := 0
		for _, held := range w.cells[p] {
			if held == it {
				n++
			}
		}
		if n > claims[claimKey{pos: p, item: it}] {
			return p, true
		}
	}
	return Position{}, false
}
