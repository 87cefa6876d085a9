// Package grid implements the spatial puzzle world: corner and square
// positions, colored artifact/target items, and the batch action apply
// step with collision detection.
package grid

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Color is one of the fixed palette colors.
type Color string

// Palette is the fixed set of item colors.
var Palette = []Color{"blue", "red", "green", "purple", "orange"}

// ItemKind distinguishes movable artifacts from stationary targets.
type ItemKind int

const (
	KindArtifact ItemKind = iota
	KindTarget
)

// Item is a single colored tag occupying a position.
type Item struct {
	Kind  ItemKind
	Color Color
}

// Tag returns the textual form used at the oracle-prompt boundary,
// e.g. "artifact_blue" or "target_red".
func (it Item) Tag() string {
	if it.Kind == KindArtifact {
		return "artifact_" + string(it.Color)
	}
	return "target_" + string(it.Color)
}

// ParseItemTag parses "artifact_<color>" / "target_<color>" text.
func ParseItemTag(s string) (Item, bool) {
	kind, color, ok := strings.Cut(strings.TrimSpace(s), "_")
	if !ok || color == "" {
		return Item{}, false
	}
	switch kind {
	case "artifact":
		return Item{Kind: KindArtifact, Color: Color(color)}, true
	case "target":
		return Item{Kind: KindTarget, Color: Color(color)}, true
	}
	return Item{}, false
}

// PosKind distinguishes corner positions from agent squares.
type PosKind int

const (
	KindCorner PosKind = iota
	KindSquare
)

// Position identifies one cell of the world. For corners Row/Col are the
// integer coordinates; for squares they are the integer square indices
// (the real coordinates are Row+0.5, Col+0.5).
type Position struct {
	Kind PosKind
	Row  int
	Col  int
}

// CornerAt returns the corner position (i, j).
func CornerAt(i, j int) Position { return Position{Kind: KindCorner, Row: i, Col: j} }

// SquareAt returns the square position (i+0.5, j+0.5).
func SquareAt(i, j int) Position { return Position{Kind: KindSquare, Row: i, Col: j} }

// Key renders the position key, e.g. "1_0" for a corner and "0.5_1.5"
// for a square.
func (p Position) Key() string {
	if p.Kind == KindCorner {
		return fmt.Sprintf("%d_%d", p.Row, p.Col)
	}
	return fmt.Sprintf("%d.5_%d.5", p.Row, p.Col)
}

// Agent is the stateless view of the decision-maker bound to a square.
type Agent struct {
	Row int
	Col int
}

// ID returns the agent identifier used in plans and routing,
// e.g. "Agent[0.5, 0.5]".
func (a Agent) ID() string {
	return fmt.Sprintf("Agent[%d.5, %d.5]", a.Row, a.Col)
}

// Square returns the square position the agent owns.
func (a Agent) Square() Position { return SquareAt(a.Row, a.Col) }

// World owns the full position -> item-sequence mapping for one
// experiment iteration. It is never shared across iterations.
type World struct {
	Rows int
	Cols int

	cells map[Position][]Item
	rng   *rand.Rand
}

// New creates a world of the given dimensions and places items.
// For every palette color an artifact count and an independent target
// count are drawn uniformly in {1,2}. Each artifact goes to a uniformly
// random corner and is silently skipped if that corner is occupied;
// each target is appended to a uniformly random square.
// A seed <= 0 selects a time-based seed.
func New(rows, cols int, seed int64) *World {
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	w := Empty(rows, cols)
	w.rng = rand.New(rand.NewSource(seed))
	for _, color := range Palette {
		artifacts := 1 + w.rng.Intn(2)
		targets := 1 + w.rng.Intn(2)
		for a := 0; a < artifacts; a++ {
			corner := CornerAt(w.rng.Intn(rows+1), w.rng.Intn(cols+1))
			if len(w.cells[corner]) == 0 {
				w.cells[corner] = append(w.cells[corner], Item{Kind: KindArtifact, Color: color})
			}
		}
		for t := 0; t < targets; t++ {
			square := SquareAt(w.rng.Intn(rows), w.rng.Intn(cols))
			w.cells[square] = append(w.cells[square], Item{Kind: KindTarget, Color: color})
		}
	}
	return w
}

// Empty creates a world with every corner and square present and empty.
func Empty(rows, cols int) *World {
	cells := make(map[Position][]Item, (rows+1)*(cols+1)+rows*cols)
	for i := 0; i <= rows; i++ {
		for j := 0; j <= cols; j++ {
			cells[CornerAt(i, j)] = nil
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			cells[SquareAt(i, j)] = nil
		}
	}
	return &World{Rows: rows, Cols: cols, cells: cells}
}

// Place appends an item to a position. Used for seeding fixed scenarios.
func (w *World) Place(p Position, it Item) {
	w.cells[p] = append(w.cells[p], it)
}

// Items returns a copy of the item sequence at a position.
func (w *World) Items(p Position) []Item {
	items := w.cells[p]
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Agents lists all agents in row-major then column-major order.
func (w *World) Agents() []Agent {
	agents := make([]Agent, 0, w.Rows*w.Cols)
	for i := 0; i < w.Rows; i++ {
		for j := 0; j < w.Cols; j++ {
			agents = append(agents, Agent{Row: i, Col: j})
		}
	}
	return agents
}

// positions lists every position in a fixed deterministic order:
// corners row-major, then squares row-major. Scans that take the first
// match rely on this order.
func (w *World) positions() []Position {
	out := make([]Position, 0, len(w.cells))
	for i := 0; i <= w.Rows; i++ {
		for j := 0; j <= w.Cols; j++ {
			out = append(out, CornerAt(i, j))
		}
	}
	for i := 0; i < w.Rows; i++ {
		for j := 0; j < w.Cols; j++ {
			out = append(out, SquareAt(i, j))
		}
	}
	return out
}

// NumPositions returns the total number of position keys.
func (w *World) NumPositions() int { return len(w.cells) }

// TotalItems counts every item tag anywhere on the grid.
func (w *World) TotalItems() int {
	n := 0
	for _, items := range w.cells {
		n += len(items)
	}
	return n
}

// IsCompleted reports whether no item tag remains anywhere.
func (w *World) IsCompleted() bool { return w.TotalItems() == 0 }

// Solvable reports whether artifact and target counts balance for every
// color. Placement draws counts independently, so generated puzzles can
// be unsolvable; this is informational only and never alters behavior.
func (w *World) Solvable() bool {
	counts := make(map[Color]int)
	for _, items := range w.cells {
		for _, it := range items {
			if it.Kind == KindArtifact {
				counts[it.Color]++
			} else {
				counts[it.Color]--
			}
		}
	}
	for _, d := range counts {
		if d != 0 {
			return false
		}
	}
	return true
}

// Snapshot renders the whole grid as key -> tag list, sorted keys.
// Used for logging and for atomicity checks in tests.
func (w *World) Snapshot() map[string][]string {
	out := make(map[string][]string, len(w.cells))
	for p, items := range w.cells {
		tags := make([]string, len(items))
		for i, it := range items {
			tags[i] = it.Tag()
		}
		out[p.Key()] = tags
	}
	return out
}

// removeItem removes the first occurrence of it at p.
func (w *World) removeItem(p Position, it Item) bool {
	items := w.cells[p]
	for i := range items {
		if items[i] == it {
			w.cells[p] = append(items[:i:i], items[i+1:]...)
			return true
		}
	}
	return false
}

// sortedBatchKeys returns the batch's agent keys in a stable order so
// apply logs read deterministically.
func sortedBatchKeys(batch map[string]string) []string {
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
