package trajectory

import (
	"math"
	"sort"

	"github.com/volgate/volgate/internal/domain"
	"github.com/volgate/volgate/internal/surface"
)

// slopeWeight scales the destination slope contribution in the transition cost.
const slopeWeight = 0.5

// Config bounds optional repeated path sampling. The ceiling is a sample
// count, never wall-clock time, so results stay deterministic.
type Config struct {
	MaxSamples int `yaml:"max_samples" json:"max_samples"`
}

// DefaultConfig returns the sampling defaults.
func DefaultConfig() Config {
	return Config{MaxSamples: 16}
}

// Validate checks the sampling bounds.
func (c Config) Validate() error {
	if c.MaxSamples <= 0 {
		return domain.NewInputError("trajectory.max_samples", "sample ceiling %d must be > 0", c.MaxSamples)
	}
	return nil
}

// PathResult is the ephemeral outcome of one route search, recomputed per call.
type PathResult struct {
	Found  bool           `json:"found"`
	Cost   float64        `json:"cost"`
	Coords []domain.Coord `json:"coords"`
	Layers int            `json:"layers"`
}

// neighborOffsets lists the 8 next-layer moves in fixed lexicographic order.
// Staying in place is disallowed; the fixed order gives deterministic
// tie-breaking during relaxation.
var neighborOffsets = [8]domain.Coord{
	{X: -1, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1},
	{X: 0, Y: -1}, {X: 0, Y: 1},
	{X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
}

// Evaluator finds the lowest-penalty route across chained layers using
// shortest-path relaxation: per (coordinate, layer) only the lowest cumulative
// cost survives. This is BFS-with-relaxation rather than priority-ordered
// Dijkstra; each step advances exactly one layer, so every node is settled
// once per layer and a priority queue would not change the result.
type Evaluator struct {
	cfg Config
}

// NewEvaluator builds a path evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultConfig().MaxSamples
	}
	return &Evaluator{cfg: cfg}
}

type node struct {
	cost    float64
	heading float64 // angle of the move that reached this node
	hasHead bool
	path    []domain.Coord
}

// FindPath searches the ordered layers from start on the first layer toward
// target, succeeding when a final-layer node lies within Chebyshev distance 1
// of the target. Accumulated cost is the entry tile penalty plus, per step,
// the destination penalty and the transition cost
// |Δangle|·curvature + liquidity_penalty + 0.5·slope of the destination tile.
// An absent route returns Found=false, not an error.
func (e *Evaluator) FindPath(layers []surface.Surface, start, target domain.Coord) (*PathResult, error) {
	if len(layers) == 0 {
		return nil, domain.NewInputError("trajectory.layers", "at least one layer required")
	}
	entryTile, err := layers[0].TileAt(start)
	if err != nil {
		return nil, err
	}

	frontier := map[domain.Coord]*node{
		start: {cost: entryTile.Penalty, path: []domain.Coord{start}},
	}

	for li := 1; li < len(layers); li++ {
		next := make(map[domain.Coord]*node)
		for _, from := range sortedCoords(frontier) {
			cur := frontier[from]
			for _, off := range neighborOffsets {
				dest := domain.Coord{X: from.X + off.X, Y: from.Y + off.Y}
				if !layers[li].Contains(dest) {
					continue
				}
				tile, err := layers[li].TileAt(dest)
				if err != nil {
					return nil, err
				}
				heading := math.Atan2(float64(off.Y), float64(off.X))
				turn := 0.0
				if cur.hasHead {
					turn = math.Abs(angleDiff(heading, cur.heading))
				}
				cost := cur.cost + tile.Penalty +
					turn*tile.Curvature + tile.LiquidityPenalty + slopeWeight*tile.Slope
				if best, ok := next[dest]; ok && best.cost <= cost {
					continue
				}
				path := make([]domain.Coord, len(cur.path), len(cur.path)+1)
				copy(path, cur.path)
				next[dest] = &node{cost: cost, heading: heading, hasHead: true, path: append(path, dest)}
			}
		}
		if len(next) == 0 {
			return &PathResult{Found: false, Layers: len(layers)}, nil
		}
		frontier = next
	}

	var best *node
	for _, c := range sortedCoords(frontier) {
		if c.Chebyshev(target) > 1 {
			continue
		}
		if n := frontier[c]; best == nil || n.cost < best.cost {
			best = n
		}
	}
	if best == nil {
		return &PathResult{Found: false, Layers: len(layers)}, nil
	}
	return &PathResult{Found: true, Cost: best.cost, Coords: best.path, Layers: len(layers)}, nil
}

// SampleCosts evaluates routes to target zones of growing Chebyshev radius
// around the nominal target and returns the accumulated costs of the admissible
// ones, capped at the configured sample ceiling. The penalty set feeds the
// distribution-based normalizer strategies.
func (e *Evaluator) SampleCosts(layers []surface.Surface, start, target domain.Coord) ([]float64, error) {
	costs := make([]float64, 0, e.cfg.MaxSamples)
	for radius := 0; len(costs) < e.cfg.MaxSamples; radius++ {
		ring := ringCoords(target, radius)
		if radius > 0 && len(ring) == 0 {
			break
		}
		anyInRange := false
		for _, tc := range ring {
			if len(costs) >= e.cfg.MaxSamples {
				break
			}
			if !layers[len(layers)-1].Contains(tc) {
				continue
			}
			anyInRange = true
			res, err := e.FindPath(layers, start, tc)
			if err != nil {
				return nil, err
			}
			if res.Found {
				costs = append(costs, res.Cost)
			}
		}
		if radius > 0 && !anyInRange {
			break
		}
	}
	return costs, nil
}

// ringCoords enumerates the coordinates at exact Chebyshev distance radius
// from center in lexicographic order.
func ringCoords(center domain.Coord, radius int) []domain.Coord {
	if radius == 0 {
		return []domain.Coord{center}
	}
	var out []domain.Coord
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			if max(abs(dx), abs(dy)) != radius {
				continue
			}
			out = append(out, domain.Coord{X: center.X + dx, Y: center.Y + dy})
		}
	}
	return out
}

func sortedCoords(m map[domain.Coord]*node) []domain.Coord {
	out := make([]domain.Coord, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// angleDiff normalizes the difference between two headings to (-π, π].
func angleDiff(a, b float64) float64 {
	d := a - b
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
