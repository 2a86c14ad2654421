package surface

import (
	"github.com/volgate/volgate/internal/domain"
)

// Tile holds the per-coordinate attributes of a penalty landscape. Tiles are
// immutable once a layer is built.
type Tile struct {
	Penalty          float64 `json:"penalty" yaml:"penalty"`
	Slope            float64 `json:"slope" yaml:"slope"`
	Curvature        float64 `json:"curvature" yaml:"curvature"`
	LiquidityPenalty float64 `json:"liquidity_penalty" yaml:"liquidity_penalty"`
}

// Surface is a named forward time layer exposing a penalty landscape. Two
// representations exist with identical capability: an explicit tile grid for
// near layers and a parametric frustum for cheaper far-future layers.
type Surface interface {
	// Name identifies the time layer (e.g. "T+7d").
	Name() string

	// PenaltyAt returns the landscape penalty at c, always >= 0.
	// Querying an out-of-range coordinate is an InputError.
	PenaltyAt(c domain.Coord) (float64, error)

	// TileAt returns the full tile attributes at c. Frustum layers
	// synthesize tiles from their parameters.
	TileAt(c domain.Coord) (Tile, error)

	// Contains reports whether c is in range for this layer.
	Contains(c domain.Coord) bool
}

// Grid is the explicit-tile surface variant.
type Grid struct {
	name   string
	origin domain.Coord
	width  int
	height int
	tiles  []Tile // row-major, indexed by (y-origin.Y)*width + (x-origin.X)
}

// NewGrid builds a grid layer from row-major tiles. Rows must be equal
// length, non-empty, and every tile penalty must be >= 0.
func NewGrid(name string, origin domain.Coord, rows [][]Tile) (*Grid, error) {
	if name == "" {
		return nil, domain.NewInputError("surface.name", "layer name required")
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, domain.NewInputError("surface.tiles", "grid must have at least one tile")
	}
	width := len(rows[0])
	tiles := make([]Tile, 0, len(rows)*width)
	for y, row := range rows {
		if len(row) != width {
			return nil, domain.NewInputError("surface.tiles", "ragged grid: row %d has %d tiles, want %d", y, len(row), width)
		}
		for x, t := range row {
			if t.Penalty < 0 {
				return nil, domain.NewInputError("surface.tiles", "negative penalty %.4f at (%d,%d)", t.Penalty, origin.X+x, origin.Y+y)
			}
			tiles = append(tiles, t)
		}
	}
	return &Grid{name: name, origin: origin, width: width, height: len(rows), tiles: tiles}, nil
}

func (g *Grid) Name() string { return g.name }

func (g *Grid) Contains(c domain.Coord) bool {
	return c.X >= g.origin.X && c.X < g.origin.X+g.width &&
		c.Y >= g.origin.Y && c.Y < g.origin.Y+g.height
}

func (g *Grid) TileAt(c domain.Coord) (Tile, error) {
	if !g.Contains(c) {
		return Tile{}, domain.NewInputError("surface.coord", "(%d,%d) out of range for layer %s", c.X, c.Y, g.name)
	}
	return g.tiles[(c.Y-g.origin.Y)*g.width+(c.X-g.origin.X)], nil
}

func (g *Grid) PenaltyAt(c domain.Coord) (float64, error) {
	t, err := g.TileAt(c)
	if err != nil {
		return 0, err
	}
	return t.Penalty, nil
}
