package surface

import (
	"github.com/volgate/volgate/internal/domain"
)

// bulgeDiscount is the multiplier applied inside a frustum's directional
// bulge band, a one-sided strip near the center where cost is locally cheaper.
const bulgeDiscount = 0.7

// BulgeDirection orients a frustum's bulge band along one grid axis.
type BulgeDirection string

const (
	BulgeEast  BulgeDirection = "east"  // +X side of center
	BulgeWest  BulgeDirection = "west"  // -X side of center
	BulgeNorth BulgeDirection = "north" // +Y side of center
	BulgeSouth BulgeDirection = "south" // -Y side of center
)

// BulgeBand is the optional directional discount of a frustum layer.
// Depth bounds how far from the center the strip reaches along Direction;
// Width bounds the half-width of the strip on the perpendicular axis.
type BulgeBand struct {
	Direction BulgeDirection `json:"direction" yaml:"direction"`
	Depth     int            `json:"depth" yaml:"depth"`
	Width     int            `json:"width" yaml:"width"`
}

func (b BulgeBand) contains(dx, dy int) bool {
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	switch b.Direction {
	case BulgeEast:
		return dx > 0 && dx <= b.Depth && abs(dy) <= b.Width
	case BulgeWest:
		return dx < 0 && -dx <= b.Depth && abs(dy) <= b.Width
	case BulgeNorth:
		return dy > 0 && dy <= b.Depth && abs(dx) <= b.Width
	case BulgeSouth:
		return dy < 0 && -dy <= b.Depth && abs(dx) <= b.Width
	default:
		return false
	}
}

// Frustum is the parametric surface variant: a low-cost center with penalty
// rising linearly with Manhattan distance, optionally discounted inside a
// directional bulge band. Used for lower-resolution far-future layers.
type Frustum struct {
	name   string
	center domain.Coord
	base   float64
	slope  float64
	extent int // Chebyshev half-width of the valid range around center
	bulge  *BulgeBand
}

// NewFrustum builds a frustum layer. Base must be >= 0, slope >= 0, and
// extent >= 1 so the layer covers a usable neighborhood.
func NewFrustum(name string, center domain.Coord, base, slope float64, extent int, bulge *BulgeBand) (*Frustum, error) {
	if name == "" {
		return nil, domain.NewInputError("surface.name", "layer name required")
	}
	if base < 0 {
		return nil, domain.NewInputError("surface.base", "base penalty %.4f must be >= 0", base)
	}
	if slope < 0 {
		return nil, domain.NewInputError("surface.slope", "slope %.4f must be >= 0", slope)
	}
	if extent < 1 {
		return nil, domain.NewInputError("surface.extent", "extent %d must be >= 1", extent)
	}
	return &Frustum{name: name, center: center, base: base, slope: slope, extent: extent, bulge: bulge}, nil
}

func (f *Frustum) Name() string { return f.name }

func (f *Frustum) Contains(c domain.Coord) bool {
	return c.Chebyshev(f.center) <= f.extent
}

func (f *Frustum) PenaltyAt(c domain.Coord) (float64, error) {
	if !f.Contains(c) {
		return 0, domain.NewInputError("surface.coord", "(%d,%d) out of range for layer %s", c.X, c.Y, f.name)
	}
	dx := c.X - f.center.X
	dy := c.Y - f.center.Y
	manhattan := dx
	if manhattan < 0 {
		manhattan = -manhattan
	}
	if dy < 0 {
		manhattan -= dy
	} else {
		manhattan += dy
	}
	p := f.base + f.slope*float64(manhattan)
	if f.bulge != nil && f.bulge.contains(dx, dy) {
		p *= bulgeDiscount
	}
	return p, nil
}

// TileAt synthesizes tile attributes from the frustum parameters: the layer's
// linear slope carries over, curvature and liquidity penalty are flat zero at
// frustum resolution.
func (f *Frustum) TileAt(c domain.Coord) (Tile, error) {
	p, err := f.PenaltyAt(c)
	if err != nil {
		return Tile{}, err
	}
	return Tile{Penalty: p, Slope: f.slope}, nil
}
