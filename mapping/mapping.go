// Package mapping converts between world (x, z) coordinates and pixels of the
// padded top-down map image.
package mapping

import (
	"fmt"
	"image"
	"math"

	"navreel/geom"
)

// DefaultRoundTripEpsilon is the largest world-space error a round trip may introduce.
const DefaultRoundTripEpsilon = 0.1

// Padding around the map image, in pixels.
type Padding struct {
	Left   int `yaml:"left" json:"left"`
	Top    int `yaml:"top" json:"top"`
	Right  int `yaml:"right" json:"right"`
	Bottom int `yaml:"bottom" json:"bottom"`
}

// Transform describes the padded map raster.
type Transform struct {
	Padding Padding
	Width   int // unpadded image width
	Height  int // unpadded image height
}

// PaddedSize is the full raster size including padding.
func (t Transform) PaddedSize() image.Point {
	return image.Pt(
		t.Width+t.Padding.Left+t.Padding.Right,
		t.Height+t.Padding.Top+t.Padding.Bottom,
	)
}

// ImageRect is the unpadded image area inside the padded raster.
func (t Transform) ImageRect() image.Rectangle {
	return image.Rect(t.Padding.Left, t.Padding.Top, t.Padding.Left+t.Width, t.Padding.Top+t.Height)
}

// Mapper is immutable once built; one Mapper serves a whole session.
type Mapper struct {
	bounds geom.Bounds
	tf     Transform
	padded image.Point
}

// New validates bounds and transform and returns a Mapper.
func New(bounds geom.Bounds, tf Transform) (*Mapper, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if tf.Width <= 0 || tf.Height <= 0 {
		return nil, fmt.Errorf("map image dimensions must be positive, got %dx%d", tf.Width, tf.Height)
	}
	p := tf.Padding
	if p.Left < 0 || p.Top < 0 || p.Right < 0 || p.Bottom < 0 {
		return nil, fmt.Errorf("map padding must be non-negative, got %+v", p)
	}
	return &Mapper{bounds: bounds, tf: tf, padded: tf.PaddedSize()}, nil
}

func (m *Mapper) Bounds() geom.Bounds { return m.bounds }

func (m *Mapper) Transform() Transform { return m.tf }

func (m *Mapper) PaddedSize() image.Point { return m.padded }

// WorldToMap projects world (x, z) onto the padded raster. Results are
// rounded and clamped into the raster, so points outside the bounds land on its edge.
func (m *Mapper) WorldToMap(x, z float64) image.Point {
	nx := (x - m.bounds.Min.X()) / m.bounds.Width()
	nz := (z - m.bounds.Min.Z()) / m.bounds.Depth()
	px := int(math.Round(nx*float64(m.tf.Width))) + m.tf.Padding.Left
	py := int(math.Round(nz*float64(m.tf.Height))) + m.tf.Padding.Top
	return image.Pt(clamp(px, 0, m.padded.X-1), clamp(py, 0, m.padded.Y-1))
}

// MapToWorld inverts WorldToMap for the horizontal plane. Height is not
// recoverable from the map and must come from the navigability oracle.
func (m *Mapper) MapToWorld(pt image.Point) (x, z float64) {
	nx := float64(pt.X-m.tf.Padding.Left) / float64(m.tf.Width)
	nz := float64(pt.Y-m.tf.Padding.Top) / float64(m.tf.Height)
	x = m.bounds.Min.X() + nx*m.bounds.Width()
	z = m.bounds.Min.Z() + nz*m.bounds.Depth()
	return x, z
}

// RoundTrip is one world->map->world diagnostic sample.
type RoundTrip struct {
	X, Z  float64
	Pixel image.Point
	BackX float64
	BackZ float64
	Error float64
}

// Acceptable reports whether the sample is within eps world units.
func (r RoundTrip) Acceptable(eps float64) bool {
	return r.Error <= eps
}

// Verify measures the round-trip error at (x, z). Diagnostics only.
func (m *Mapper) Verify(x, z float64) RoundTrip {
	pt := m.WorldToMap(x, z)
	bx, bz := m.MapToWorld(pt)
	return RoundTrip{
		X: x, Z: z,
		Pixel: pt,
		BackX: bx, BackZ: bz,
		Error: math.Hypot(bx-x, bz-z),
	}
}

// Sweep samples an n x n grid spanning the bounds and returns every
// sample plus the worst one.
func (m *Mapper) Sweep(n int) (samples []RoundTrip, worst RoundTrip) {
	if n < 2 {
		n = 2
	}
	samples = make([]RoundTrip, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := m.bounds.Min.X() + m.bounds.Width()*float64(i)/float64(n-1)
			z := m.bounds.Min.Z() + m.bounds.Depth()*float64(j)/float64(n-1)
			r := m.Verify(x, z)
			samples = append(samples, r)
			if r.Error >= worst.Error {
				worst = r
			}
		}
	}
	return samples, worst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
