// Package overlay builds the two-pane composite frame: the first-person view on
// the left and the annotated top-down map on the right.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"navreel/geom"
	"navreel/mapping"
)

// Options sizes the panes and the agent glyph.
type Options struct {
	PaneWidth    int
	PaneHeight   int
	MarkerRadius int  // filled agent dot, pixels on the padded map
	ArrowLength  int  // heading arrow, pixels on the padded map
	HUD          bool // caption text on the first-person pane
}

// Compositor owns a private copy of the decorated base map and never draws on it.
type Compositor struct {
	opts   Options
	mapper *mapping.Mapper
	base   gocv.Mat

	markerColor color.RGBA
	arrowColor  color.RGBA
	background  color.RGBA
	hudColor    color.RGBA
}

// NewCompositor clones base, which must match the mapper's padded raster.
func NewCompositor(base gocv.Mat, mapper *mapping.Mapper, opts Options) (*Compositor, error) {
	if opts.PaneWidth <= 0 || opts.PaneHeight <= 0 {
		return nil, fmt.Errorf("pane size must be positive, got %dx%d", opts.PaneWidth, opts.PaneHeight)
	}
	if base.Empty() {
		return nil, fmt.Errorf("base map is empty")
	}
	size := mapper.PaddedSize()
	if base.Cols() != size.X || base.Rows() != size.Y {
		return nil, fmt.Errorf("base map is %dx%d but the map transform expects %dx%d",
			base.Cols(), base.Rows(), size.X, size.Y)
	}
	if opts.MarkerRadius <= 0 {
		opts.MarkerRadius = 8
	}
	if opts.ArrowLength <= 0 {
		opts.ArrowLength = 20
	}
	return &Compositor{
		opts:        opts,
		mapper:      mapper,
		base:        ToBGR(base),
		markerColor: color.RGBA{255, 0, 0, 255},
		arrowColor:  color.RGBA{200, 0, 0, 255},
		background:  color.RGBA{0, 0, 0, 255},
		hudColor:    color.RGBA{255, 255, 0, 255},
	}, nil
}

// FrameSize is the fixed resolution of every composite.
func (c *Compositor) FrameSize() image.Point {
	return image.Pt(2*c.opts.PaneWidth, c.opts.PaneHeight)
}

func (c *Compositor) Close() error {
	return c.base.Close()
}

// Compose renders one composite for pose. firstPerson is read, not retained.
// The returned Mat is owned by the caller.
func (c *Compositor) Compose(firstPerson gocv.Mat, pose geom.Pose, caption string) (gocv.Mat, error) {
	if firstPerson.Empty() {
		return gocv.NewMat(), fmt.Errorf("first-person image is empty")
	}
	pane := image.Pt(c.opts.PaneWidth, c.opts.PaneHeight)

	fp := ToBGR(firstPerson)
	defer fp.Close()
	left := gocv.NewMat()
	defer left.Close()
	gocv.Resize(fp, &left, pane, 0, 0, gocv.InterpolationLinear)
	if c.opts.HUD && caption != "" {
		c.drawCaption(&left, caption)
	}

	annotated := c.base.Clone()
	defer annotated.Close()
	c.DrawAgent(&annotated, pose)
	right := Letterbox(annotated, pane, c.background)
	defer right.Close()

	out := gocv.NewMat()
	gocv.Hconcat(left, right, &out)
	if out.Cols() != 2*pane.X || out.Rows() != pane.Y {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("composite is %dx%d, want %dx%d", out.Cols(), out.Rows(), 2*pane.X, pane.Y)
	}
	return out, nil
}

// DrawAgent draws the position marker and heading arrow onto a padded map.
func (c *Compositor) DrawAgent(img *gocv.Mat, pose geom.Pose) {
	center := c.mapper.WorldToMap(pose.Position.X(), pose.Position.Z())
	gocv.Circle(img, center, c.opts.MarkerRadius, c.markerColor, -1)

	// project the forward vector onto the ground plane; map rows grow with +Z
	h := pose.Heading()
	n := math.Hypot(h.X(), h.Z())
	if n < 1e-9 {
		return
	}
	tip := image.Pt(
		center.X+int(math.Round(h.X()/n*float64(c.opts.ArrowLength))),
		center.Y+int(math.Round(h.Z()/n*float64(c.opts.ArrowLength))),
	)
	gocv.ArrowedLine(img, center, tip, c.arrowColor, 2)
}

func (c *Compositor) drawCaption(img *gocv.Mat, caption string) {
	gocv.Rectangle(img, image.Rect(0, 0, img.Cols(), 22), color.RGBA{0, 0, 0, 255}, -1)
	gocv.PutText(img, caption, image.Pt(6, 16), gocv.FontHersheySimplex, 0.45, c.hudColor, 1)
}

// Letterbox scales src to fit inside size with its aspect ratio kept, centred
// on a bg-filled canvas.
func Letterbox(src gocv.Mat, size image.Point, bg color.RGBA) gocv.Mat {
	canvas := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0),
		size.Y, size.X, gocv.MatTypeCV8UC3)

	scale := math.Min(float64(size.X)/float64(src.Cols()), float64(size.Y)/float64(src.Rows()))
	w := clampInt(int(math.Round(float64(src.Cols())*scale)), 1, size.X)
	h := clampInt(int(math.Round(float64(src.Rows())*scale)), 1, size.Y)

	resized := gocv.NewMat()
	defer resized.Close()
	interp := gocv.InterpolationLinear
	if scale < 1 {
		interp = gocv.InterpolationArea
	}
	gocv.Resize(src, &resized, image.Pt(w, h), 0, 0, interp)

	x0 := (size.X - w) / 2
	y0 := (size.Y - h) / 2
	roi := canvas.Region(image.Rect(x0, y0, x0+w, y0+h))
	resized.CopyTo(&roi)
	roi.Close()
	return canvas
}

// ToBGR returns a 3-channel copy of src.
func ToBGR(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		gocv.CvtColor(src, &dst, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToBGR)
	default:
		src.CopyTo(&dst)
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
