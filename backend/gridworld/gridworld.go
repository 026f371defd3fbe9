// Package gridworld is an offline backend: a walkable-area image stretched over
// scene bounds stands in for the navmesh, and first-person views are raycast
// against it.
package gridworld

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gocv.io/x/gocv"

	"navreel/backend"
	"navreel/geom"
)

// Options configures the world. Zero values fall back to defaults in New.
type Options struct {
	MinX, MinZ      float64
	MaxX, MaxZ      float64
	FloorY          float64
	CeilingHeight   float64 // scene height above the floor, for bounds only
	SnapRadius      float64 // world units searched by NearestNavigable
	HFOV            float64 // first-person horizontal field of view, degrees
	ViewWidth       int
	ViewHeight      int
	MaxViewDistance float64
	Scene           string
}

func (o *Options) applyDefaults() {
	if o.CeilingHeight <= 0 {
		o.CeilingHeight = 2.5
	}
	if o.SnapRadius <= 0 {
		o.SnapRadius = 1.0
	}
	if o.HFOV <= 0 {
		o.HFOV = 90
	}
	if o.ViewWidth <= 0 {
		o.ViewWidth = 512
	}
	if o.ViewHeight <= 0 {
		o.ViewHeight = 512
	}
	if o.MaxViewDistance <= 0 {
		o.MaxViewDistance = 20
	}
}

// World is a backend.Backend over an occupancy grid. Row 0 of the grid is MinZ.
type World struct {
	opts     Options
	bounds   geom.Bounds
	rows     int
	cols     int
	free     []bool
	base     gocv.Mat
	endpoint string
	initTime time.Duration
}

var _ backend.Backend = (*World)(nil)

var (
	freeColor    = color.RGBA{225, 225, 225, 255}
	blockedColor = color.RGBA{70, 70, 78, 255}
	skyColor     = color.RGBA{200, 215, 235, 255}
	floorColor   = color.RGBA{150, 140, 125, 255}
)

// Open loads a walkable-area image (white = walkable) from path.
func Open(path string, opts Options) (*World, error) {
	start := time.Now()
	mask := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mask.Empty() {
		return nil, fmt.Errorf("failed to read navigability mask %s", path)
	}
	defer mask.Close()
	w, err := New(mask, opts)
	if err != nil {
		return nil, err
	}
	w.endpoint = path
	w.initTime = time.Since(start)
	free := 0
	for _, f := range w.free {
		if f {
			free++
		}
	}
	backend.DebugMsg("GRIDWORLD", fmt.Sprintf("loaded %s: %dx%d cells, %d walkable (%v)",
		path, w.cols, w.rows, free, w.initTime))
	return w, nil
}

// New builds a world from an in-memory mask (any channel count). The mask is not retained.
func New(mask gocv.Mat, opts Options) (*World, error) {
	opts.applyDefaults()
	bounds := geom.Bounds{
		Min: mgl64.Vec3{opts.MinX, opts.FloorY, opts.MinZ},
		Max: mgl64.Vec3{opts.MaxX, opts.FloorY + opts.CeilingHeight, opts.MaxZ},
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if mask.Empty() {
		return nil, fmt.Errorf("empty navigability mask")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	switch mask.Channels() {
	case 1:
		mask.CopyTo(&gray)
	case 3:
		gocv.CvtColor(mask, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(mask, &gray, gocv.ColorBGRAToGray)
	default:
		return nil, fmt.Errorf("unsupported mask with %d channels", mask.Channels())
	}
	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 127, 255, gocv.ThresholdBinary)

	rows, cols := bin.Rows(), bin.Cols()
	data, err := bin.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("read mask: %w", err)
	}
	if len(data) < rows*cols {
		return nil, fmt.Errorf("mask buffer too short: %d < %d", len(data), rows*cols)
	}
	free := make([]bool, rows*cols)
	for i := range free {
		free[i] = data[i] > 0
	}

	base := gocv.NewMatWithSizeFromScalar(scalar(blockedColor), rows, cols, gocv.MatTypeCV8UC3)
	light := gocv.NewMatWithSizeFromScalar(scalar(freeColor), rows, cols, gocv.MatTypeCV8UC3)
	defer light.Close()
	light.CopyToWithMask(&base, bin)

	return &World{
		opts:     opts,
		bounds:   bounds,
		rows:     rows,
		cols:     cols,
		free:     free,
		base:     base,
		endpoint: "memory",
	}, nil
}

func scalar(c color.RGBA) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}

func (w *World) Info() backend.Info {
	return backend.Info{
		Kind:     "gridworld",
		Endpoint: w.endpoint,
		Scene:    w.opts.Scene,
		InitTime: w.initTime,
	}
}

func (w *World) Close() error {
	return w.base.Close()
}

func (w *World) SceneBounds(ctx context.Context) (geom.Bounds, error) {
	return w.bounds, ctx.Err()
}

// BaseTopDownMap returns a copy of the colorized mask.
func (w *World) BaseTopDownMap(ctx context.Context) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}
	return w.base.Clone(), nil
}

// StartPose is the walkable cell nearest the scene centre, facing -Z.
func (w *World) StartPose(ctx context.Context) (geom.Pose, error) {
	c := w.bounds.Center()
	p, ok := w.nearest(c.X(), c.Z(), w.rows+w.cols)
	if !ok {
		return geom.Pose{}, fmt.Errorf("scene has no walkable cell")
	}
	return geom.NewPose(p), ctx.Err()
}

func (w *World) IsNavigable(ctx context.Context, p mgl64.Vec3) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return w.walkable(p.X(), p.Z()), nil
}

// NearestNavigable returns the query itself when walkable, else the closest
// walkable cell centre within the snap radius.
func (w *World) NearestNavigable(ctx context.Context, x, z float64) (mgl64.Vec3, bool, error) {
	if err := ctx.Err(); err != nil {
		return mgl64.Vec3{}, false, err
	}
	if w.walkable(x, z) {
		return mgl64.Vec3{x, w.opts.FloorY, z}, true, nil
	}
	cellsX := w.opts.SnapRadius / w.cellW()
	cellsZ := w.opts.SnapRadius / w.cellD()
	reach := int(math.Ceil(math.Max(cellsX, cellsZ)))
	p, ok := w.nearest(x, z, reach)
	if !ok || math.Hypot(p.X()-x, p.Z()-z) > w.opts.SnapRadius+math.Hypot(w.cellW(), w.cellD())/2 {
		return mgl64.Vec3{}, false, nil
	}
	return p, true, nil
}

func (w *World) cellW() float64 { return w.bounds.Width() / float64(w.cols) }

func (w *World) cellD() float64 { return w.bounds.Depth() / float64(w.rows) }

func (w *World) cellOf(x, z float64) (row, col int, inside bool) {
	if !w.bounds.ContainsXZ(x, z) {
		return 0, 0, false
	}
	col = int((x - w.bounds.Min.X()) / w.cellW())
	row = int((z - w.bounds.Min.Z()) / w.cellD())
	if col >= w.cols {
		col = w.cols - 1
	}
	if row >= w.rows {
		row = w.rows - 1
	}
	return row, col, true
}

func (w *World) walkable(x, z float64) bool {
	row, col, inside := w.cellOf(x, z)
	return inside && w.free[row*w.cols+col]
}

func (w *World) cellCenter(row, col int) (x, z float64) {
	return w.bounds.Min.X() + (float64(col)+0.5)*w.cellW(),
		w.bounds.Min.Z() + (float64(row)+0.5)*w.cellD()
}

// nearest scans square rings of growing radius around (x, z) and returns the
// closest walkable cell centre found within reach cells.
func (w *World) nearest(x, z float64, reach int) (mgl64.Vec3, bool) {
	cr := int(math.Floor((z - w.bounds.Min.Z()) / w.cellD()))
	cc := int(math.Floor((x - w.bounds.Min.X()) / w.cellW()))
	bestDist := math.Inf(1)
	var best mgl64.Vec3
	found := false
	visit := func(row, col int) {
		if row < 0 || row >= w.rows || col < 0 || col >= w.cols || !w.free[row*w.cols+col] {
			return
		}
		px, pz := w.cellCenter(row, col)
		if d := math.Hypot(px-x, pz-z); d < bestDist {
			bestDist = d
			best = mgl64.Vec3{px, w.opts.FloorY, pz}
			found = true
		}
	}
	for r := 0; r <= reach; r++ {
		// a hit in ring r can still be beaten by one in ring r+1 at the diagonal
		if found && float64(r-1)*math.Min(w.cellW(), w.cellD()) > bestDist {
			break
		}
		if r == 0 {
			visit(cr, cc)
			continue
		}
		for dc := -r; dc <= r; dc++ {
			visit(cr-r, cc+dc)
			visit(cr+r, cc+dc)
		}
		for dr := -r + 1; dr <= r-1; dr++ {
			visit(cr+dr, cc-r)
			visit(cr+dr, cc+r)
		}
	}
	return best, found
}
