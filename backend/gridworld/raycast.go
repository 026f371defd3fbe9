package gridworld

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gocv.io/x/gocv"

	"navreel/geom"
)

// RenderFirstPerson draws a column-raycast view of the occupancy grid from pose.
// Anything outside the bounds reads as wall.
func (w *World) RenderFirstPerson(ctx context.Context, pose geom.Pose) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}
	width, height := w.opts.ViewWidth, w.opts.ViewHeight
	img := gocv.NewMatWithSizeFromScalar(scalar(skyColor), height, width, gocv.MatTypeCV8UC3)
	horizon := height / 2
	gocv.Rectangle(&img, image.Rect(0, horizon, width, height), floorColor, -1)

	yaw := mgl64.DegToRad(pose.Yaw())
	half := mgl64.DegToRad(w.opts.HFOV) / 2
	for c := 0; c < width; c++ {
		// column 0 is the left edge, which is the positive-yaw side
		t := 0.5
		if width > 1 {
			t = float64(c) / float64(width-1)
		}
		a := yaw + half - t*2*half
		d := w.castRay(pose.Position.X(), pose.Position.Z(), a)
		if d >= w.opts.MaxViewDistance {
			continue
		}
		d *= math.Cos(a - yaw)
		if d < 0.05 {
			d = 0.05
		}
		wall := int(float64(height) * 0.6 / d)
		if wall > height {
			wall = height
		}
		shade := 1.0 / (1.0 + 0.25*d)
		col := color.RGBA{
			R: uint8(40 + 150*shade),
			G: uint8(50 + 140*shade),
			B: uint8(70 + 120*shade),
			A: 255,
		}
		gocv.Line(&img, image.Pt(c, horizon-wall/2), image.Pt(c, horizon+wall/2), col, 1)
	}
	return img, nil
}

// castRay marches from (x, z) along yaw angle a until it leaves walkable space.
func (w *World) castRay(x, z, a float64) float64 {
	dx, dz := -math.Sin(a), -math.Cos(a)
	step := math.Min(w.cellW(), w.cellD()) / 2
	for d := step; d < w.opts.MaxViewDistance; d += step {
		if !w.walkable(x+dx*d, z+dz*d) {
			return d
		}
	}
	return w.opts.MaxViewDistance
}
