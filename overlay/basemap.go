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

// BaseMapOptions controls how the raw top-down render becomes the session's base map.
type BaseMapOptions struct {
	Padding       mapping.Padding
	MaxResolution int  // longer side of the unpadded image, in pixels
	Decorate      bool // grid, ticks, labels, origin marker and compass
}

var (
	paddingColor = color.RGBA{255, 255, 255, 255}
	minorGrid    = color.RGBA{200, 200, 200, 255}
	majorGrid    = color.RGBA{150, 150, 150, 255}
	labelColor   = color.RGBA{40, 40, 40, 255}
	borderColor  = color.RGBA{0, 0, 0, 255}
	originColor  = color.RGBA{255, 215, 0, 255}
	compassX     = color.RGBA{220, 0, 0, 255}
	compassZ     = color.RGBA{0, 160, 0, 255}
)

// BuildBaseMap scales raw to MaxResolution, pads it, and optionally decorates
// it. It returns the padded map and the transform describing it. raw is not modified.
func BuildBaseMap(raw gocv.Mat, bounds geom.Bounds, opts BaseMapOptions) (gocv.Mat, mapping.Transform, error) {
	if raw.Empty() {
		return gocv.NewMat(), mapping.Transform{}, fmt.Errorf("top-down map is empty")
	}
	src := ToBGR(raw)
	defer func() { src.Close() }()

	w, h := src.Cols(), src.Rows()
	if opts.MaxResolution > 0 && (w > opts.MaxResolution || h > opts.MaxResolution) {
		scale := float64(opts.MaxResolution) / float64(max(w, h))
		w = max(1, int(math.Round(float64(w)*scale)))
		h = max(1, int(math.Round(float64(h)*scale)))
		scaled := gocv.NewMat()
		gocv.Resize(src, &scaled, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		src.Close()
		src = scaled
	}

	tf := mapping.Transform{Padding: opts.Padding, Width: w, Height: h}
	mapper, err := mapping.New(bounds, tf)
	if err != nil {
		return gocv.NewMat(), tf, err
	}

	p := opts.Padding
	padded := gocv.NewMat()
	gocv.CopyMakeBorder(src, &padded, p.Top, p.Bottom, p.Left, p.Right, gocv.BorderConstant, paddingColor)

	if opts.Decorate {
		decorate(&padded, mapper)
	}
	return padded, tf, nil
}

// GridInterval picks a readable grid spacing for a scene of the given extent.
func GridInterval(extent float64) float64 {
	switch {
	case extent <= 2:
		return 0.5
	case extent <= 5:
		return 1
	case extent <= 10:
		return 2
	case extent <= 20:
		return 5
	default:
		return 10
	}
}

func decorate(img *gocv.Mat, m *mapping.Mapper) {
	b := m.Bounds()
	rect := m.Transform().ImageRect()
	interval := GridInterval(math.Max(b.Width(), b.Depth()))

	for _, v := range gridValues(b.Min.X(), b.Max.X(), interval) {
		x := m.WorldToMap(v, b.Min.Z()).X
		gocv.Line(img, image.Pt(x, rect.Min.Y), image.Pt(x, rect.Max.Y), gridColor(v), 1)
		gocv.Line(img, image.Pt(x, rect.Max.Y), image.Pt(x, rect.Max.Y+5), borderColor, 1)
		label := fmt.Sprintf("%.1f", v)
		ts := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.35, 1)
		gocv.PutText(img, label, image.Pt(x-ts.X/2, rect.Max.Y+18), gocv.FontHersheySimplex, 0.35, labelColor, 1)
	}
	for _, v := range gridValues(b.Min.Z(), b.Max.Z(), interval) {
		y := m.WorldToMap(b.Min.X(), v).Y
		gocv.Line(img, image.Pt(rect.Min.X, y), image.Pt(rect.Max.X, y), gridColor(v), 1)
		gocv.Line(img, image.Pt(rect.Min.X-5, y), image.Pt(rect.Min.X, y), borderColor, 1)
		label := fmt.Sprintf("%.1f", v)
		ts := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.35, 1)
		gocv.PutText(img, label, image.Pt(rect.Min.X-ts.X-8, y+ts.Y/2), gocv.FontHersheySimplex, 0.35, labelColor, 1)
	}

	gocv.Rectangle(img, rect, borderColor, 1)

	xLabel := "X (meters)"
	ts := gocv.GetTextSize(xLabel, gocv.FontHersheySimplex, 0.45, 1)
	gocv.PutText(img, xLabel, image.Pt(rect.Min.X+(rect.Dx()-ts.X)/2, rect.Max.Y+36), gocv.FontHersheySimplex, 0.45, labelColor, 1)
	gocv.PutText(img, "Z (meters)", image.Pt(4, max(rect.Min.Y-10, 12)), gocv.FontHersheySimplex, 0.45, labelColor, 1)

	info := fmt.Sprintf("Scene: %.1fm x %.1fm | Grid: %.1fm", b.Width(), b.Depth(), interval)
	gocv.PutText(img, info, image.Pt(rect.Min.X, rect.Max.Y+52), gocv.FontHersheySimplex, 0.35, labelColor, 1)

	if b.ContainsXZ(0, 0) {
		o := m.WorldToMap(0, 0)
		gocv.Circle(img, o, 5, originColor, -1)
		gocv.Circle(img, o, 5, borderColor, 1)
		gocv.PutText(img, "Origin (0,0)", image.Pt(o.X+8, o.Y-8), gocv.FontHersheySimplex, 0.35, labelColor, 1)
	}

	drawCompass(img, image.Pt(rect.Max.X-34, rect.Min.Y+14))
}

// drawCompass shows the +X (right) and +Z (down) map axes.
func drawCompass(img *gocv.Mat, at image.Point) {
	gocv.ArrowedLine(img, at, image.Pt(at.X+22, at.Y), compassX, 2)
	gocv.PutText(img, "+X", image.Pt(at.X+24, at.Y+4), gocv.FontHersheySimplex, 0.35, compassX, 1)
	gocv.ArrowedLine(img, at, image.Pt(at.X, at.Y+22), compassZ, 2)
	gocv.PutText(img, "+Z", image.Pt(at.X-8, at.Y+34), gocv.FontHersheySimplex, 0.35, compassZ, 1)
}

func gridColor(v float64) color.RGBA {
	if math.Abs(v-math.Round(v)) < 1e-9 {
		return majorGrid
	}
	return minorGrid
}

// gridValues lists multiples of step within [lo, hi].
func gridValues(lo, hi, step float64) []float64 {
	var out []float64
	for i := math.Ceil(lo/step - 1e-9); i*step <= hi+1e-9; i++ {
		out = append(out, i*step)
	}
	return out
}
