package gridworld

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"gocv.io/x/gocv"

	"navreel/geom"
)

// testWorld is 10m x 10m over a 20x20 mask with a wall at x in [5, 6).
func testWorld(t *testing.T, snap float64) *World {
	t.Helper()
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 20, 20, gocv.MatTypeCV8UC1)
	defer mask.Close()
	for row := 0; row < 20; row++ {
		mask.SetUCharAt(row, 10, 0)
		mask.SetUCharAt(row, 11, 0)
	}
	w, err := New(mask, Options{
		MinX: 0, MinZ: 0, MaxX: 10, MaxZ: 10,
		FloorY:     0.2,
		SnapRadius: snap,
		ViewWidth:  64,
		ViewHeight: 48,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestIsNavigable(t *testing.T) {
	w := testWorld(t, 1)
	ctx := context.Background()
	cases := []struct {
		p    mgl64.Vec3
		want bool
	}{
		{mgl64.Vec3{2, 0, 2}, true},
		{mgl64.Vec3{5.5, 0, 3}, false},
		{mgl64.Vec3{6.2, 0, 9.9}, true},
		{mgl64.Vec3{-1, 0, 3}, false},
	}
	for _, tc := range cases {
		got, err := w.IsNavigable(ctx, tc.p)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("IsNavigable(%v)=%v", tc.p, got)
		}
	}
}

func TestNearestNavigable(t *testing.T) {
	w := testWorld(t, 1)
	ctx := context.Background()

	p, ok, err := w.NearestNavigable(ctx, 2, 2)
	if err != nil || !ok {
		t.Fatalf("walkable query: ok=%v err=%v", ok, err)
	}
	if p != (mgl64.Vec3{2, 0.2, 2}) {
		t.Fatalf("walkable query moved to %v", p)
	}

	p, ok, err = w.NearestNavigable(ctx, 5.6, 3)
	if err != nil || !ok {
		t.Fatalf("blocked query: ok=%v err=%v", ok, err)
	}
	if math.Abs(p.X()-6.25) > 1e-9 {
		t.Fatalf("snapped to %v, want the cell just past the wall", p)
	}
	if ok, _ := w.IsNavigable(ctx, p); !ok {
		t.Fatalf("snapped point %v is not walkable", p)
	}
}

func TestNearestNavigableOutsideSnapRadius(t *testing.T) {
	w := testWorld(t, 0.1)
	_, ok, err := w.NearestNavigable(context.Background(), 5.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no walkable point within 0.1m")
	}
}

func TestStartPoseIsWalkable(t *testing.T) {
	w := testWorld(t, 1)
	ctx := context.Background()
	pose, err := w.StartPose(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := w.IsNavigable(ctx, pose.Position); !ok {
		t.Fatalf("start %v not walkable", pose.Position)
	}
	if d := math.Hypot(pose.Position.X()-5, pose.Position.Z()-5); d > 1.5 {
		t.Fatalf("start %v too far from centre", pose.Position)
	}
}

func TestBaseMapAndBounds(t *testing.T) {
	w := testWorld(t, 1)
	ctx := context.Background()
	m, err := w.BaseTopDownMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.Rows() != 20 || m.Cols() != 20 || m.Channels() != 3 {
		t.Fatalf("base map %dx%dx%d", m.Cols(), m.Rows(), m.Channels())
	}
	free := m.GetVecbAt(0, 0)
	wall := m.GetVecbAt(0, 10)
	if free[0] == wall[0] {
		t.Fatal("walls and floor rendered identically")
	}
	b, _ := w.SceneBounds(ctx)
	if b.Min.Y() != 0.2 || b.Width() != 10 || b.Depth() != 10 {
		t.Fatalf("bounds %+v", b)
	}
}

func TestRenderFirstPersonSeesWall(t *testing.T) {
	w := testWorld(t, 1)
	ctx := context.Background()

	facingWall := geom.Pose{Position: mgl64.Vec3{4, 0.2, 5}, Orientation: geom.YawQuat(-90)}
	facingAway := geom.Pose{Position: mgl64.Vec3{4, 0.2, 5}, Orientation: geom.YawQuat(90)}

	near, err := w.RenderFirstPerson(ctx, facingWall)
	if err != nil {
		t.Fatal(err)
	}
	defer near.Close()
	far, err := w.RenderFirstPerson(ctx, facingAway)
	if err != nil {
		t.Fatal(err)
	}
	defer far.Close()

	if near.Rows() != 48 || near.Cols() != 64 {
		t.Fatalf("view %dx%d", near.Cols(), near.Rows())
	}
	sky := far.GetVecbAt(18, 32)
	wall := near.GetVecbAt(18, 32)
	if sky[0] == wall[0] && sky[1] == wall[1] && sky[2] == wall[2] {
		t.Fatal("a wall 1m ahead should cover row 18 of the centre column")
	}
}
