package geom

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// WireQuat decodes the quaternion layouts simulators emit and keeps a
// normalized mgl64.Quat. Accepted forms:
//
//	[x, y, z, w]
//	{"x": .., "y": .., "z": .., "w": ..}
//	{"w": .., "v": [x, y, z]}
type WireQuat struct {
	mgl64.Quat
}

type wireQuatObject struct {
	X *float64    `json:"x"`
	Y *float64    `json:"y"`
	Z *float64    `json:"z"`
	W *float64    `json:"w"`
	V *[3]float64 `json:"v"`
}

func (w *WireQuat) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 4 {
			return fmt.Errorf("quaternion array needs 4 elements, got %d", len(arr))
		}
		return w.set(arr[3], arr[0], arr[1], arr[2])
	}

	var obj wireQuatObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("quaternion: %w", err)
	}
	if obj.W == nil {
		return fmt.Errorf("quaternion object missing w")
	}
	if obj.V != nil {
		return w.set(*obj.W, obj.V[0], obj.V[1], obj.V[2])
	}
	if obj.X == nil || obj.Y == nil || obj.Z == nil {
		return fmt.Errorf("quaternion object missing x/y/z")
	}
	return w.set(*obj.W, *obj.X, *obj.Y, *obj.Z)
}

// MarshalJSON always writes the [x, y, z, w] array form.
func (w WireQuat) MarshalJSON() ([]byte, error) {
	return json.Marshal(QuatArray(w.Quat))
}

func (w *WireQuat) set(qw, x, y, z float64) error {
	q := mgl64.Quat{W: qw, V: mgl64.Vec3{x, y, z}}
	n := q.Len()
	if n < 1e-9 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("quaternion has invalid norm %v", n)
	}
	w.Quat = q.Normalize()
	return nil
}

// QuatArray flattens q into [x, y, z, w].
func QuatArray(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V.X(), q.V.Y(), q.V.Z(), q.W}
}
