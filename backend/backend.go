// Package backend defines the collaborators the engine drives: a rendering
// backend for the scene and a navigability oracle.
package backend

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gocv.io/x/gocv"

	"navreel/geom"
)

// Global debug function for backend packages
var debugMsgFunc func(string, string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(string, string)) {
	debugMsgFunc = fn
}

// DebugMsg forwards to the installed debug function, if any.
func DebugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// Renderer produces images of the scene. Returned Mats are owned by the caller.
type Renderer interface {
	SceneBounds(ctx context.Context) (geom.Bounds, error)
	BaseTopDownMap(ctx context.Context) (gocv.Mat, error)
	RenderFirstPerson(ctx context.Context, pose geom.Pose) (gocv.Mat, error)
}

// Oracle answers navigability queries against the walkable surface.
type Oracle interface {
	IsNavigable(ctx context.Context, p mgl64.Vec3) (bool, error)
	// NearestNavigable resolves a horizontal query to a walkable point
	// with its height. ok is false when nothing walkable is near.
	NearestNavigable(ctx context.Context, x, z float64) (p mgl64.Vec3, ok bool, err error)
}

// Backend is a complete scene connection.
type Backend interface {
	Renderer
	Oracle
	// StartPose is where the agent stands when a session opens.
	StartPose(ctx context.Context) (geom.Pose, error)
	Info() Info
	Close() error
}

// Info describes the active backend
type Info struct {
	Kind     string        // "simbridge" or "gridworld"
	Endpoint string        // websocket URL or mask path
	Scene    string        // scene identifier reported by the backend
	InitTime time.Duration // Time taken to connect and load
}
