package simbridge

import "navreel/geom"

// Operations understood by the simulator bridge.
const (
	OpHello            = "hello"
	OpBounds           = "bounds"
	OpBaseMap          = "base_map"
	OpRender           = "render"
	OpIsNavigable      = "is_navigable"
	OpNearestNavigable = "nearest_navigable"
	OpAgentState       = "agent_state"
)

// Request is one call to the simulator. Fields are set per op.
type Request struct {
	ID       uint64         `json:"id"`
	Op       string         `json:"op"`
	Position *[3]float64    `json:"position,omitempty"`
	Rotation *geom.WireQuat `json:"rotation,omitempty"`
	X        *float64       `json:"x,omitempty"`
	Z        *float64       `json:"z,omitempty"`
	Width    int            `json:"width,omitempty"`
	Height   int            `json:"height,omitempty"`
}

// Response mirrors Request.ID. Images are encoded PNG/JPEG bytes (base64 in JSON).
type Response struct {
	ID    uint64 `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Scene string `json:"scene,omitempty"`

	Min *[3]float64 `json:"min,omitempty"`
	Max *[3]float64 `json:"max,omitempty"`

	Image []byte `json:"image,omitempty"`

	Navigable bool        `json:"navigable,omitempty"`
	Found     bool        `json:"found,omitempty"`
	Point     *[3]float64 `json:"point,omitempty"`

	Position *[3]float64    `json:"position,omitempty"`
	Rotation *geom.WireQuat `json:"rotation,omitempty"`
}
