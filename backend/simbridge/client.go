// Package simbridge drives an external simulator process over a websocket.
// Calls are strictly sequential request/response pairs.
package simbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"navreel/backend"
	"navreel/geom"
)

// Options configures the bridge connection.
type Options struct {
	URL        string
	ViewWidth  int
	ViewHeight int
	// IOTimeout bounds a single call when the caller's context has no deadline. Zero waits forever.
	IOTimeout time.Duration
}

// Client is a backend.Backend backed by a simulator bridge.
type Client struct {
	opts   Options
	conn   *websocket.Conn
	nextID uint64
	info   backend.Info
	broken error
}

var _ backend.Backend = (*Client)(nil)

// Dial connects and performs the hello exchange.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	start := time.Now()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial simulator %s: %w", opts.URL, err)
	}
	c := &Client{
		opts: opts,
		conn: conn,
		info: backend.Info{Kind: "simbridge", Endpoint: opts.URL},
	}
	resp, err := c.call(ctx, Request{Op: OpHello})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.info.Scene = resp.Scene
	c.info.InitTime = time.Since(start)
	backend.DebugMsg("SIMBRIDGE", fmt.Sprintf("connected to %s scene=%q (%v)", opts.URL, resp.Scene, c.info.InitTime))
	return c, nil
}

func (c *Client) Info() backend.Info { return c.info }

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.broken != nil {
		return nil, fmt.Errorf("%s: connection unusable: %w", req.Op, c.broken)
	}
	c.nextID++
	req.ID = c.nextID

	deadline, ok := ctx.Deadline()
	if !ok && c.opts.IOTimeout > 0 {
		deadline = time.Now().Add(c.opts.IOTimeout)
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	// cancellation expires the deadlines so a blocked read or write returns
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		now := time.Now()
		_ = c.conn.SetWriteDeadline(now)
		_ = c.conn.SetReadDeadline(now)
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	if err := c.conn.WriteJSON(req); err != nil {
		return nil, c.fail(ctx, req.Op, "send", err)
	}
	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return nil, c.fail(ctx, req.Op, "receive", err)
	}
	if resp.ID != req.ID {
		return nil, c.fail(ctx, req.Op, "receive", fmt.Errorf("reply id %d does not match request id %d", resp.ID, req.ID))
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s: simulator error: %s", req.Op, resp.Error)
	}
	return &resp, nil
}

// fail marks the connection broken. A websocket that failed mid-frame cannot
// be read again, so every later call returns the same cause.
func (c *Client) fail(ctx context.Context, op, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%v)", ctxErr, err)
	}
	c.broken = fmt.Errorf("%s %s: %w", op, stage, err)
	backend.DebugMsg("SIMBRIDGE", fmt.Sprintf("connection broken: %v", c.broken))
	return fmt.Errorf("%s: %s: %w", op, stage, err)
}

func (c *Client) SceneBounds(ctx context.Context) (geom.Bounds, error) {
	resp, err := c.call(ctx, Request{Op: OpBounds})
	if err != nil {
		return geom.Bounds{}, err
	}
	if resp.Min == nil || resp.Max == nil {
		return geom.Bounds{}, fmt.Errorf("bounds: reply missing min/max")
	}
	return geom.Bounds{Min: mgl64.Vec3(*resp.Min), Max: mgl64.Vec3(*resp.Max)}, nil
}

func (c *Client) BaseTopDownMap(ctx context.Context) (gocv.Mat, error) {
	resp, err := c.call(ctx, Request{Op: OpBaseMap})
	if err != nil {
		return gocv.NewMat(), err
	}
	return decodeImage(OpBaseMap, resp.Image)
}

func (c *Client) RenderFirstPerson(ctx context.Context, pose geom.Pose) (gocv.Mat, error) {
	pos := [3]float64(pose.Position)
	rot := geom.WireQuat{Quat: pose.Orientation}
	resp, err := c.call(ctx, Request{
		Op:       OpRender,
		Position: &pos,
		Rotation: &rot,
		Width:    c.opts.ViewWidth,
		Height:   c.opts.ViewHeight,
	})
	if err != nil {
		return gocv.NewMat(), err
	}
	return decodeImage(OpRender, resp.Image)
}

func (c *Client) IsNavigable(ctx context.Context, p mgl64.Vec3) (bool, error) {
	pos := [3]float64(p)
	resp, err := c.call(ctx, Request{Op: OpIsNavigable, Position: &pos})
	if err != nil {
		return false, err
	}
	return resp.Navigable, nil
}

func (c *Client) NearestNavigable(ctx context.Context, x, z float64) (mgl64.Vec3, bool, error) {
	resp, err := c.call(ctx, Request{Op: OpNearestNavigable, X: &x, Z: &z})
	if err != nil {
		return mgl64.Vec3{}, false, err
	}
	if !resp.Found {
		return mgl64.Vec3{}, false, nil
	}
	if resp.Point == nil {
		return mgl64.Vec3{}, false, fmt.Errorf("nearest_navigable: found without point")
	}
	return mgl64.Vec3(*resp.Point), true, nil
}

// StartPose reads the simulator's current agent state.
func (c *Client) StartPose(ctx context.Context) (geom.Pose, error) {
	resp, err := c.call(ctx, Request{Op: OpAgentState})
	if err != nil {
		return geom.Pose{}, err
	}
	if resp.Position == nil {
		return geom.Pose{}, fmt.Errorf("agent_state: reply missing position")
	}
	pose := geom.NewPose(mgl64.Vec3(*resp.Position))
	if resp.Rotation != nil {
		pose.Orientation = resp.Rotation.Quat
	}
	return pose, nil
}

func decodeImage(op string, buf []byte) (gocv.Mat, error) {
	if len(buf) == 0 {
		return gocv.NewMat(), fmt.Errorf("%s: reply has no image", op)
	}
	img, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%s: decode image: %w", op, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("%s: image is empty after decode", op)
	}
	return img, nil
}
