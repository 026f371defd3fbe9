// Package provider opens the backend named by the configuration.
package provider

import (
	"context"
	"fmt"
	"time"

	"navreel/backend"
	"navreel/backend/gridworld"
	"navreel/backend/simbridge"
	"navreel/config"
)

var debugMsgFunc func(string, string)

func SetDebugFunction(fn func(string, string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// Open connects the configured backend. Kind "auto" tries the simulator
// bridge first and falls back to the gridworld mask when the bridge is
// unreachable.
func Open(ctx context.Context, bc config.BackendConfig, rc config.RenderConfig) (backend.Backend, error) {
	switch bc.Kind {
	case "simbridge":
		return openSimBridge(ctx, bc, rc)
	case "gridworld":
		return openGridWorld(bc, rc)
	case "auto":
		debugMsg("PROVIDER", "Auto-selecting backend...")
		b, err := openSimBridge(ctx, bc, rc)
		if err == nil {
			return b, nil
		}
		debugMsg("PROVIDER", fmt.Sprintf("Simulator bridge unavailable: %v, falling back to gridworld", err))
		return openGridWorld(bc, rc)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", bc.Kind)
	}
}

func openSimBridge(ctx context.Context, bc config.BackendConfig, rc config.RenderConfig) (backend.Backend, error) {
	debugMsg("PROVIDER", fmt.Sprintf("Connecting to simulator bridge at %s", bc.URL))
	c, err := simbridge.Dial(ctx, simbridge.Options{
		URL:        bc.URL,
		ViewWidth:  rc.PaneWidth,
		ViewHeight: rc.PaneHeight,
		IOTimeout:  bc.IOTimeout,
	})
	if err != nil {
		return nil, err
	}
	logInfo(c.Info())
	return c, nil
}

func openGridWorld(bc config.BackendConfig, rc config.RenderConfig) (backend.Backend, error) {
	g := bc.Grid
	debugMsg("PROVIDER", fmt.Sprintf("Loading gridworld mask %s", g.Mask))
	w, err := gridworld.Open(g.Mask, gridworld.Options{
		MinX:            g.MinX,
		MinZ:            g.MinZ,
		MaxX:            g.MaxX,
		MaxZ:            g.MaxZ,
		FloorY:          g.FloorY,
		SnapRadius:      g.SnapRadius,
		HFOV:            g.HFOV,
		ViewWidth:       rc.PaneWidth,
		ViewHeight:      rc.PaneHeight,
		MaxViewDistance: g.MaxViewDistance,
		Scene:           g.Scene,
	})
	if err != nil {
		return nil, err
	}
	logInfo(w.Info())
	return w, nil
}

func logInfo(info backend.Info) {
	debugMsg("PROVIDER", fmt.Sprintf("%s backend ready: scene=%q endpoint=%s (%v)",
		info.Kind, info.Scene, info.Endpoint, info.InitTime.Round(time.Millisecond)))
}
