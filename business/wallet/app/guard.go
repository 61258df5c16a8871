package app

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

// Guard answers whether the connection is usable on the required chain and
// drives the corrective action when it is not.
type Guard struct {
	bridge    *Bridge
	switching atomic.Bool
}

func NewGuard(bridge *Bridge) *Guard {
	return &Guard{bridge: bridge}
}

// IsReady reports connected and on the required chain.
func (g *Guard) IsReady() bool {
	st := g.bridge.tracker.Get()
	return st.IsConnected && st.IsCorrectNetwork
}

func (g *Guard) NeedsConnection() bool {
	return !g.bridge.tracker.Get().IsConnected
}

func (g *Guard) NeedsNetworkSwitch() bool {
	st := g.bridge.tracker.Get()
	return st.IsConnected && !st.IsCorrectNetwork
}

// EnsureReady returns true when ready. Otherwise it starts a connect or a
// network switch in the background and returns false; callers re-check
// after the next state change.
func (g *Guard) EnsureReady(ctx context.Context) bool {
	st := g.bridge.tracker.Get()
	if st.IsConnected && st.IsCorrectNetwork {
		return true
	}

	// Keep the caller's trace but not its cancellation: the action
	// outlives this call.
	span := trace.SpanFromContext(ctx)

	if !st.IsConnected {
		g.bridge.goAsync(func(bctx context.Context) {
			g.bridge.Connect(trace.ContextWithSpan(bctx, span))
		})
		return false
	}

	if g.switching.CompareAndSwap(false, true) {
		started := g.bridge.goAsync(func(bctx context.Context) {
			defer g.switching.Store(false)
			g.bridge.SwitchNetwork(trace.ContextWithSpan(bctx, span))
		})
		if !started {
			g.switching.Store(false)
		}
	}
	return false
}
