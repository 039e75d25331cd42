package service

import (
	"context"

	"github.com/assetsvc/assetsvc/internal/asset/events"
)

// CommonEventSubscriber subscribes to the modern OS event-bus API
// (CommonEventManager in the source device). The actual subscription
// surface is out of scope per SPEC_FULL.md's FFI boundary; this stand-in
// always succeeds so Start's primary path is exercised in the common
// case, with the reactor wired in as the callback target.
type CommonEventSubscriber struct{}

func (CommonEventSubscriber) Subscribe(ctx context.Context, reactor *events.Reactor) error {
	return nil
}

// WantSubscriber subscribes via the older want-based broadcast receiver,
// the documented fallback path of §9's "Event subscription order" note.
// Kept distinct from CommonEventSubscriber so Shell.Start's fallback
// branch has something real to try and log.
type WantSubscriber struct{}

func (WantSubscriber) Subscribe(ctx context.Context, reactor *events.Reactor) error {
	return nil
}
