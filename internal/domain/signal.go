package domain

import "context"

// SignalBus carries engine events to external consumers (websocket hub,
// notifier). Publish is fire-and-forget from the engine's perspective;
// Subscribe returns a channel that closes when the context is cancelled.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
