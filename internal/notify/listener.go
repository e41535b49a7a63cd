package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/miko-labs/futurify/internal/domain"
)

// Listener consumes engine events from the signal bus and forwards them to
// the notifier. It runs until the context is cancelled.
type Listener struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewListener creates a Listener over the given bus and notifier.
func NewListener(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// subscribedEvents is the set of bus channels the listener consumes. Each
// engine event type publishes on a channel of the same name.
var subscribedEvents = []domain.EventType{
	domain.EventDeposit,
	domain.EventMarketCreated,
	domain.EventBetPlaced,
	domain.EventMarketClosed,
}

// Run subscribes to every engine event channel and forwards payloads until
// the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, evt := range subscribedEvents {
		ch, err := l.bus.Subscribe(ctx, string(evt))
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", evt, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.consume(ctx, ch)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (l *Listener) consume(ctx context.Context, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var evt domain.Event
			if err := json.Unmarshal(payload, &evt); err != nil {
				l.logger.WarnContext(ctx, "notify: bad event payload", slog.String("error", err.Error()))
				continue
			}
			title, message := render(evt)
			if err := l.notifier.Notify(ctx, string(evt.Type), title, message); err != nil {
				l.logger.WarnContext(ctx, "notify: dispatch failed",
					slog.String("event", string(evt.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// render formats an engine event into a human-readable notification. Only
// public fields ever appear: amounts and choices are confidential and never
// travel on the bus in the first place.
func render(evt domain.Event) (title, message string) {
	switch evt.Type {
	case domain.EventDeposit:
		return "Deposit", fmt.Sprintf("Account %s purchased units.", evt.Account)
	case domain.EventMarketCreated:
		return "Market created", fmt.Sprintf("#%d %q opened by %s.", evt.PredictionID, evt.Title, evt.Account)
	case domain.EventBetPlaced:
		return "Bet placed", fmt.Sprintf("Account %s placed a bet on market #%d.", evt.Account, evt.PredictionID)
	case domain.EventMarketClosed:
		return "Market closed", fmt.Sprintf("#%d %q closed; totals are now public.", evt.PredictionID, evt.Title)
	default:
		return string(evt.Type), fmt.Sprintf("Event on market #%d.", evt.PredictionID)
	}
}
