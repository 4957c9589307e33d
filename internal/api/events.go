package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/lednode/internal/events"
)

const eventsPath = "/api/events"

// registerSSERoutes streams connectivity, effect and recovery events.
func (s *Server) registerSSERoutes() {
	if s.options.EventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        eventsPath,
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of connectivity changes, effect changes and loop recoveries",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connectivity-changed": events.ConnectivityChangedEvent{},
		"effect-changed":       events.EffectChangedEvent{},
		"recovery":             events.RecoveryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan events.Event, 10)

		bus := s.options.EventBus
		unsubscribers := []func(){
			bus.Subscribe(func(e events.ConnectivityChangedEvent) { forward(eventCh, e) }),
			bus.Subscribe(func(e events.EffectChangedEvent) { forward(eventCh, e) }),
			bus.Subscribe(func(e events.RecoveryEvent) { forward(eventCh, e) }),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Tell the client the stream is live and what the link looks like.
		hello := events.ConnectivityChangedEvent{Timestamp: time.Now(), Transport: s.options.Transport}
		if s.options.Network != nil {
			hello.Connected = s.options.Network.IsConnected(ctx)
		}
		if err := send.Data(hello); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

// forward drops the event when the client is not keeping up.
func forward(ch chan<- events.Event, e events.Event) {
	select {
	case ch <- e:
	default:
	}
}
