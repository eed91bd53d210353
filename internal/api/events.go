package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/streamgear/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session lifecycle, rejected parameters, dropped renditions and manifest validation",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"param-rejected": events.ParamRejectedEvent{},
		"stream-dropped": events.StreamDroppedEvent{},
		"session-state":  events.SessionStateEvent{},
		"manifest-ready": events.ManifestReadyEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ParamRejectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamDroppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ManifestReadyEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Replay current states so a late client sees every session once.
		for _, st := range s.sessions.List() {
			if err := send.Data(events.SessionStateEvent{
				SessionID: st.ID,
				Mode:      st.Mode,
				State:     st.State,
				ExitCode:  st.ExitCode,
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
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
