package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/streamgear/internal/events"
	"github.com/smazurov/streamgear/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes session metrics on the event bus.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	for sessionID, m := range metrics.GetAllSessions() {
		s.eventBus.Publish(events.SessionMetricsEvent{
			SessionID:       sessionID,
			Frame:           m.Frame,
			FPS:             m.FPS,
			Speed:           m.Speed,
			DroppedFrames:   m.DroppedFrames,
			DuplicateFrames: m.DuplicateFrames,
			FramesFed:       m.FramesFed,
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"session-metrics": events.SessionMetricsEvent{},
	}
}
