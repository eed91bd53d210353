package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/streamgear/internal/events"
	"github.com/smazurov/streamgear/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	sessionID := "sse-test-session"
	metrics.DeleteSession(sessionID)
	defer metrics.DeleteSession(sessionID)

	metrics.SetProgress(sessionID, metrics.Progress{Frame: 90, FPS: 30, DroppedFrames: 5, DuplicateFrames: 2})
	metrics.AddFrameFed(sessionID, 64)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	select {
	case <-mock.published:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		sme, ok := ev.(events.SessionMetricsEvent)
		if !ok || sme.SessionID != sessionID {
			continue
		}
		found = true
		want := events.SessionMetricsEvent{
			SessionID:       sessionID,
			Frame:           90,
			FPS:             30,
			DroppedFrames:   5,
			DuplicateFrames: 2,
			FramesFed:       1,
		}
		if sme != want {
			t.Errorf("event = %+v, want %+v", sme, want)
		}
		break
	}
	if !found {
		t.Error("expected SessionMetricsEvent for test session")
	}
}

func TestSSEExporterNoMetrics(t *testing.T) {
	sessionID := "sse-no-metrics-test"
	metrics.DeleteSession(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if sme, ok := ev.(events.SessionMetricsEvent); ok && sme.SessionID == sessionID {
			t.Error("expected no events for deleted session")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	sessionID := "sse-idempotent-test"
	metrics.SetProgress(sessionID, metrics.Progress{FPS: 30})
	defer metrics.DeleteSession(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	if countAfterWait := len(mock.getEvents()); countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	sessionID := "sse-stop-before-start-test"
	metrics.SetProgress(sessionID, metrics.Progress{FPS: 45})
	defer metrics.DeleteSession(sessionID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Stop()

	exporter.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypes(t *testing.T) {
	if _, ok := GetEventTypes()["session-metrics"]; !ok {
		t.Error("expected session-metrics event type")
	}
}
