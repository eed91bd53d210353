package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamDroppedEvent, 1)

	unsub := bus.Subscribe(func(e StreamDroppedEvent) {
		received <- e
	})
	defer unsub()

	event := StreamDroppedEvent{
		SessionID:  "abc",
		Index:      1,
		Resolution: "unxun",
		Reason:     "invalid resolution",
		Timestamp:  "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got != event {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan SessionStateEvent, 1)
	received2 := make(chan SessionStateEvent, 1)

	unsub1 := bus.Subscribe(func(e SessionStateEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e SessionStateEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(SessionStateEvent{SessionID: "abc", State: "running"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ParamRejectedEvent, 1)

	unsub := bus.Subscribe(func(e ParamRejectedEvent) {
		received <- e
	})

	bus.Publish(ParamRejectedEvent{Key: "-bpp"})
	<-received

	unsub()

	bus.Publish(ParamRejectedEvent{Key: "-gop"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	manifestReceived := make(chan bool, 1)
	stateReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ ManifestReadyEvent) {
		manifestReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ SessionStateEvent) {
		stateReceived <- true
	})
	defer unsub2()

	bus.Publish(ManifestReadyEvent{Path: "/tmp/out/dash.mpd"})
	<-manifestReceived

	select {
	case <-stateReceived:
		t.Fatal("State subscriber should NOT have received ManifestReadyEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(SessionStateEvent{State: "terminated"})
	<-stateReceived

	select {
	case <-manifestReceived:
		t.Fatal("Manifest subscriber should NOT have received SessionStateEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ SessionMetricsEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(SessionMetricsEvent{SessionID: "abc", FramesFed: int64(i)})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"ParamRejected", ParamRejectedEvent{Key: "-bpp"}},
		{"StreamDropped", StreamDroppedEvent{Index: 2}},
		{"SessionState", SessionStateEvent{State: "running"}},
		{"ManifestReady", ManifestReadyEvent{Video: 1}},
		{"SessionMetrics", SessionMetricsEvent{Frame: 10}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case ParamRejectedEvent:
				unsub = bus.Subscribe(func(e ParamRejectedEvent) { received <- e })
			case StreamDroppedEvent:
				unsub = bus.Subscribe(func(e StreamDroppedEvent) { received <- e })
			case SessionStateEvent:
				unsub = bus.Subscribe(func(e SessionStateEvent) { received <- e })
			case ManifestReadyEvent:
				unsub = bus.Subscribe(func(e ManifestReadyEvent) { received <- e })
			case SessionMetricsEvent:
				unsub = bus.Subscribe(func(e SessionMetricsEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_NilIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(SessionStateEvent{State: "running"})
	unsub := bus.Subscribe(func(SessionStateEvent) { t.Fatal("nil bus delivered an event") })
	unsub()
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
		key   string
	}{
		{"ParamRejectedEvent", ParamRejectedEvent{Key: "-gop", Value: "x", Reason: "not an integer"}, "reason"},
		{"ManifestReadyEvent", ManifestReadyEvent{Path: "/srv/dash/out.mpd", Video: 2, Audio: 1}, "video_representations"},
		{"SessionStateEvent", SessionStateEvent{SessionID: "abc", Mode: "real_time", State: "running"}, "mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if _, ok := result[tt.key]; !ok {
				t.Fatalf("Expected key %q in %s", tt.key, data)
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[ManifestReadyEvent](bus, ch)
	defer unsub()

	event := ManifestReadyEvent{Path: "/srv/dash/out.mpd", Video: 1}
	bus.Publish(event)

	received := <-ch
	got, ok := received.(ManifestReadyEvent)
	if !ok {
		t.Fatalf("Expected ManifestReadyEvent, got %T", received)
	}
	if got.Path != event.Path {
		t.Errorf("Expected path %s, got %s", event.Path, got.Path)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	unsub := SubscribeToChannel[SessionStateEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(SessionStateEvent{State: "created"})
		done <- true
	}()

	<-done
}
