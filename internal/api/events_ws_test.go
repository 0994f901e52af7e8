package api

import (
	"testing"

	"nvrd/internal/detect"
)

// eventHub keys its subscriber map on *websocket.Conn but never dereferences
// it, so tests can subscribe/publish/unsubscribe without a real connection.

func TestEventHubPublishDeliversToSubscriber(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe(nil)

	h.publish(liveEvent{Type: "camera_state", CameraID: 1, State: "healthy"})

	select {
	case ev := <-ch:
		if ev.CameraID != 1 || ev.State != "healthy" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected subscriber to receive the published event")
	}
}

func TestEventHubUnsubscribeClosesChannel(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe(nil)
	h.unsubscribe(nil)

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestEventHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe(nil)

	// Fill the subscriber's buffer without draining it, then publish one
	// more than it can hold; this must not block the caller.
	for i := 0; i < cap(ch)+5; i++ {
		h.publish(liveEvent{CameraID: uint(i)})
	}

	if len(ch) != cap(ch) {
		t.Fatalf("expected channel to stay at capacity %d, got %d", cap(ch), len(ch))
	}
}

func TestPublishMotionIntervalSetsFields(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe(nil)
	s := &Server{eventHub: h}

	s.NotifyMotionInterval(detect.MotionInterval{CameraID: 7, Reason: "motion"})

	select {
	case ev := <-ch:
		if ev.Type != "motion_interval" || ev.CameraID != 7 || ev.Detail != "motion" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected a motion_interval event")
	}
}
