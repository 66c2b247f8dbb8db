package eventbus

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPublishSubscribeDelivery(t *testing.T) {
	bus := New(nil)
	jobID := uuid.New()
	topic := JobTopic(jobID)

	sub := bus.Subscribe(topic, 4)
	defer sub.Unsubscribe()

	bus.Publish(topic, JobStatusEvent{JobID: jobID, Status: "running"})

	select {
	case ev := <-sub.C():
		status, ok := ev.(JobStatusEvent)
		if !ok || status.Status != "running" {
			t.Fatalf("got unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	bus := New(nil)
	bus.Publish("job:none", JobStatusEvent{Status: "queued"})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(nil)
	topic := "project:test"
	sub := bus.Subscribe(topic, 2)
	sub.Unsubscribe()

	if n := bus.SubscriberCount(topic); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}

	bus.Publish(topic, ProjectUpdateEvent{EventType: "workflow_status"})
}

func TestPublishDropsWhenChannelFull(t *testing.T) {
	bus := New(nil)
	topic := "job:full"
	sub := bus.Subscribe(topic, 1)
	defer sub.Unsubscribe()

	bus.Publish(topic, JobOutputEvent{Output: "one"})
	bus.Publish(topic, JobOutputEvent{Output: "two"})

	ev := <-sub.C()
	out, ok := ev.(JobOutputEvent)
	if !ok || out.Output != "one" {
		t.Fatalf("expected first event to survive, got %#v", ev)
	}

	select {
	case extra := <-sub.C():
		t.Fatalf("expected no second event, got %#v", extra)
	default:
	}
}
