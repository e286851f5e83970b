package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("stats")

	b.Publish(Event{Kind: KindExecuted, JobID: "job-a", Timestamp: time.Now()})

	select {
	case evt := <-ch:
		if evt.JobID != "job-a" {
			t.Fatalf("got job id %q, want job-a", evt.JobID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	b := New(nil)
	a := b.Subscribe("a")
	c := b.Subscribe("c")

	b.Publish(Event{Kind: KindExecuted, JobID: "job-a"})

	for name, ch := range map[string]<-chan Event{"a": a, "c": c} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never received the event", name)
		}
	}
}

func TestPublishDropsOldestWhenSubscriberBufferFull(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("slow")

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Kind: KindExecuted, JobID: "job-a", Message: string(rune('a' + i%26))})
	}

	if got := b.DroppedCount("slow"); got == 0 {
		t.Fatalf("expected some dropped events, got 0")
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer to remain full at %d, got %d", subscriberBuffer, len(ch))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("temp")
	b.Unsubscribe("temp")

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}
