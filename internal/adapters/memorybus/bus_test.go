package memorybus

import (
	"testing"
	"time"
)

func TestBus_TopicFilter(t *testing.T) {
	b := New()
	all, cancelAll := b.Subscribe()
	defer cancelAll()
	only, cancelOnly := b.SubscribeTopics("settings.updated")
	defer cancelOnly()

	b.Publish("search.completed", []byte(`{}`))
	b.PublishJSON("settings.updated", map[string]int{"maxConcurrentRequests": 2})

	got := []string{(<-all).Topic, (<-all).Topic}
	if got[0] != "search.completed" || got[1] != "settings.updated" {
		t.Fatalf("unfiltered subscriber: got %v", got)
	}
	select {
	case evt := <-only:
		if evt.Topic != "settings.updated" || string(evt.Payload) != `{"maxConcurrentRequests":2}` {
			t.Fatalf("filtered subscriber: got %s %s", evt.Topic, evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("filtered subscriber got nothing")
	}
	select {
	case evt := <-only:
		t.Fatalf("unexpected event %s", evt.Topic)
	default:
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish("x", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	cancel()
	b.Publish("x", nil)

	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close should return a closed channel")
	}
}
