package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_PublishDeliversToSubscriber(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{Type: EventWorkerSpawned, Message: "processing-0 started"})

	select {
	case evt := <-sub:
		assert.Equal(t, EventWorkerSpawned, evt.Type)
		assert.Equal(t, "processing-0 started", evt.Message)
		assert.False(t, evt.Timestamp.IsZero(), "Publish should stamp a zero Timestamp")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroker_FanOutToMultipleSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	subA := broker.Subscribe()
	subB := broker.Subscribe()
	defer broker.Unsubscribe(subA)
	defer broker.Unsubscribe(subB)

	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(&Event{Type: EventSchedulerCrawlDone})

	for _, sub := range []Subscriber{subA, subB} {
		select {
		case evt := <-sub:
			assert.Equal(t, EventSchedulerCrawlDone, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBroker_UnsubscribeStopsDelivery(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	broker.Publish(&Event{Type: EventSupervisorShutdown})

	_, open := <-sub
	assert.False(t, open, "channel should be closed after Unsubscribe")
}

func TestBroker_PublishAfterStopDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	broker.Stop()

	done := make(chan struct{})
	go func() {
		broker.Publish(&Event{Type: EventWorkerExited})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after broker was stopped")
	}
}
