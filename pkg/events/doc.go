/*
Package events provides an in-memory event broker for the worker fabric's
pub/sub messaging.

The events package implements a lightweight, non-blocking event bus used by
the supervisor to broadcast worker lifecycle events (spawn, restart, exit)
and by the scheduler to broadcast lock conflicts and crawl outcomes, to any
interested subscriber — currently the supervisor command's logging sink,
which writes each event to the structured log.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventWorkerExited:
				// ...
			}
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventWorkerSpawned,
		Message: "processing-0 started",
		Metadata: map[string]string{"worker_id": "processing-0"},
	})

Publish hands events to a 100-slot buffered channel; it waits only while
that buffer is full and the broker is running. A single broadcast goroutine
fans events out to each subscriber's own buffered channel. A subscriber with
a full buffer silently misses events rather than stalling the broadcaster — this is a best-effort notification channel, not a
durable log; nothing in the worker fabric depends on an event being seen.
*/
package events
