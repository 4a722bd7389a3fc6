/*
Package events provides an in-memory event broker for deployment lifecycle
notifications.

The broker broadcasts every published event to all subscribers with
non-blocking delivery, so the deployment control flow is never stalled by a
slow consumer.

# Architecture

	Publisher (orchestrator)
	     │
	     ▼
	Event Channel (buffer: 100)
	     │
	     ▼
	Broadcast Loop
	     │
	     ▼
	Subscriber Channels (buffer: 50 each, overflow dropped)

# Event Types

Run lifecycle:
  - run.started, run.completed
  - stage.entered, stage.failed

Component activity:
  - backup.created
  - slot.started, slot.stopped
  - validation.completed
  - traffic.switched, traffic.reverted
  - rollback.started

# Subscribers

The deploy command subscribes to render progress lines as the run moves
through its stages. Events carry the run ID so a subscriber can follow one
run among many across a process lifetime.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s %s\n", event.Type, event.Message)
		}
	}()

	broker.Emit(events.EventRunStarted, runID, "deployment started", nil)

Delivery is best-effort: a subscriber whose buffer is full misses events
rather than blocking the publisher. Subscribers that need a complete record
should read the persisted run audit trail instead.
*/
package events
