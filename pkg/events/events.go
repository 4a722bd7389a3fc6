package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of deployment event
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunCompleted    EventType = "run.completed"
	EventStageEntered    EventType = "stage.entered"
	EventStageFailed     EventType = "stage.failed"
	EventBackupCreated   EventType = "backup.created"
	EventSlotStarted     EventType = "slot.started"
	EventSlotStopped     EventType = "slot.stopped"
	EventValidationDone  EventType = "validation.completed"
	EventTrafficSwitched EventType = "traffic.switched"
	EventTrafficReverted EventType = "traffic.reverted"
	EventRollbackStarted EventType = "rollback.started"
)

// Event represents one deployment lifecycle event
type Event struct {
	ID        string
	Type      EventType
	RunID     string
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans deployment events out to subscribers. Publishing never
// blocks the deployment control flow: a subscriber that cannot keep up
// misses events rather than stalling the run.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for distribution
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// Emit builds and publishes an event in one call
func (b *Broker) Emit(eventType EventType, runID, message string, metadata map[string]string) {
	b.Publish(&Event{
		Type:     eventType,
		RunID:    runID,
		Message:  message,
		Metadata: metadata,
	})
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}
