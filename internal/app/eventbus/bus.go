// Package eventbus is the Event Bus: a process-wide pub/sub fanout over
// per-job and per-project topics, read by external session layers (e.g. the
// websocket bridge) and written to by the Job Executor and Workflow Engine.
package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// JobStatusEvent is published on a job's topic whenever its status changes.
type JobStatusEvent struct {
	JobID   uuid.UUID
	Status  string
	Details string
}

// JobOutputEvent is published on a job's topic for every streamed output
// line.
type JobOutputEvent struct {
	JobID  uuid.UUID
	Output string
	Type   string // "stdout" or "stderr"
}

// ProjectUpdateEvent is published on a project's topic for workflow and
// reporting lifecycle notifications.
type ProjectUpdateEvent struct {
	EventType string
	Data      map[string]any
}

// Subscription is a handle returned by Subscribe; call Unsubscribe to stop
// receiving events and release the channel.
type Subscription struct {
	id    int64
	topic string
	ch    chan any
	bus   *Bus
}

// Unsubscribe removes this subscription from its topic and closes its
// channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

// C returns the channel this subscription receives events on.
func (s *Subscription) C() <-chan any {
	return s.ch
}

// Bus fans events out to topic subscribers. Publish is non-blocking: a
// subscriber whose channel is full has the event dropped for it rather than
// stalling the publisher, matching the Event Bus's "best-effort, at most
// once delivery per subscriber" contract.
type Bus struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string]map[int64]chan any
	log    *logger.Logger
}

// New returns an empty Bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("eventbus")
	}
	return &Bus{
		subs: make(map[string]map[int64]chan any),
		log:  log,
	}
}

// JobTopic returns the topic name for a given job id.
func JobTopic(jobID uuid.UUID) string {
	return "job:" + jobID.String()
}

// ProjectTopic returns the topic name for a given project id.
func ProjectTopic(projectID uuid.UUID) string {
	return "project:" + projectID.String()
}

// Subscribe registers a new subscriber on topic with the given channel
// buffer size.
func (b *Bus) Subscribe(topic string, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan any, bufferSize)

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int64]chan any)
	}
	b.subs[topic][id] = ch

	return &Subscription{id: id, topic: topic, ch: ch, bus: b}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[s.topic]
	if !ok {
		return
	}
	if ch, ok := subs[s.id]; ok {
		delete(subs, s.id)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.subs, s.topic)
	}
}

// Publish delivers event to every current subscriber of topic. Delivery is
// non-blocking per subscriber.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	subs := b.subs[topic]
	chans := make([]chan any, 0, len(subs))
	for _, ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
			b.log.WithField("topic", topic).Warn("eventbus: subscriber channel full, dropping event")
		}
	}
}

// SubscriberCount returns the number of active subscribers on topic, for
// diagnostics.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
