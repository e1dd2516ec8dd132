package webhook

import (
	"context"
	"sync"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/rs/zerolog/log"
)

const statusEventType = "status-change"

// EventSink forwards status events to a webhook from a single goroutine, so slow endpoints don't hold up the
// pipelines publishing them; events are dropped when the queue is full
type EventSink struct {
	client Client
	queue  chan api.StatusEvent
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewEventSink starts the goroutine posting queued events
func NewEventSink(client Client, queueSize int) *EventSink {
	if queueSize <= 0 {
		queueSize = 100
	}

	s := &EventSink{
		client: client,
		queue:  make(chan api.StatusEvent, queueSize),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// OnStatusChange queues the event; events arriving after Close are dropped
func (s *EventSink) OnStatusChange(ctx context.Context, event api.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Warn().Msgf("[%v] Webhook sink is closed, dropping %v event", event.PipelineID, event.NewStatus)
		return
	}

	select {
	case s.queue <- event:
	default:
		log.Warn().Msgf("[%v] Webhook queue is full, dropping %v event", event.PipelineID, event.NewStatus)
	}
}

func (s *EventSink) run() {
	defer s.wg.Done()

	for event := range s.queue {
		if err := s.client.Post(context.Background(), statusEventType, event); err != nil {
			log.Warn().Err(err).Msgf("[%v] Failed sending %v event to webhook", event.PipelineID, event.NewStatus)
		}
	}
}

// Close stops accepting events and waits until the queued ones are sent
func (s *EventSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
