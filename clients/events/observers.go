package events

import (
	"context"
	"sync"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLoggingObserver logs every transition with the global zerolog logger
func NewLoggingObserver() Observer {
	return ObserverFunc(func(ctx context.Context, event api.StatusEvent) {

		var e *zerolog.Event
		switch event.NewStatus {
		case string(api.JobStatusFailed):
			e = log.Warn()
		default:
			e = log.Info()
		}

		e = e.Str("pipeline", event.PipelineID).
			Str("oldStatus", event.OldStatus).
			Str("newStatus", event.NewStatus)

		if event.Message != "" {
			e = e.Str("message", event.Message)
		}

		if event.IsJobEvent() {
			e.Str("job", event.JobID).Int("attempt", event.Attempt).Msgf("[%v] Job %v", event.JobID, event.NewStatus)
			return
		}

		e.Msgf("[%v] Pipeline %v", event.PipelineID, event.NewStatus)
	})
}

// Recorder keeps every event it observes, for the http api and for tests
type Recorder struct {
	mu     sync.RWMutex
	events []api.StatusEvent
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnStatusChange records the event
func (r *Recorder) OnStatusChange(ctx context.Context, event api.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the recorded events of a pipeline, or of all pipelines when pipelineID is empty
func (r *Recorder) Events(pipelineID string) []api.StatusEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := []api.StatusEvent{}
	for _, e := range r.events {
		if pipelineID == "" || e.PipelineID == pipelineID {
			events = append(events, e)
		}
	}
	return events
}

// Count returns how often a job or pipeline (jobID empty) transitioned into status
func (r *Recorder) Count(pipelineID, jobID, status string) int {
	count := 0
	for _, e := range r.Events(pipelineID) {
		if e.JobID == jobID && e.NewStatus == status {
			count++
		}
	}
	return count
}
