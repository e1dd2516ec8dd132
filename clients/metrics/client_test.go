package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOnStatusChange(t *testing.T) {

	t.Run("CountsJobTransitionsByStatus", func(t *testing.T) {

		observer := NewObserver(prometheus.NewRegistry())
		now := time.Now()

		// act
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "abc", JobID: "build", OldStatus: "pending", NewStatus: "running", Timestamp: now})
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "abc", JobID: "build", OldStatus: "running", NewStatus: "failed", Timestamp: now.Add(time.Second)})
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "abc", JobID: "test", OldStatus: "pending", NewStatus: "skipped", Timestamp: now.Add(time.Second)})

		assert.Equal(t, 1.0, testutil.ToFloat64(observer.jobTransitions.WithLabelValues("running")))
		assert.Equal(t, 1.0, testutil.ToFloat64(observer.jobTransitions.WithLabelValues("failed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(observer.jobTransitions.WithLabelValues("skipped")))
		assert.Equal(t, 1, testutil.CollectAndCount(observer.jobDuration))
	})

	t.Run("TracksActivePipelinesUntilTerminal", func(t *testing.T) {

		observer := NewObserver(prometheus.NewRegistry())
		now := time.Now()

		// act
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "abc", OldStatus: "queued", NewStatus: "running", Timestamp: now})
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "def", OldStatus: "queued", NewStatus: "running", Timestamp: now})
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "abc", OldStatus: "running", NewStatus: "succeeded", Timestamp: now.Add(time.Minute)})

		assert.Equal(t, 1.0, testutil.ToFloat64(observer.activePipelines))
		assert.Equal(t, 2.0, testutil.ToFloat64(observer.pipelineTransitions.WithLabelValues("running")))
		assert.Equal(t, 1.0, testutil.ToFloat64(observer.pipelineTransitions.WithLabelValues("succeeded")))
	})

	t.Run("DoesNotDecrementActivePipelinesForCancelledQueuedPipeline", func(t *testing.T) {

		observer := NewObserver(prometheus.NewRegistry())

		// act
		observer.OnStatusChange(context.Background(), api.StatusEvent{PipelineID: "abc", OldStatus: "queued", NewStatus: "cancelled", Timestamp: time.Now()})

		assert.Equal(t, 0.0, testutil.ToFloat64(observer.activePipelines))
	})
}
