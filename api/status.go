package api

import (
	"fmt"
)

// JobStatus is the lifecycle status of a single job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true once a job can no longer change status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded,
		JobStatusFailed,
		JobStatusSkipped,
		JobStatusCancelled:
		return true
	}
	return false
}

// PipelineStatus is the lifecycle status of a pipeline run
type PipelineStatus string

const (
	PipelineStatusCreated   PipelineStatus = "created"
	PipelineStatusQueued    PipelineStatus = "queued"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusGateCheck PipelineStatus = "gate-check"
	PipelineStatusDeploying PipelineStatus = "deploying"
	PipelineStatusSucceeded PipelineStatus = "succeeded"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
)

// IsTerminal returns true for succeeded, failed and cancelled pipelines
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusSucceeded,
		PipelineStatusFailed,
		PipelineStatusCancelled:
		return true
	}
	return false
}

var allowedPipelineTransitions = map[PipelineStatus]map[PipelineStatus]struct{}{
	PipelineStatusCreated: {
		PipelineStatusQueued: {},
	},
	PipelineStatusQueued: {
		PipelineStatusRunning:   {},
		PipelineStatusCancelled: {},
	},
	PipelineStatusRunning: {
		PipelineStatusGateCheck: {},
		PipelineStatusSucceeded: {},
		PipelineStatusFailed:    {},
		PipelineStatusCancelled: {},
	},
	PipelineStatusGateCheck: {
		PipelineStatusDeploying: {},
		PipelineStatusSucceeded: {},
		PipelineStatusFailed:    {},
	},
	PipelineStatusDeploying: {
		PipelineStatusSucceeded: {},
		PipelineStatusFailed:    {},
	},
	PipelineStatusSucceeded: {},
	PipelineStatusFailed:    {},
	PipelineStatusCancelled: {},
}

var allowedJobTransitions = map[JobStatus]map[JobStatus]struct{}{
	JobStatusPending: {
		JobStatusRunning:   {},
		JobStatusSkipped:   {},
		JobStatusCancelled: {},
	},
	JobStatusRunning: {
		JobStatusSucceeded: {},
		JobStatusFailed:    {},
		JobStatusCancelled: {},
	},
	JobStatusSucceeded: {},
	JobStatusFailed:    {},
	JobStatusSkipped:   {},
	JobStatusCancelled: {},
}

// ValidatePipelineTransition returns ErrInvalidTransition when from -> to is not part of the pipeline state machine
func ValidatePipelineTransition(from, to PipelineStatus) error {
	targets, ok := allowedPipelineTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown pipeline status %q", ErrInvalidTransition, from)
	}
	if _, ok := targets[to]; !ok {
		return fmt.Errorf("%w: pipeline %v -> %v", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateJobTransition returns ErrInvalidTransition when from -> to is not part of the job state machine
func ValidateJobTransition(from, to JobStatus) error {
	targets, ok := allowedJobTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown job status %q", ErrInvalidTransition, from)
	}
	if _, ok := targets[to]; !ok {
		return fmt.Errorf("%w: job %v -> %v", ErrInvalidTransition, from, to)
	}
	return nil
}

// ReducePipelineStatus derives the pipeline status from the statuses of its jobs; jobs that haven't finished yet keep
// the pipeline running, a failed non-optional job fails it and a cancelled job cancels it
func ReducePipelineStatus(jobs []*Job) PipelineStatus {

	running := false
	failed := false
	cancelled := false

	for _, j := range jobs {
		switch j.Status {
		case JobStatusPending, JobStatusRunning:
			running = true
		case JobStatusFailed:
			if !j.Optional {
				failed = true
			}
		case JobStatusCancelled:
			cancelled = true
		}
	}

	switch {
	case running:
		return PipelineStatusRunning
	case failed:
		return PipelineStatusFailed
	case cancelled:
		return PipelineStatusCancelled
	}

	return PipelineStatusSucceeded
}
