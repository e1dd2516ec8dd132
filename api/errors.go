package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a status change isn't allowed by the state machine
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPipelineNotFound is returned for unknown pipeline ids
	ErrPipelineNotFound = errors.New("pipeline not found")
	// ErrJobNotFound is returned for unknown job ids
	ErrJobNotFound = errors.New("job not found")
	// ErrArtifactNotFound is returned for unknown artifact ids
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrUnknownPlatform is returned when no executor is registered for a platform
	ErrUnknownPlatform = errors.New("unknown ci platform")
)

// DefinitionError rejects a pipeline definition before anything gets executed
type DefinitionError struct {
	PipelineName string
	JobID        string
	GateID       string
	Reason       string
}

func (e *DefinitionError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid pipeline definition")
	if e.PipelineName != "" {
		fmt.Fprintf(&sb, " %q", e.PipelineName)
	}
	if e.JobID != "" {
		fmt.Fprintf(&sb, " (job %v)", e.JobID)
	}
	if e.GateID != "" {
		fmt.Fprintf(&sb, " (gate %v)", e.GateID)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	return sb.String()
}

// JobExecutionFailure is a failed attempt, or the final failure once retries are exhausted
type JobExecutionFailure struct {
	PipelineID string
	JobID      string
	Attempts   int
	Err        error
}

func (e *JobExecutionFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("job %v of pipeline %v failed after %v attempt(s)", e.JobID, e.PipelineID, e.Attempts)
	}
	return fmt.Sprintf("job %v of pipeline %v failed after %v attempt(s): %v", e.JobID, e.PipelineID, e.Attempts, e.Err)
}

func (e *JobExecutionFailure) Unwrap() error {
	return e.Err
}

// GateViolation fails a pipeline whose jobs all succeeded but whose blocking gates did not pass
type GateViolation struct {
	PipelineID string
	Stage      GateStage
	GateIDs    []string
}

func (e *GateViolation) Error() string {
	return fmt.Sprintf("pipeline %v violated %v quality gate(s): %v", e.PipelineID, e.Stage, strings.Join(e.GateIDs, ", "))
}

// RolloutFailure halts a rollout; RolledBack is set when the rollback step has been applied
type RolloutFailure struct {
	PipelineID string
	Step       string
	RolledBack bool
	Err        error
}

func (e *RolloutFailure) Error() string {
	msg := fmt.Sprintf("rollout of pipeline %v failed at step %v", e.PipelineID, e.Step)
	if e.RolledBack {
		msg += " (rolled back)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RolloutFailure) Unwrap() error {
	return e.Err
}
