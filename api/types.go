package api

import (
	"time"
)

// CIPlatform identifies the backend a pipeline's jobs are executed on
type CIPlatform string

const (
	CIPlatformDocker CIPlatform = "docker"
	CIPlatformLocal  CIPlatform = "local"
)

// PipelineDefinition is what gets submitted to the orchestrator, either as yaml or as a Go value
type PipelineDefinition struct {
	Name        string              `yaml:"name,omitempty" json:"name,omitempty"`
	Platform    CIPlatform          `yaml:"platform,omitempty" json:"platform,omitempty"`
	Labels      map[string]string   `yaml:"labels,omitempty" json:"labels,omitempty"`
	EnvVars     map[string]string   `yaml:"env,omitempty" json:"env,omitempty"`
	Jobs        []*JobDefinition    `yaml:"jobs,omitempty" json:"jobs,omitempty"`
	Gates       []QualityGate       `yaml:"gates,omitempty" json:"gates,omitempty"`
	Strategy    *DeploymentStrategy `yaml:"deployment,omitempty" json:"deployment,omitempty"`
	Environment Environment         `yaml:"environment,omitempty" json:"environment,omitempty"`
}

// JobDefinition declares a single job and its dependencies
type JobDefinition struct {
	ID          string                `yaml:"id" json:"id"`
	Name        string                `yaml:"name,omitempty" json:"name,omitempty"`
	DependsOn   []string              `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Optional    bool                  `yaml:"optional,omitempty" json:"optional,omitempty"`
	MaxRetries  int                   `yaml:"retries,omitempty" json:"retries,omitempty"`
	Timeout     time.Duration         `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Image       string                `yaml:"image,omitempty" json:"image,omitempty"`
	Shell       string                `yaml:"shell,omitempty" json:"shell,omitempty"`
	WorkDir     string                `yaml:"workDir,omitempty" json:"workDir,omitempty"`
	Commands    []string              `yaml:"commands,omitempty" json:"commands,omitempty"`
	EnvVars     map[string]string     `yaml:"env,omitempty" json:"env,omitempty"`
	Artifacts   []ArtifactDeclaration `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	MetricsFile string                `yaml:"metricsFile,omitempty" json:"metricsFile,omitempty"`
}

// ArtifactDeclaration is an output a job promises to produce
type ArtifactDeclaration struct {
	Path string       `yaml:"path" json:"path"`
	Kind ArtifactKind `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// Pipeline is a single run of a pipeline definition
type Pipeline struct {
	ID          string              `json:"id"`
	Name        string              `json:"name,omitempty"`
	Platform    CIPlatform          `json:"platform"`
	Labels      map[string]string   `json:"labels,omitempty"`
	EnvVars     map[string]string   `json:"env,omitempty"`
	Status      PipelineStatus      `json:"status"`
	Jobs        []*Job              `json:"jobs"`
	Gates       []QualityGate       `json:"gates,omitempty"`
	Strategy    *DeploymentStrategy `json:"deployment,omitempty"`
	Environment Environment         `json:"environment,omitempty"`
	GateResult  *GateResult         `json:"gateResult,omitempty"`
	Rollout     *RolloutResult      `json:"rollout,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	FinishedAt  *time.Time          `json:"finishedAt,omitempty"`
}

// Job is a unit of work inside a pipeline run, executed by a platform executor
type Job struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	DependsOn   []string              `json:"dependsOn,omitempty"`
	Optional    bool                  `json:"optional,omitempty"`
	MaxRetries  int                   `json:"maxRetries"`
	RetryCount  int                   `json:"retryCount"`
	Status      JobStatus             `json:"status"`
	Timeout     time.Duration         `json:"timeout,omitempty"`
	Image       string                `json:"image,omitempty"`
	Shell       string                `json:"shell,omitempty"`
	WorkDir     string                `json:"workDir,omitempty"`
	Commands    []string              `json:"commands,omitempty"`
	EnvVars     map[string]string     `json:"env,omitempty"`
	Outputs     []ArtifactDeclaration `json:"outputs,omitempty"`
	MetricsFile string                `json:"metricsFile,omitempty"`
	ArtifactIDs []string              `json:"artifactIds,omitempty"`
	Metrics     map[string]float64    `json:"metrics,omitempty"`
	Message     string                `json:"message,omitempty"`
	StartedAt   *time.Time            `json:"startedAt,omitempty"`
	FinishedAt  *time.Time            `json:"finishedAt,omitempty"`
}

// Attempt returns the 1-based number of the current execution attempt
func (j *Job) Attempt() int {
	return j.RetryCount + 1
}

// Duration returns how long the job has been running, or ran in total once finished
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.FinishedAt == nil {
		return time.Since(*j.StartedAt)
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// ArtifactKind classifies an artifact
type ArtifactKind string

const (
	ArtifactKindBinary ArtifactKind = "binary"
	ArtifactKindReport ArtifactKind = "report"
	ArtifactKindLog    ArtifactKind = "log"
	ArtifactKindImage  ArtifactKind = "image"
)

// IsValid returns false for kinds outside of binary, report, log and image
func (k ArtifactKind) IsValid() bool {
	switch k {
	case ArtifactKindBinary,
		ArtifactKindReport,
		ArtifactKindLog,
		ArtifactKindImage:
		return true
	}
	return false
}

// Artifact is an immutable output of a job; Reference is a content digest when known, the path otherwise
type Artifact struct {
	ID        string       `json:"id"`
	JobID     string       `json:"jobId"`
	Kind      ArtifactKind `json:"kind"`
	Reference string       `json:"reference"`
	Path      string       `json:"path,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ArtifactSpec is how an executor reports an artifact it produced
type ArtifactSpec struct {
	Kind    ArtifactKind
	Path    string
	Digest  string
	Content []byte
}

// JobResult is returned by an executor for a single attempt of a job
type JobResult struct {
	Status    JobStatus
	Artifacts []ArtifactSpec
	Metrics   map[string]float64
	Message   string
}

// GateStage is the point in the pipeline a quality gate applies to
type GateStage string

const (
	GateStagePostTest  GateStage = "post-test"
	GateStagePreDeploy GateStage = "pre-deploy"
)

// Comparator compares a metric with a gate threshold
type Comparator string

const (
	ComparatorLessThan           Comparator = "<"
	ComparatorLessThanOrEqual    Comparator = "<="
	ComparatorGreaterThan        Comparator = ">"
	ComparatorGreaterThanOrEqual Comparator = ">="
	ComparatorEqual              Comparator = "=="
)

// QualityGate is a threshold comparison over a named metric; either Predicate ("coverage >= 80") or
// Metric/Comparator/Threshold is set
type QualityGate struct {
	ID         string     `yaml:"id" json:"id"`
	Stage      GateStage  `yaml:"stage,omitempty" json:"stage,omitempty"`
	Predicate  string     `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	Metric     string     `yaml:"metric,omitempty" json:"metric,omitempty"`
	Comparator Comparator `yaml:"comparator,omitempty" json:"comparator,omitempty"`
	Threshold  float64    `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Blocking   *bool      `yaml:"blocking,omitempty" json:"blocking,omitempty"`
}

// IsBlocking defaults to true when not set
func (g QualityGate) IsBlocking() bool {
	return g.Blocking == nil || *g.Blocking
}

// GetStage defaults to post-test when not set
func (g QualityGate) GetStage() GateStage {
	if g.Stage == "" {
		return GateStagePostTest
	}
	return g.Stage
}

// GateVerdict is the outcome of evaluating a set of gates
type GateVerdict string

const (
	GateVerdictPass GateVerdict = "pass"
	GateVerdictWarn GateVerdict = "warn"
	GateVerdictFail GateVerdict = "fail"
)

// GateResult lists the ids of violated blocking gates and of violated non-blocking gates
type GateResult struct {
	Verdict  GateVerdict `json:"verdict"`
	Violated []string    `json:"violated,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// StrategyType enumerates deployment strategies
type StrategyType string

const (
	StrategyRecreate      StrategyType = "recreate"
	StrategyRollingUpdate StrategyType = "rolling-update"
	StrategyBlueGreen     StrategyType = "blue-green"
	StrategyCanary        StrategyType = "canary"
)

// DeploymentStrategy is a tagged union: Type selects which of the parameter blocks applies
type DeploymentStrategy struct {
	Type        StrategyType             `yaml:"type" json:"type"`
	StepTimeout time.Duration            `yaml:"stepTimeout,omitempty" json:"stepTimeout,omitempty"`
	Rolling     *RollingUpdateParameters `yaml:"rollingUpdate,omitempty" json:"rollingUpdate,omitempty"`
	BlueGreen   *BlueGreenParameters     `yaml:"blueGreen,omitempty" json:"blueGreen,omitempty"`
	Canary      *CanaryParameters        `yaml:"canary,omitempty" json:"canary,omitempty"`
}

// RollingUpdateParameters configures the rolling-update strategy
type RollingUpdateParameters struct {
	BatchSize int `yaml:"batchSize" json:"batchSize"`
}

// BlueGreenParameters configures the blue-green strategy; without manual approval the traffic switch waits for a
// passing health check instead
type BlueGreenParameters struct {
	ManualApproval bool `yaml:"manualApproval,omitempty" json:"manualApproval,omitempty"`
}

// CanaryParameters configures the canary strategy; Gates decide on promotion after the bake time
type CanaryParameters struct {
	Percentage int           `yaml:"percentage" json:"percentage"`
	BakeTime   time.Duration `yaml:"bakeTime,omitempty" json:"bakeTime,omitempty"`
	Gates      []QualityGate `yaml:"gates,omitempty" json:"gates,omitempty"`
}

// Environment describes the deployment target
type Environment struct {
	Name           string `yaml:"name,omitempty" json:"name,omitempty"`
	Capacity       int    `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	HealthCheckURL string `yaml:"healthCheckURL,omitempty" json:"healthCheckURL,omitempty"`
	MetricsURL     string `yaml:"metricsURL,omitempty" json:"metricsURL,omitempty"`
}

// GetCapacity defaults to a single instance
func (e Environment) GetCapacity() int {
	if e.Capacity <= 0 {
		return 1
	}
	return e.Capacity
}

// StepAction is what a deploy step does to the environment
type StepAction string

const (
	StepActionReplace        StepAction = "replace"
	StepActionDeployBatch    StepAction = "deploy-batch"
	StepActionProvisionGreen StepAction = "provision-green"
	StepActionSwitchTraffic  StepAction = "switch-traffic"
	StepActionDeployCanary   StepAction = "deploy-canary"
	StepActionPromote        StepAction = "promote"
	StepActionRollback       StepAction = "rollback"
)

// WaitType is the condition a rollout waits for after a step before continuing
type WaitType string

const (
	WaitNone           WaitType = "none"
	WaitManualApproval WaitType = "manual-approval"
	WaitBakeTimer      WaitType = "bake-timer"
	WaitHealthCheck    WaitType = "health-check"
)

// WaitCondition follows a deploy step; Duration is the bake time for bake-timer waits
type WaitCondition struct {
	Type     WaitType      `json:"type"`
	Duration time.Duration `json:"duration,omitempty"`
}

// RolloutStep is a single step of a rollout plan; Instances is the cumulative number of instances running the new
// version once the step is applied
type RolloutStep struct {
	Name       string        `json:"name"`
	Action     StepAction    `json:"action"`
	Percentage int           `json:"percentage"`
	Instances  int           `json:"instances"`
	Wait       WaitCondition `json:"wait"`
}

// RolloutPlan is the ordered sequence of deploy steps for a strategy
type RolloutPlan struct {
	Strategy StrategyType  `json:"strategy"`
	Steps    []RolloutStep `json:"steps"`
	Rollback *RolloutStep  `json:"rollback,omitempty"`
	// index of the step after which the canary decision is taken, -1 if none
	DecisionAfter int `json:"decisionAfter"`
}

// RolloutStatus is the final outcome of executing a rollout plan
type RolloutStatus string

const (
	RolloutStatusSucceeded  RolloutStatus = "succeeded"
	RolloutStatusFailed     RolloutStatus = "failed"
	RolloutStatusRolledBack RolloutStatus = "rolled-back"
)

// RolloutResult records which steps were applied
type RolloutResult struct {
	Status         RolloutStatus `json:"status"`
	CompletedSteps []string      `json:"completedSteps,omitempty"`
	FailedStep     string        `json:"failedStep,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// StatusEvent is emitted on every pipeline and job status transition; JobID is empty for pipeline transitions
type StatusEvent struct {
	PipelineID string    `json:"pipelineId"`
	JobID      string    `json:"jobId,omitempty"`
	OldStatus  string    `json:"oldStatus"`
	NewStatus  string    `json:"newStatus"`
	Timestamp  time.Time `json:"timestamp"`
	Attempt    int       `json:"attempt,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// IsJobEvent returns true for job transitions
func (e StatusEvent) IsJobEvent() bool {
	return e.JobID != ""
}
