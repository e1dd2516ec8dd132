package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/artifactstore"
	"github.com/estafette/estafette-ci-orchestrator/clients/events"
	"github.com/estafette/estafette-ci-orchestrator/clients/executor"
	"github.com/estafette/estafette-ci-orchestrator/clients/obfuscation"
	"github.com/estafette/estafette-ci-orchestrator/services/deployment"
	"github.com/estafette/estafette-ci-orchestrator/services/evaluation"
	"github.com/estafette/estafette-ci-orchestrator/services/scheduler"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
)

// ErrPipelineCanceled is returned from Start for pipelines that got canceled
var ErrPipelineCanceled = errors.New("pipeline canceled")

// Service drives pipeline runs through created, queued, running, gate-check and deploying to a terminal status
//go:generate mockgen -package=pipeline -destination ./mock.go -source=service.go
type Service interface {
	Validate(ctx context.Context, definition *api.PipelineDefinition) error
	Submit(ctx context.Context, definition *api.PipelineDefinition) (*api.Pipeline, error)
	Start(ctx context.Context, pipelineID string) (*api.Pipeline, error)
	StartAsync(ctx context.Context, pipelineID string) (<-chan *api.Pipeline, error)
	Finalize(ctx context.Context, pipelineID string) (*api.Pipeline, error)
	Cancel(ctx context.Context, pipelineID string) error
	GetPipelineStatus(ctx context.Context, pipelineID string) (api.PipelineStatus, error)
	GetPipeline(ctx context.Context, pipelineID string) (*api.Pipeline, error)
	GetPipelines(ctx context.Context) []*api.Pipeline
	GetJobs(ctx context.Context, pipelineID string) ([]*api.Job, error)
	GetArtifacts(ctx context.Context, pipelineID, jobID string) ([]api.Artifact, error)
}

// NewService returns a new pipeline.Service; pipelines without platform run on defaultPlatform
func NewService(eventsClient events.Client, executorRegistry *executor.Registry, schedulerService scheduler.Service, evaluationService evaluation.Service, deploymentService deployment.Service, obfuscationClient obfuscation.Client, defaultPlatform api.CIPlatform, concurrency int) Service {
	return &service{
		eventsClient:      eventsClient,
		executorRegistry:  executorRegistry,
		schedulerService:  schedulerService,
		evaluationService: evaluationService,
		deploymentService: deploymentService,
		obfuscationClient: obfuscationClient,
		defaultPlatform:   defaultPlatform,
		concurrency:       concurrency,
		runs:              map[string]*run{},
	}
}

type service struct {
	eventsClient      events.Client
	executorRegistry  *executor.Registry
	schedulerService  scheduler.Service
	evaluationService evaluation.Service
	deploymentService deployment.Service
	obfuscationClient obfuscation.Client
	defaultPlatform   api.CIPlatform
	concurrency       int

	mu   sync.RWMutex
	runs map[string]*run
}

// run owns everything of a single pipeline run; pipeline is only read or written with mu held
type run struct {
	mu            sync.Mutex
	pipeline      *api.Pipeline
	artifactStore artifactstore.Client
	cancel        context.CancelFunc
	schedulerErr  error

	// set once a cancel got accepted for the running pipeline
	cancelRequested bool
}

func (s *service) Submit(ctx context.Context, definition *api.PipelineDefinition) (*api.Pipeline, error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "SubmitPipeline")
	defer span.Finish()

	if err := s.validate(definition); err != nil {
		span.SetTag("error", true)
		return nil, err
	}

	pipeline := api.NewPipeline(definition)
	if pipeline.Platform == "" {
		pipeline.Platform = s.defaultPlatform
	}
	span.SetTag("pipeline", pipeline.ID)

	if s.obfuscationClient != nil {
		if err := s.obfuscationClient.CollectSecrets(pipeline); err != nil {
			return nil, &api.DefinitionError{PipelineName: definition.Name, Reason: fmt.Sprintf("decrypting secrets failed: %v", err)}
		}
	}

	r := &run{
		pipeline:      pipeline,
		artifactStore: artifactstore.NewClient(pipeline.ID),
	}

	s.mu.Lock()
	s.runs[pipeline.ID] = r
	s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := s.transition(ctx, r, api.PipelineStatusQueued, ""); err != nil {
		return nil, err
	}

	log.Info().Msgf("[%v] Queued pipeline %v with %v jobs on %v", pipeline.ID, pipeline.Name, len(pipeline.Jobs), pipeline.Platform)

	return pipeline.Copy(), nil
}

// Validate runs every check Submit does without queueing a pipeline
func (s *service) Validate(ctx context.Context, definition *api.PipelineDefinition) error {
	return s.validate(definition)
}

// validate rejects a definition before anything gets created
func (s *service) validate(definition *api.PipelineDefinition) error {

	if err := api.ValidateDefinition(definition); err != nil {
		return err
	}

	if err := s.evaluationService.Validate(definition.Gates); err != nil {
		var definitionErr *api.DefinitionError
		if errors.As(err, &definitionErr) {
			definitionErr.PipelineName = definition.Name
		}
		return err
	}

	if err := s.deploymentService.Validate(definition.Strategy); err != nil {
		var definitionErr *api.DefinitionError
		if errors.As(err, &definitionErr) {
			definitionErr.PipelineName = definition.Name
		}
		return err
	}

	platform := definition.Platform
	if platform == "" {
		platform = s.defaultPlatform
	}
	if _, err := s.executorRegistry.Get(platform); err != nil {
		return &api.DefinitionError{PipelineName: definition.Name, Reason: err.Error()}
	}

	return nil
}

// Start runs all jobs, then finalizes the pipeline; it returns the final snapshot and the error that made the pipeline
// fail or get canceled
func (s *service) Start(ctx context.Context, pipelineID string) (*api.Pipeline, error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "RunPipeline")
	defer span.Finish()
	span.SetTag("pipeline", pipelineID)

	r, err := s.getRun(pipelineID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()

	executorClient, err := s.executorRegistry.Get(r.pipeline.Platform)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	if err := s.transition(ctx, r, api.PipelineStatusRunning, ""); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel = cancel

	// the scheduler works on its own copy of the jobs and reports every change back
	work := r.pipeline.Copy()

	r.mu.Unlock()

	log.Info().Msgf("[%v] Starting pipeline %v", pipelineID, work.Name)

	schedulerErr := s.schedulerService.Run(runCtx, scheduler.Request{
		Pipeline:      work,
		Concurrency:   s.concurrency,
		Executor:      executorClient,
		ArtifactStore: r.artifactStore,
		OnJobChange: func(job *api.Job) {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, j := range r.pipeline.Jobs {
				if j.ID == job.ID {
					r.pipeline.Jobs[i] = job
				}
			}
		},
	})

	r.mu.Lock()
	r.schedulerErr = schedulerErr
	r.cancel = nil
	r.mu.Unlock()

	return s.Finalize(ctx, pipelineID)
}

// StartAsync starts a queued pipeline in the background; the channel receives the final snapshot once it's terminal
func (s *service) StartAsync(ctx context.Context, pipelineID string) (<-chan *api.Pipeline, error) {

	status, err := s.GetPipelineStatus(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if status != api.PipelineStatusQueued {
		return nil, fmt.Errorf("%w: pipeline %v is %v, not queued", api.ErrInvalidTransition, pipelineID, status)
	}

	done := make(chan *api.Pipeline, 1)
	go func() {
		defer close(done)

		pipeline, err := s.Start(ctx, pipelineID)
		if err != nil {
			log.Warn().Err(err).Msgf("[%v] Pipeline did not succeed", pipelineID)
		}
		done <- pipeline
	}()

	return done, nil
}

// Finalize reduces the job statuses of a running pipeline whose jobs are all terminal; a succeeded pipeline continues
// with its quality gates and deployment
func (s *service) Finalize(ctx context.Context, pipelineID string) (*api.Pipeline, error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "FinalizePipeline")
	defer span.Finish()
	span.SetTag("pipeline", pipelineID)

	r, err := s.getRun(pipelineID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pipeline.Status != api.PipelineStatusRunning {
		return nil, fmt.Errorf("%w: pipeline %v is %v, not running", api.ErrInvalidTransition, pipelineID, r.pipeline.Status)
	}

	status := api.ReducePipelineStatus(r.pipeline.Jobs)
	if status == api.PipelineStatusSucceeded && (r.cancelRequested || errors.Is(r.schedulerErr, context.Canceled)) {
		// jobs that ignored the cancellation still finished, nothing gets gated or deployed anymore
		status = api.PipelineStatusCancelled
	}

	switch status {
	case api.PipelineStatusRunning:
		return nil, fmt.Errorf("pipeline %v still has unfinished jobs", pipelineID)

	case api.PipelineStatusFailed:
		return s.fail(ctx, r, s.jobFailure(r))

	case api.PipelineStatusCancelled:
		err := fmt.Errorf("%w: %v", ErrPipelineCanceled, pipelineID)
		if r.schedulerErr != nil {
			err = fmt.Errorf("%w: %v", ErrPipelineCanceled, r.schedulerErr)
		}
		r.pipeline.Error = err.Error()
		if transitionErr := s.transition(ctx, r, api.PipelineStatusCancelled, r.pipeline.Error); transitionErr != nil {
			return nil, transitionErr
		}
		return r.pipeline.Copy(), err
	}

	if len(r.pipeline.Gates) == 0 && r.pipeline.Strategy == nil {
		return s.succeed(ctx, r)
	}

	if err := s.transition(ctx, r, api.PipelineStatusGateCheck, ""); err != nil {
		return nil, err
	}

	if violation := s.checkGates(ctx, r); violation != nil {
		return s.fail(ctx, r, violation)
	}

	if r.pipeline.Strategy == nil {
		return s.succeed(ctx, r)
	}

	if err := s.transition(ctx, r, api.PipelineStatusDeploying, ""); err != nil {
		return nil, err
	}

	strategy := *r.pipeline.Strategy
	environment := r.pipeline.Environment

	// queries stay available while the rollout waits for approvals and health checks
	r.mu.Unlock()
	rollout, rolloutErr := s.deploy(ctx, pipelineID, strategy, environment)
	r.mu.Lock()

	r.pipeline.Rollout = &rollout
	if rolloutErr != nil {
		return s.fail(ctx, r, rolloutErr)
	}

	return s.succeed(ctx, r)
}

// checkGates evaluates the post-test gates, then the pre-deploy gates, against the metrics of all jobs; must be
// called with r.mu held
func (s *service) checkGates(ctx context.Context, r *run) *api.GateViolation {

	span, ctx := opentracing.StartSpanFromContext(ctx, "CheckGates")
	defer span.Finish()

	metrics := r.pipeline.Metrics()
	if _, ok := metrics["artifacts"]; !ok {
		if artifacts, err := r.artifactStore.List(ctx); err == nil {
			metrics["artifacts"] = float64(len(artifacts))
		}
	}

	result := api.GateResult{Verdict: api.GateVerdictPass}
	var violation *api.GateViolation

	for _, stage := range []api.GateStage{api.GateStagePostTest, api.GateStagePreDeploy} {
		gates := evaluation.Filter(r.pipeline.Gates, stage)
		if len(gates) == 0 {
			continue
		}

		stageResult := s.evaluationService.Evaluate(gates, metrics)
		result.Violated = append(result.Violated, stageResult.Violated...)
		result.Warnings = append(result.Warnings, stageResult.Warnings...)

		if violation == nil && stageResult.Verdict == api.GateVerdictFail {
			violation = &api.GateViolation{PipelineID: r.pipeline.ID, Stage: stage, GateIDs: stageResult.Violated}
		}
	}

	switch {
	case len(result.Violated) > 0:
		result.Verdict = api.GateVerdictFail
	case len(result.Warnings) > 0:
		result.Verdict = api.GateVerdictWarn
		log.Warn().Msgf("[%v] Non-blocking quality gates violated: %v", r.pipeline.ID, strings.Join(result.Warnings, ", "))
	}

	r.pipeline.GateResult = &result

	log.Info().Msgf("[%v] Quality gates verdict %v", r.pipeline.ID, result.Verdict)

	return violation
}

func (s *service) deploy(ctx context.Context, pipelineID string, strategy api.DeploymentStrategy, environment api.Environment) (api.RolloutResult, error) {

	plan, err := s.deploymentService.Plan(strategy, environment)
	if err != nil {
		return api.RolloutResult{Status: api.RolloutStatusFailed, Error: err.Error()}, &api.RolloutFailure{PipelineID: pipelineID, Err: err}
	}

	return s.deploymentService.Rollout(ctx, pipelineID, plan, strategy, environment)
}

// jobFailure prefers the failure the scheduler returned, it carries the error of the final attempt
func (s *service) jobFailure(r *run) error {

	var failure *api.JobExecutionFailure
	if errors.As(r.schedulerErr, &failure) {
		return failure
	}

	for _, j := range r.pipeline.Jobs {
		if j.Status == api.JobStatusFailed && !j.Optional {
			return &api.JobExecutionFailure{PipelineID: r.pipeline.ID, JobID: j.ID, Attempts: j.Attempt(), Err: errors.New(j.Message)}
		}
	}

	return fmt.Errorf("pipeline %v failed", r.pipeline.ID)
}

// fail must be called with r.mu held
func (s *service) fail(ctx context.Context, r *run, err error) (*api.Pipeline, error) {

	r.pipeline.Error = s.obfuscate(err.Error())
	if transitionErr := s.transition(ctx, r, api.PipelineStatusFailed, r.pipeline.Error); transitionErr != nil {
		return nil, transitionErr
	}

	return r.pipeline.Copy(), err
}

// succeed must be called with r.mu held
func (s *service) succeed(ctx context.Context, r *run) (*api.Pipeline, error) {

	if err := s.transition(ctx, r, api.PipelineStatusSucceeded, ""); err != nil {
		return nil, err
	}

	return r.pipeline.Copy(), nil
}

// Cancel stops a queued or running pipeline; a running pipeline ends cancelled once its in-flight jobs returned, unless
// one of them failed
func (s *service) Cancel(ctx context.Context, pipelineID string) error {

	span, ctx := opentracing.StartSpanFromContext(ctx, "CancelPipeline")
	defer span.Finish()
	span.SetTag("pipeline", pipelineID)

	r, err := s.getRun(pipelineID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.pipeline.Status {
	case api.PipelineStatusQueued:
		log.Info().Msgf("[%v] Canceling queued pipeline", pipelineID)

		now := time.Now().UTC()
		for _, j := range r.pipeline.Jobs {
			oldStatus := j.Status
			j.Status = api.JobStatusCancelled
			j.Message = "pipeline got canceled before the job started"
			j.FinishedAt = &now
			s.publish(ctx, api.StatusEvent{
				PipelineID: pipelineID,
				JobID:      j.ID,
				OldStatus:  string(oldStatus),
				NewStatus:  string(j.Status),
				Timestamp:  now,
				Attempt:    j.Attempt(),
				Message:    j.Message,
			})
		}
		r.pipeline.Error = fmt.Sprintf("%v: %v", ErrPipelineCanceled, pipelineID)
		return s.transition(ctx, r, api.PipelineStatusCancelled, r.pipeline.Error)

	case api.PipelineStatusRunning:
		log.Info().Msgf("[%v] Canceling running pipeline", pipelineID)
		r.cancelRequested = true
		if r.cancel != nil {
			r.cancel()
		}
		return nil
	}

	return fmt.Errorf("%w: pipeline %v is %v and can't be canceled", api.ErrInvalidTransition, pipelineID, r.pipeline.Status)
}

func (s *service) GetPipelineStatus(ctx context.Context, pipelineID string) (api.PipelineStatus, error) {

	r, err := s.getRun(pipelineID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pipeline.Status, nil
}

func (s *service) GetPipeline(ctx context.Context, pipelineID string) (*api.Pipeline, error) {

	r, err := s.getRun(pipelineID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pipeline.Copy(), nil
}

// GetPipelines returns snapshots of all pipelines, oldest first
func (s *service) GetPipelines(ctx context.Context) []*api.Pipeline {

	s.mu.RLock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	pipelines := make([]*api.Pipeline, 0, len(runs))
	for _, r := range runs {
		r.mu.Lock()
		pipelines = append(pipelines, r.pipeline.Copy())
		r.mu.Unlock()
	}

	sort.SliceStable(pipelines, func(i, j int) bool {
		if pipelines[i].CreatedAt.Equal(pipelines[j].CreatedAt) {
			return pipelines[i].ID < pipelines[j].ID
		}
		return pipelines[i].CreatedAt.Before(pipelines[j].CreatedAt)
	})

	return pipelines
}

func (s *service) GetJobs(ctx context.Context, pipelineID string) ([]*api.Job, error) {

	pipeline, err := s.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	return pipeline.Jobs, nil
}

// GetArtifacts returns the artifacts of a job, or of the whole pipeline when jobID is empty
func (s *service) GetArtifacts(ctx context.Context, pipelineID, jobID string) ([]api.Artifact, error) {

	r, err := s.getRun(pipelineID)
	if err != nil {
		return nil, err
	}

	if jobID == "" {
		return r.artifactStore.List(ctx)
	}

	r.mu.Lock()
	job := r.pipeline.GetJob(jobID)
	r.mu.Unlock()

	if job == nil {
		return nil, fmt.Errorf("%w: %v in pipeline %v", api.ErrJobNotFound, jobID, pipelineID)
	}

	return r.artifactStore.GetByJob(ctx, jobID)
}

func (s *service) getRun(pipelineID string) (*run, error) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[pipelineID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", api.ErrPipelineNotFound, pipelineID)
	}

	return r, nil
}

// transition changes the pipeline status and publishes the status event; must be called with r.mu held
func (s *service) transition(ctx context.Context, r *run, status api.PipelineStatus, message string) error {

	if err := api.ValidatePipelineTransition(r.pipeline.Status, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	oldStatus := r.pipeline.Status
	r.pipeline.Status = status
	if status == api.PipelineStatusRunning {
		r.pipeline.StartedAt = &now
	}
	if status.IsTerminal() {
		r.pipeline.FinishedAt = &now
	}

	s.publish(ctx, api.StatusEvent{
		PipelineID: r.pipeline.ID,
		OldStatus:  string(oldStatus),
		NewStatus:  string(status),
		Timestamp:  now,
		Message:    s.obfuscate(message),
	})

	return nil
}

func (s *service) publish(ctx context.Context, event api.StatusEvent) {
	if s.eventsClient != nil {
		s.eventsClient.Publish(ctx, event)
	}
}

func (s *service) obfuscate(message string) string {
	if s.obfuscationClient == nil {
		return message
	}
	return s.obfuscationClient.Obfuscate(message)
}
