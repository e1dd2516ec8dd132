package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/artifactstore"
	"github.com/estafette/estafette-ci-orchestrator/clients/envvar"
	"github.com/estafette/estafette-ci-orchestrator/clients/events"
	"github.com/estafette/estafette-ci-orchestrator/clients/executor"
	"github.com/estafette/estafette-ci-orchestrator/clients/obfuscation"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Request is a single run of the jobs of a pipeline; the scheduler owns Pipeline.Jobs until Run returns
type Request struct {
	Pipeline      *api.Pipeline
	Concurrency   int
	Executor      executor.Client
	ArtifactStore artifactstore.Client
	// OnJobChange receives a copy of a job after every change, before the matching status event is published
	OnJobChange func(job *api.Job)
}

// Service runs the jobs of a pipeline in dependency order
//go:generate mockgen -package=scheduler -destination ./mock.go -source=service.go
type Service interface {
	Run(ctx context.Context, request Request) error
}

// NewService returns a new scheduler.Service
func NewService(eventsClient events.Client, envvarClient envvar.Client, obfuscationClient obfuscation.Client) Service {
	return &service{
		eventsClient:      eventsClient,
		envvarClient:      envvarClient,
		obfuscationClient: obfuscationClient,
	}
}

type service struct {
	eventsClient      events.Client
	envvarClient      envvar.Client
	obfuscationClient obfuscation.Client
}

// run is the status table of a single Run call; every field of its jobs is written with mu held
type run struct {
	request  Request
	mu       sync.Mutex
	sem      *semaphore.Weighted
	wake     chan struct{}
	inFlight int
	failure  error
}

func (r *run) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run dispatches eligible jobs until every job is terminal; it returns the JobExecutionFailure of the first job that
// failed permanently without being optional, or the context error when the run got canceled
func (s *service) Run(ctx context.Context, request Request) error {

	span, ctx := opentracing.StartSpanFromContext(ctx, "RunJobs")
	defer span.Finish()
	span.SetTag("pipeline", request.Pipeline.ID)

	jobs := request.Pipeline.Jobs

	concurrency := request.Concurrency
	if concurrency <= 0 || concurrency > len(jobs) {
		concurrency = len(jobs)
	}
	if concurrency == 0 {
		return nil
	}

	r := &run{
		request: request,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		wake:    make(chan struct{}, 1),
	}

	log.Info().Msgf("[%v] Running %v jobs with concurrency %v", request.Pipeline.ID, len(jobs), concurrency)

	var g errgroup.Group
	done := ctx.Done()

	for {
		r.mu.Lock()

		if ctx.Err() != nil {
			// nothing gets dispatched anymore, in-flight jobs end by themselves
			for _, j := range jobs {
				if j.Status == api.JobStatusPending {
					s.transition(ctx, r, j, api.JobStatusCancelled, "pipeline got canceled before the job started")
				}
			}
		} else {
			s.dispatch(ctx, r, &g)
			if r.inFlight == 0 {
				// nothing runs and nothing could be started, so the remaining jobs wait on each other
				for _, j := range jobs {
					if j.Status == api.JobStatusPending {
						s.transition(ctx, r, j, api.JobStatusSkipped, "dependencies can never be satisfied")
					}
				}
			}
		}

		finished := allTerminal(jobs)
		r.mu.Unlock()

		if finished {
			break
		}

		select {
		case <-r.wake:
		case <-done:
			// only handle cancellation once, afterwards wait for in-flight jobs to wake the loop
			done = nil
		}
	}

	_ = g.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("running jobs of pipeline %v canceled: %w", request.Pipeline.ID, ctx.Err())
	}

	return r.failure
}

// dispatch starts eligible jobs in declaration order while the semaphore allows; must be called with r.mu held
func (s *service) dispatch(ctx context.Context, r *run, g *errgroup.Group) {

	for _, j := range r.request.Pipeline.Jobs {
		if j.Status != api.JobStatusPending {
			continue
		}

		eligible, blockedBy := s.eligibility(r, j)
		if blockedBy != "" {
			s.skipJob(ctx, r, j, blockedBy)
			continue
		}
		if !eligible {
			continue
		}

		if !r.sem.TryAcquire(1) {
			return
		}

		s.transition(ctx, r, j, api.JobStatusRunning, "")
		r.inFlight++

		job := j
		g.Go(func() error {
			defer r.notify()

			s.runJob(ctx, r, job)
			return nil
		})
	}
}

// eligibility returns true once all dependencies succeeded or failed optionally, and the id of the dependency that
// prevents the job from ever running
func (s *service) eligibility(r *run, job *api.Job) (eligible bool, blockedBy string) {

	eligible = true
	for _, d := range job.DependsOn {
		dep := r.request.Pipeline.GetJob(d)
		if dep == nil {
			return false, d
		}

		switch {
		case dep.Status == api.JobStatusSucceeded:
		case dep.Status == api.JobStatusFailed && dep.Optional:
		case dep.Status.IsTerminal():
			return false, dep.ID
		default:
			eligible = false
		}
	}

	return eligible, ""
}

func (s *service) runJob(ctx context.Context, r *run, job *api.Job) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "RunJob")
	defer span.Finish()
	span.SetTag("job", job.ID)

	for {
		r.mu.Lock()
		snapshot := job.Copy()
		r.mu.Unlock()

		status, metrics, artifactIDs, err := s.executeAttempt(ctx, r, snapshot)

		r.mu.Lock()

		job.ArtifactIDs = append(job.ArtifactIDs, artifactIDs...)

		if status == api.JobStatusFailed && ctx.Err() == nil && job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Message = s.obfuscate(err.Error())
			log.Warn().Err(err).Msgf("[%v] Attempt %v of %v failed, retrying", job.ID, job.RetryCount, job.MaxRetries+1)
			s.jobChanged(r, job)
			r.mu.Unlock()
			continue
		}

		switch status {
		case api.JobStatusSucceeded:
			job.Metrics = metrics
			s.transition(ctx, r, job, api.JobStatusSucceeded, "")

		case api.JobStatusFailed:
			failure := &api.JobExecutionFailure{PipelineID: r.request.Pipeline.ID, JobID: job.ID, Attempts: job.Attempt(), Err: err}
			s.transition(ctx, r, job, api.JobStatusFailed, failure.Error())
			if !job.Optional {
				if r.failure == nil {
					r.failure = failure
				}
				s.skipDependents(ctx, r, job)
			}

		default:
			// pending jobs get cancelled by the dispatch loop
			s.transition(ctx, r, job, api.JobStatusCancelled, "job got canceled")
		}

		// release the slot together with the status change, so dispatch never sees a finished job holding it
		r.inFlight--
		r.sem.Release(1)

		r.mu.Unlock()
		return
	}
}

// executeAttempt runs a single attempt and maps its outcome onto a terminal job status
func (s *service) executeAttempt(ctx context.Context, r *run, job *api.Job) (status api.JobStatus, metrics map[string]float64, artifactIDs []string, err error) {

	attemptCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	attempt := job.Attempt()
	envvars := map[string]string{}
	if s.envvarClient != nil {
		envvars = s.envvarClient.CollectJobEnvvars(r.request.Pipeline, job, attempt)
	}

	log.Info().Msgf("[%v] Starting attempt %v", job.ID, attempt)

	start := time.Now()
	result, err := r.request.Executor.ExecuteJob(attemptCtx, executor.Request{
		PipelineID:   r.request.Pipeline.ID,
		PipelineName: r.request.Pipeline.Name,
		Job:          *job,
		Attempt:      attempt,
		EnvVars:      envvars,
	})

	log.Debug().Msgf("[%v] Attempt %v finished with status %v in %v", job.ID, attempt, result.Status, time.Since(start))

	artifactIDs, registerErr := s.registerArtifacts(ctx, r, job, result.Artifacts)

	switch {
	case ctx.Err() != nil && (err != nil || result.Status != api.JobStatusSucceeded && result.Status != api.JobStatusFailed):
		return api.JobStatusCancelled, nil, artifactIDs, nil

	case attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && result.Status != api.JobStatusSucceeded:
		return api.JobStatusFailed, nil, artifactIDs, fmt.Errorf("timed out after %v", job.Timeout)

	case err == nil && result.Status == api.JobStatusCancelled:
		// the platform stopped the job on its own, that's not a failure worth retrying
		return api.JobStatusCancelled, nil, artifactIDs, nil

	case err != nil:
		return api.JobStatusFailed, nil, artifactIDs, err

	case result.Status == api.JobStatusSucceeded:
		if registerErr != nil {
			return api.JobStatusFailed, nil, artifactIDs, registerErr
		}
		return api.JobStatusSucceeded, result.Metrics, artifactIDs, nil
	}

	message := result.Message
	if message == "" {
		message = fmt.Sprintf("executor reported status %v", result.Status)
	}

	return api.JobStatusFailed, nil, artifactIDs, errors.New(message)
}

func (s *service) registerArtifacts(ctx context.Context, r *run, job *api.Job, specs []api.ArtifactSpec) (artifactIDs []string, err error) {

	if r.request.ArtifactStore == nil {
		return nil, nil
	}

	for _, spec := range specs {
		artifact, innerErr := r.request.ArtifactStore.Register(ctx, job.ID, spec)
		if innerErr != nil {
			log.Warn().Err(innerErr).Msgf("[%v] Failed registering artifact %v", job.ID, spec.Path)
			if err == nil {
				err = fmt.Errorf("registering artifact %v failed: %w", spec.Path, innerErr)
			}
			continue
		}
		artifactIDs = append(artifactIDs, artifact.ID)
	}

	return artifactIDs, err
}

// skipDependents skips every pending job that directly or indirectly depends on job; must be called with r.mu held
func (s *service) skipDependents(ctx context.Context, r *run, job *api.Job) {
	for _, id := range api.TransitiveDependents(r.request.Pipeline.Jobs, job.ID) {
		if dependent := r.request.Pipeline.GetJob(id); dependent != nil && dependent.Status == api.JobStatusPending {
			s.skipJob(ctx, r, dependent, job.ID)
		}
	}
}

func (s *service) skipJob(ctx context.Context, r *run, job *api.Job, blockedBy string) {
	s.transition(ctx, r, job, api.JobStatusSkipped, fmt.Sprintf("skipped because job %v did not succeed", blockedBy))
}

// transition changes the status of a job and publishes the status event; must be called with r.mu held
func (s *service) transition(ctx context.Context, r *run, job *api.Job, status api.JobStatus, message string) {

	if err := api.ValidateJobTransition(job.Status, status); err != nil {
		log.Error().Err(err).Msgf("[%v] Ignoring status change", job.ID)
		return
	}

	now := time.Now().UTC()
	oldStatus := job.Status
	job.Status = status
	if message != "" {
		job.Message = s.obfuscate(message)
	}
	if status == api.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() {
		job.FinishedAt = &now
	}

	s.jobChanged(r, job)

	if s.eventsClient != nil {
		s.eventsClient.Publish(ctx, api.StatusEvent{
			PipelineID: r.request.Pipeline.ID,
			JobID:      job.ID,
			OldStatus:  string(oldStatus),
			NewStatus:  string(status),
			Timestamp:  now,
			Attempt:    job.Attempt(),
			Message:    job.Message,
		})
	}
}

func (s *service) jobChanged(r *run, job *api.Job) {
	if r.request.OnJobChange != nil {
		r.request.OnJobChange(job.Copy())
	}
}

func (s *service) obfuscate(message string) string {
	if s.obfuscationClient == nil {
		return message
	}
	return s.obfuscationClient.Obfuscate(message)
}

func allTerminal(jobs []*api.Job) bool {
	for _, j := range jobs {
		if !j.Status.IsTerminal() {
			return false
		}
	}
	return true
}
