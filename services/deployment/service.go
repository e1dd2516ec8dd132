package deployment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/approval"
	"github.com/estafette/estafette-ci-orchestrator/clients/readiness"
	"github.com/estafette/estafette-ci-orchestrator/clients/webhook"
	"github.com/estafette/estafette-ci-orchestrator/services/evaluation"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
)

const (
	// used for health checks when the strategy has no step timeout
	defaultHealthCheckTimeout = 5 * time.Minute
)

// Service turns a deployment strategy into a rollout plan and executes it step by step
//go:generate mockgen -package=deployment -destination ./mock.go -source=service.go
type Service interface {
	Validate(strategy *api.DeploymentStrategy) error
	Plan(strategy api.DeploymentStrategy, environment api.Environment) (api.RolloutPlan, error)
	Rollout(ctx context.Context, pipelineID string, plan api.RolloutPlan, strategy api.DeploymentStrategy, environment api.Environment) (api.RolloutResult, error)
}

// NewService returns a new deployment.Service
func NewService(deployer webhook.Deployer, approvalClient approval.Client, readinessClient readiness.Client, evaluationService evaluation.Service) Service {
	return &service{
		deployer:          deployer,
		approvalClient:    approvalClient,
		readinessClient:   readinessClient,
		evaluationService: evaluationService,
	}
}

type service struct {
	deployer          webhook.Deployer
	approvalClient    approval.Client
	readinessClient   readiness.Client
	evaluationService evaluation.Service
}

func (s *service) Validate(strategy *api.DeploymentStrategy) error {

	if strategy == nil {
		return nil
	}

	invalid := func(format string, a ...interface{}) error {
		return &api.DefinitionError{Reason: fmt.Sprintf("deployment: "+format, a...)}
	}

	if strategy.StepTimeout < 0 {
		return invalid("stepTimeout can't be negative")
	}

	switch strategy.Type {
	case api.StrategyRecreate, api.StrategyBlueGreen:

	case api.StrategyRollingUpdate:
		if strategy.Rolling == nil || strategy.Rolling.BatchSize <= 0 {
			return invalid("rolling-update needs a batchSize of at least 1")
		}

	case api.StrategyCanary:
		if strategy.Canary == nil {
			return invalid("canary needs a percentage")
		}
		if strategy.Canary.Percentage <= 0 || strategy.Canary.Percentage >= 100 {
			return invalid("canary percentage %v should be between 1 and 99", strategy.Canary.Percentage)
		}
		if strategy.Canary.BakeTime < 0 {
			return invalid("canary bakeTime can't be negative")
		}
		if err := s.evaluationService.Validate(strategy.Canary.Gates); err != nil {
			var definitionErr *api.DefinitionError
			if errors.As(err, &definitionErr) {
				definitionErr.Reason = "deployment: canary " + definitionErr.Reason
			}
			return err
		}

	default:
		return invalid("unknown strategy type %q, use one of recreate, rolling-update, blue-green or canary", strategy.Type)
	}

	return nil
}

// Plan is deterministic for a strategy and environment; it doesn't touch the environment
func (s *service) Plan(strategy api.DeploymentStrategy, environment api.Environment) (plan api.RolloutPlan, err error) {

	if err = s.Validate(&strategy); err != nil {
		return
	}

	capacity := environment.GetCapacity()
	plan = api.RolloutPlan{
		Strategy:      strategy.Type,
		DecisionAfter: -1,
	}

	switch strategy.Type {
	case api.StrategyRecreate:
		plan.Steps = []api.RolloutStep{
			{Name: "replace", Action: api.StepActionReplace, Percentage: 100, Instances: capacity, Wait: api.WaitCondition{Type: api.WaitNone}},
		}

	case api.StrategyRollingUpdate:
		batchSize := strategy.Rolling.BatchSize
		batches := (capacity + batchSize - 1) / batchSize
		for i := 1; i <= batches; i++ {
			instances := i * batchSize
			if instances > capacity {
				instances = capacity
			}
			plan.Steps = append(plan.Steps, api.RolloutStep{
				Name:       fmt.Sprintf("deploy-batch-%v", i),
				Action:     api.StepActionDeployBatch,
				Percentage: percentage(instances, capacity),
				Instances:  instances,
				Wait:       api.WaitCondition{Type: api.WaitHealthCheck},
			})
		}

	case api.StrategyBlueGreen:
		switchWait := api.WaitCondition{Type: api.WaitHealthCheck}
		if strategy.BlueGreen != nil && strategy.BlueGreen.ManualApproval {
			switchWait = api.WaitCondition{Type: api.WaitManualApproval}
		}
		plan.Steps = []api.RolloutStep{
			// green runs next to blue, so it takes no traffic yet
			{Name: "provision-green", Action: api.StepActionProvisionGreen, Percentage: 0, Instances: capacity, Wait: switchWait},
			{Name: "switch-traffic", Action: api.StepActionSwitchTraffic, Percentage: 100, Instances: capacity, Wait: api.WaitCondition{Type: api.WaitNone}},
		}

	case api.StrategyCanary:
		canaryInstances := (capacity*strategy.Canary.Percentage + 99) / 100
		if canaryInstances >= capacity && capacity > 1 {
			canaryInstances = capacity - 1
		}
		plan.Steps = []api.RolloutStep{
			{Name: "deploy-canary", Action: api.StepActionDeployCanary, Percentage: strategy.Canary.Percentage, Instances: canaryInstances, Wait: api.WaitCondition{Type: api.WaitBakeTimer, Duration: strategy.Canary.BakeTime}},
			{Name: "promote", Action: api.StepActionPromote, Percentage: 100, Instances: capacity, Wait: api.WaitCondition{Type: api.WaitHealthCheck}},
		}
		plan.Rollback = &api.RolloutStep{Name: "rollback", Action: api.StepActionRollback, Percentage: 0, Instances: 0, Wait: api.WaitCondition{Type: api.WaitNone}}
		plan.DecisionAfter = 0
	}

	return plan, nil
}

func (s *service) Rollout(ctx context.Context, pipelineID string, plan api.RolloutPlan, strategy api.DeploymentStrategy, environment api.Environment) (result api.RolloutResult, err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "Rollout")
	defer span.Finish()
	span.SetTag("pipeline", pipelineID)
	span.SetTag("strategy", string(plan.Strategy))
	span.SetTag("environment", environment.Name)

	log.Info().Msgf("[%v] Rolling out to %v with %v strategy in %v steps", pipelineID, environment.Name, plan.Strategy, len(plan.Steps))

	for i, step := range plan.Steps {
		stepErr := s.runStep(ctx, pipelineID, step, strategy, environment)
		if stepErr == nil && i == plan.DecisionAfter {
			stepErr = s.decideCanary(ctx, pipelineID, strategy, environment)
		}

		if stepErr != nil {
			span.SetTag("error", true)
			log.Warn().Err(stepErr).Msgf("[%v] Rollout step %v failed", pipelineID, step.Name)

			result.Status = api.RolloutStatusFailed
			result.FailedStep = step.Name
			failure := &api.RolloutFailure{PipelineID: pipelineID, Step: step.Name, Err: stepErr}

			if plan.Rollback != nil {
				if rollbackErr := s.rollback(ctx, pipelineID, *plan.Rollback, environment); rollbackErr != nil {
					log.Error().Err(rollbackErr).Msgf("[%v] Rollback failed", pipelineID)
					stepErr = fmt.Errorf("%v; rollback failed: %w", stepErr, rollbackErr)
					failure.Err = stepErr
				} else {
					result.Status = api.RolloutStatusRolledBack
					failure.RolledBack = true
				}
			}

			result.Error = failure.Error()
			return result, failure
		}

		result.CompletedSteps = append(result.CompletedSteps, step.Name)
	}

	log.Info().Msgf("[%v] Rollout to %v succeeded", pipelineID, environment.Name)

	result.Status = api.RolloutStatusSucceeded
	return result, nil
}

// runStep applies a step and waits for its wait condition; the step timeout covers both except for bake time
func (s *service) runStep(ctx context.Context, pipelineID string, step api.RolloutStep, strategy api.DeploymentStrategy, environment api.Environment) error {

	span, ctx := opentracing.StartSpanFromContext(ctx, "RolloutStep")
	defer span.Finish()
	span.SetTag("step", step.Name)

	stepCtx := ctx
	if strategy.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, strategy.StepTimeout)
		defer cancel()
	}

	log.Info().Msgf("[%v] Executing step %v (%v to %v%%, %v instances)", pipelineID, step.Name, step.Action, step.Percentage, step.Instances)

	if err := s.deployer.ExecuteStep(stepCtx, pipelineID, environment, step); err != nil {
		return timeoutOr(stepCtx, ctx, strategy, "executing step", err)
	}

	switch step.Wait.Type {
	case api.WaitManualApproval:
		log.Info().Msgf("[%v] Waiting for approval of step %v", pipelineID, step.Name)
		if err := s.approvalClient.WaitForApproval(stepCtx, pipelineID, step); err != nil {
			return timeoutOr(stepCtx, ctx, strategy, "waiting for approval", err)
		}

	case api.WaitHealthCheck:
		if err := s.readinessClient.CheckHealth(stepCtx, environment, healthCheckTimeout(strategy)); err != nil {
			return timeoutOr(stepCtx, ctx, strategy, "health check", err)
		}

	case api.WaitBakeTimer:
		if step.Wait.Duration > 0 {
			log.Info().Msgf("[%v] Baking step %v for %v", pipelineID, step.Name, step.Wait.Duration)
			timer := time.NewTimer(step.Wait.Duration)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// decideCanary promotes the canary only when it's healthy and its metrics pass the canary gates
func (s *service) decideCanary(ctx context.Context, pipelineID string, strategy api.DeploymentStrategy, environment api.Environment) error {

	if err := s.readinessClient.CheckHealth(ctx, environment, healthCheckTimeout(strategy)); err != nil {
		return fmt.Errorf("canary health check failed: %w", err)
	}

	if strategy.Canary == nil || len(strategy.Canary.Gates) == 0 {
		return nil
	}

	metrics, err := s.readinessClient.GetMetrics(ctx, environment)
	if err != nil {
		return fmt.Errorf("retrieving canary metrics failed: %w", err)
	}

	gateResult := s.evaluationService.Evaluate(strategy.Canary.Gates, metrics)
	if len(gateResult.Warnings) > 0 {
		log.Warn().Msgf("[%v] Canary has warnings for gates %v", pipelineID, strings.Join(gateResult.Warnings, ", "))
	}
	if gateResult.Verdict == api.GateVerdictFail {
		return fmt.Errorf("canary violated gates %v", strings.Join(gateResult.Violated, ", "))
	}

	log.Info().Msgf("[%v] Promoting canary", pipelineID)

	return nil
}

func (s *service) rollback(ctx context.Context, pipelineID string, step api.RolloutStep, environment api.Environment) error {

	span, ctx := opentracing.StartSpanFromContext(ctx, "Rollback")
	defer span.Finish()

	log.Info().Msgf("[%v] Rolling back %v", pipelineID, environment.Name)

	return s.deployer.ExecuteStep(ctx, pipelineID, environment, step)
}

func timeoutOr(stepCtx, ctx context.Context, strategy api.DeploymentStrategy, action string, err error) error {
	if stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return fmt.Errorf("%v timed out after %v: %w", action, strategy.StepTimeout, err)
	}
	return fmt.Errorf("%v failed: %w", action, err)
}

func healthCheckTimeout(strategy api.DeploymentStrategy) time.Duration {
	if strategy.StepTimeout > 0 {
		return strategy.StepTimeout
	}
	return defaultHealthCheckTimeout
}

func percentage(instances, capacity int) int {
	if capacity <= 0 {
		return 0
	}
	return instances * 100 / capacity
}
