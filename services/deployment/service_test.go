package deployment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/approval"
	"github.com/estafette/estafette-ci-orchestrator/clients/readiness"
	"github.com/estafette/estafette-ci-orchestrator/clients/webhook"
	"github.com/estafette/estafette-ci-orchestrator/services/evaluation"
	"github.com/golang/mock/gomock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {

	t.Run("ReturnsNilWithoutStrategy", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())

		// act
		err := service.Validate(nil)

		assert.Nil(t, err)
	})

	t.Run("ReturnsDefinitionErrorForUnknownType", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())

		// act
		err := service.Validate(&api.DeploymentStrategy{Type: "big-bang"})

		var definitionErr *api.DefinitionError
		assert.True(t, errors.As(err, &definitionErr))
	})

	t.Run("ReturnsDefinitionErrorForRollingUpdateWithoutBatchSize", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())

		// act
		err := service.Validate(&api.DeploymentStrategy{Type: api.StrategyRollingUpdate, Rolling: &api.RollingUpdateParameters{}})

		assert.NotNil(t, err)
	})

	t.Run("ReturnsDefinitionErrorForCanaryOfAllTraffic", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())

		// act
		err := service.Validate(&api.DeploymentStrategy{Type: api.StrategyCanary, Canary: &api.CanaryParameters{Percentage: 100}})

		assert.NotNil(t, err)
	})

	t.Run("ReturnsDefinitionErrorForMalformedCanaryGate", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())
		strategy := &api.DeploymentStrategy{
			Type: api.StrategyCanary,
			Canary: &api.CanaryParameters{
				Percentage: 10,
				Gates:      []api.QualityGate{{ID: "errors", Predicate: "error_rate <"}},
			},
		}

		// act
		err := service.Validate(strategy)

		var definitionErr *api.DefinitionError
		if assert.True(t, errors.As(err, &definitionErr)) {
			assert.Equal(t, "errors", definitionErr.GateID)
		}
	})
}

func TestPlan(t *testing.T) {

	t.Run("ReturnsSingleReplaceStepForRecreate", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())

		// act
		plan, err := service.Plan(api.DeploymentStrategy{Type: api.StrategyRecreate}, api.Environment{Capacity: 4})

		assert.Nil(t, err)
		if assert.Equal(t, 1, len(plan.Steps)) {
			assert.Equal(t, api.StepActionReplace, plan.Steps[0].Action)
			assert.Equal(t, 4, plan.Steps[0].Instances)
			assert.Equal(t, api.WaitNone, plan.Steps[0].Wait.Type)
		}
		assert.Nil(t, plan.Rollback)
		assert.Equal(t, -1, plan.DecisionAfter)
	})

	t.Run("ReturnsHealthCheckedBatchesForRollingUpdate", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())
		strategy := api.DeploymentStrategy{Type: api.StrategyRollingUpdate, Rolling: &api.RollingUpdateParameters{BatchSize: 3}}

		// act
		plan, err := service.Plan(strategy, api.Environment{Capacity: 10})

		assert.Nil(t, err)
		if assert.Equal(t, 4, len(plan.Steps)) {
			assert.Equal(t, "deploy-batch-1", plan.Steps[0].Name)
			assert.Equal(t, 3, plan.Steps[0].Instances)
			assert.Equal(t, 30, plan.Steps[0].Percentage)
			assert.Equal(t, 9, plan.Steps[2].Instances)
			assert.Equal(t, 10, plan.Steps[3].Instances)
			assert.Equal(t, 100, plan.Steps[3].Percentage)
			for _, s := range plan.Steps {
				assert.Equal(t, api.WaitHealthCheck, s.Wait.Type)
			}
		}
	})

	t.Run("ReturnsProvisionAndSwitchForBlueGreenWithManualApproval", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())
		strategy := api.DeploymentStrategy{Type: api.StrategyBlueGreen, BlueGreen: &api.BlueGreenParameters{ManualApproval: true}}

		// act
		plan, err := service.Plan(strategy, api.Environment{Capacity: 2})

		assert.Nil(t, err)
		if assert.Equal(t, 2, len(plan.Steps)) {
			assert.Equal(t, api.StepActionProvisionGreen, plan.Steps[0].Action)
			assert.Equal(t, api.WaitManualApproval, plan.Steps[0].Wait.Type)
			assert.Equal(t, api.StepActionSwitchTraffic, plan.Steps[1].Action)
			assert.Equal(t, 100, plan.Steps[1].Percentage)
		}
	})

	t.Run("ReturnsHealthCheckBeforeSwitchForBlueGreenWithoutManualApproval", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())

		// act
		plan, err := service.Plan(api.DeploymentStrategy{Type: api.StrategyBlueGreen}, api.Environment{})

		assert.Nil(t, err)
		assert.Equal(t, api.WaitHealthCheck, plan.Steps[0].Wait.Type)
	})

	t.Run("ReturnsCanaryBakeDecisionAndRollbackForCanary", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())
		strategy := api.DeploymentStrategy{Type: api.StrategyCanary, Canary: &api.CanaryParameters{Percentage: 10, BakeTime: 15 * time.Minute}}

		// act
		plan, err := service.Plan(strategy, api.Environment{Capacity: 20})

		assert.Nil(t, err)
		if assert.Equal(t, 2, len(plan.Steps)) {
			assert.Equal(t, api.StepActionDeployCanary, plan.Steps[0].Action)
			assert.Equal(t, 2, plan.Steps[0].Instances)
			assert.Equal(t, api.WaitBakeTimer, plan.Steps[0].Wait.Type)
			assert.Equal(t, 15*time.Minute, plan.Steps[0].Wait.Duration)
			assert.Equal(t, api.StepActionPromote, plan.Steps[1].Action)
		}
		if assert.NotNil(t, plan.Rollback) {
			assert.Equal(t, api.StepActionRollback, plan.Rollback.Action)
		}
		assert.Equal(t, 0, plan.DecisionAfter)
	})

	t.Run("RollingUpdateAlwaysEndsAtFullCapacity", func(t *testing.T) {

		service := NewService(nil, nil, nil, evaluation.NewService())
		properties := gopter.NewProperties(nil)

		properties.Property("last batch reaches capacity and batches only grow", prop.ForAll(
			func(capacity, batchSize int) bool {
				strategy := api.DeploymentStrategy{Type: api.StrategyRollingUpdate, Rolling: &api.RollingUpdateParameters{BatchSize: batchSize}}
				plan, err := service.Plan(strategy, api.Environment{Capacity: capacity})
				if err != nil || len(plan.Steps) != (capacity+batchSize-1)/batchSize {
					return false
				}
				previous := 0
				for _, s := range plan.Steps {
					if s.Instances <= previous || s.Instances-previous > batchSize {
						return false
					}
					previous = s.Instances
				}
				return previous == capacity
			},
			gen.IntRange(1, 200),
			gen.IntRange(1, 50),
		))

		properties.TestingRun(t)
	})
}

func TestRollout(t *testing.T) {

	environment := api.Environment{Name: "production", Capacity: 10, HealthCheckURL: "http://app/liveness", MetricsURL: "http://app/metrics"}

	t.Run("ExecutesEveryStepOfRollingUpdate", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		readinessClient := readiness.NewMockClient(ctrl)
		service := NewService(deployer, nil, readinessClient, evaluation.NewService())

		strategy := api.DeploymentStrategy{Type: api.StrategyRollingUpdate, Rolling: &api.RollingUpdateParameters{BatchSize: 5}}
		plan, _ := service.Plan(strategy, environment)

		gomock.InOrder(
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(nil),
			readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, defaultHealthCheckTimeout).Return(nil),
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[1]).Return(nil),
			readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, defaultHealthCheckTimeout).Return(nil),
		)

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		assert.Nil(t, err)
		assert.Equal(t, api.RolloutStatusSucceeded, result.Status)
		assert.Equal(t, []string{"deploy-batch-1", "deploy-batch-2"}, result.CompletedSteps)
	})

	t.Run("HaltsRemainingStepsWhenHealthCheckFails", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		readinessClient := readiness.NewMockClient(ctrl)
		service := NewService(deployer, nil, readinessClient, evaluation.NewService())

		strategy := api.DeploymentStrategy{Type: api.StrategyRollingUpdate, Rolling: &api.RollingUpdateParameters{BatchSize: 5}}
		plan, _ := service.Plan(strategy, environment)

		deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(nil)
		readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, gomock.Any()).Return(errors.New("503 Service Unavailable"))

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		var failure *api.RolloutFailure
		if assert.True(t, errors.As(err, &failure)) {
			assert.Equal(t, "deploy-batch-1", failure.Step)
			assert.False(t, failure.RolledBack)
		}
		assert.Equal(t, api.RolloutStatusFailed, result.Status)
		assert.Equal(t, "deploy-batch-1", result.FailedStep)
		assert.Equal(t, 0, len(result.CompletedSteps))
	})

	t.Run("RollsBackCanaryWhenHealthCheckFails", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		readinessClient := readiness.NewMockClient(ctrl)
		service := NewService(deployer, nil, readinessClient, evaluation.NewService())

		strategy := api.DeploymentStrategy{Type: api.StrategyCanary, Canary: &api.CanaryParameters{Percentage: 10, BakeTime: 10 * time.Millisecond}}
		plan, _ := service.Plan(strategy, environment)

		gomock.InOrder(
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(nil),
			readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, gomock.Any()).Return(errors.New("canary returned 500")),
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, *plan.Rollback).Return(nil),
		)

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		var failure *api.RolloutFailure
		if assert.True(t, errors.As(err, &failure)) {
			assert.Equal(t, "deploy-canary", failure.Step)
			assert.True(t, failure.RolledBack)
		}
		assert.Equal(t, api.RolloutStatusRolledBack, result.Status)
		assert.Equal(t, 0, len(result.CompletedSteps))
	})

	t.Run("RollsBackCanaryWhenMetricsViolateCanaryGates", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		readinessClient := readiness.NewMockClient(ctrl)
		service := NewService(deployer, nil, readinessClient, evaluation.NewService())

		strategy := api.DeploymentStrategy{
			Type: api.StrategyCanary,
			Canary: &api.CanaryParameters{
				Percentage: 25,
				Gates:      []api.QualityGate{{ID: "error-rate", Predicate: "error_rate < 0.05"}},
			},
		}
		plan, _ := service.Plan(strategy, environment)

		gomock.InOrder(
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(nil),
			readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, gomock.Any()).Return(nil),
			readinessClient.EXPECT().GetMetrics(gomock.Any(), environment).Return(map[string]float64{"error_rate": 0.2}, nil),
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, *plan.Rollback).Return(nil),
		)

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "error-rate")
		assert.Equal(t, api.RolloutStatusRolledBack, result.Status)
	})

	t.Run("ReportsFailedRollbackWithoutRolledBack", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		readinessClient := readiness.NewMockClient(ctrl)
		service := NewService(deployer, nil, readinessClient, evaluation.NewService())

		strategy := api.DeploymentStrategy{Type: api.StrategyCanary, Canary: &api.CanaryParameters{Percentage: 10}}
		plan, _ := service.Plan(strategy, environment)

		gomock.InOrder(
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(errors.New("kubectl apply failed")),
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, *plan.Rollback).Return(errors.New("kubectl rollout undo failed")),
		)

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		var failure *api.RolloutFailure
		if assert.True(t, errors.As(err, &failure)) {
			assert.False(t, failure.RolledBack)
		}
		assert.Equal(t, api.RolloutStatusFailed, result.Status)
		assert.Contains(t, result.Error, "rollback failed")
	})

	t.Run("PromotesHealthyCanaryPassingItsGates", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		readinessClient := readiness.NewMockClient(ctrl)
		service := NewService(deployer, nil, readinessClient, evaluation.NewService())

		strategy := api.DeploymentStrategy{
			Type:        api.StrategyCanary,
			StepTimeout: time.Minute,
			Canary: &api.CanaryParameters{
				Percentage: 10,
				Gates:      []api.QualityGate{{ID: "error-rate", Predicate: "error_rate < 0.05"}},
			},
		}
		plan, _ := service.Plan(strategy, environment)

		gomock.InOrder(
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(nil),
			readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, time.Minute).Return(nil),
			readinessClient.EXPECT().GetMetrics(gomock.Any(), environment).Return(map[string]float64{"error_rate": 0.01}, nil),
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[1]).Return(nil),
			readinessClient.EXPECT().CheckHealth(gomock.Any(), environment, time.Minute).Return(nil),
		)

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		assert.Nil(t, err)
		assert.Equal(t, api.RolloutStatusSucceeded, result.Status)
		assert.Equal(t, []string{"deploy-canary", "promote"}, result.CompletedSteps)
	})

	t.Run("WaitsForApprovalBeforeSwitchingTraffic", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		approvalClient := approval.NewMockClient(ctrl)
		service := NewService(deployer, approvalClient, nil, evaluation.NewService())

		strategy := api.DeploymentStrategy{Type: api.StrategyBlueGreen, BlueGreen: &api.BlueGreenParameters{ManualApproval: true}}
		plan, _ := service.Plan(strategy, environment)

		gomock.InOrder(
			deployer.EXPECT().ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).Return(nil),
			approvalClient.EXPECT().WaitForApproval(gomock.Any(), "p1", plan.Steps[0]).Return(approval.ErrRejected),
		)

		// act
		result, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		assert.True(t, errors.Is(err, approval.ErrRejected))
		assert.Equal(t, "provision-green", result.FailedStep)
	})

	t.Run("FailsStepThatExceedsStepTimeout", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		deployer := webhook.NewMockDeployer(ctrl)
		service := NewService(deployer, nil, nil, evaluation.NewService())

		strategy := api.DeploymentStrategy{Type: api.StrategyRecreate, StepTimeout: 20 * time.Millisecond}
		plan, _ := service.Plan(strategy, environment)

		deployer.
			EXPECT().
			ExecuteStep(gomock.Any(), "p1", environment, plan.Steps[0]).
			DoAndReturn(func(ctx context.Context, pipelineID string, environment api.Environment, step api.RolloutStep) error {
				<-ctx.Done()
				return ctx.Err()
			})

		// act
		_, err := service.Rollout(context.Background(), "p1", plan, strategy, environment)

		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "timed out after 20ms")
	})
}
