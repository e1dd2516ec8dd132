package webhook

import (
	"context"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/rs/zerolog/log"
)

const rolloutStepEventType = "rollout-step"

// Deployer applies a single rollout step to an environment
//go:generate mockgen -package=webhook -destination ./deployer_mock.go -source=deployer.go
type Deployer interface {
	ExecuteStep(ctx context.Context, pipelineID string, environment api.Environment, step api.RolloutStep) error
}

// RolloutStepRequest is posted to the deployer webhook for every step
type RolloutStepRequest struct {
	PipelineID  string          `json:"pipelineId"`
	Environment api.Environment `json:"environment"`
	Step        api.RolloutStep `json:"step"`
}

// NewDeployer returns a Deployer that hands every step to a webhook; without url the steps are only logged
func NewDeployer(client Client) Deployer {
	return &deployer{
		client: client,
	}
}

type deployer struct {
	client Client
}

func (d *deployer) ExecuteStep(ctx context.Context, pipelineID string, environment api.Environment, step api.RolloutStep) error {

	if !d.client.IsConfigured() {
		log.Info().Msgf("[%v] No deployer configured, step %v (%v at %v%%) considered applied to %v", pipelineID, step.Name, step.Action, step.Percentage, environment.Name)
		return nil
	}

	log.Info().Msgf("[%v] Applying step %v (%v at %v%%) to %v", pipelineID, step.Name, step.Action, step.Percentage, environment.Name)

	return d.client.Post(ctx, rolloutStepEventType, RolloutStepRequest{
		PipelineID:  pipelineID,
		Environment: environment,
		Step:        step,
	})
}
