package definition

import (
	"errors"
	"testing"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/stretchr/testify/assert"
)

func TestReadFile(t *testing.T) {

	t.Run("ReturnsDefinitionWithoutErrors", func(t *testing.T) {

		// act
		_, err := ReadFile("testdata/pipeline.yaml")

		assert.Nil(t, err)
	})

	t.Run("ReturnsDefinitionWithMappedJobs", func(t *testing.T) {

		// act
		definition, err := ReadFile("testdata/pipeline.yaml")

		assert.Nil(t, err)
		assert.Equal(t, "checkout-service", definition.Name)
		assert.Equal(t, api.CIPlatformLocal, definition.Platform)
		assert.Equal(t, "payments", definition.Labels["team"])
		if assert.Equal(t, 3, len(definition.Jobs)) {
			assert.Equal(t, "build", definition.Jobs[0].ID)
			assert.Equal(t, api.ArtifactKindBinary, definition.Jobs[0].Artifacts[0].Kind)
			assert.Equal(t, []string{"build"}, definition.Jobs[1].DependsOn)
			assert.Equal(t, 2, definition.Jobs[1].MaxRetries)
			assert.Equal(t, 10*time.Minute, definition.Jobs[1].Timeout)
			assert.Equal(t, "metrics.yaml", definition.Jobs[1].MetricsFile)
			assert.True(t, definition.Jobs[2].Optional)
		}
	})

	t.Run("ReturnsDefinitionWithMappedGates", func(t *testing.T) {

		// act
		definition, err := ReadFile("testdata/pipeline.yaml")

		assert.Nil(t, err)
		if assert.Equal(t, 3, len(definition.Gates)) {
			assert.Equal(t, "coverage >= 80", definition.Gates[0].Predicate)
			assert.True(t, definition.Gates[0].IsBlocking())
			assert.Equal(t, api.GateStagePostTest, definition.Gates[0].GetStage())
			assert.Equal(t, api.ComparatorLessThanOrEqual, definition.Gates[1].Comparator)
			assert.Equal(t, 10.0, definition.Gates[1].Threshold)
			assert.False(t, definition.Gates[1].IsBlocking())
			assert.Equal(t, api.GateStagePreDeploy, definition.Gates[2].GetStage())
		}
	})

	t.Run("ReturnsDefinitionWithMappedDeploymentStrategy", func(t *testing.T) {

		// act
		definition, err := ReadFile("testdata/pipeline.yaml")

		assert.Nil(t, err)
		if assert.NotNil(t, definition.Strategy) {
			assert.Equal(t, api.StrategyCanary, definition.Strategy.Type)
			assert.Equal(t, 5*time.Minute, definition.Strategy.StepTimeout)
			assert.Equal(t, 10, definition.Strategy.Canary.Percentage)
			assert.Equal(t, 2*time.Minute, definition.Strategy.Canary.BakeTime)
			assert.Equal(t, "error-rate", definition.Strategy.Canary.Gates[0].ID)
		}
		assert.Equal(t, 10, definition.Environment.Capacity)
		assert.Equal(t, "http://checkout.internal/healthz", definition.Environment.HealthCheckURL)
	})

	t.Run("ReturnsErrorForMissingFile", func(t *testing.T) {

		// act
		_, err := ReadFile("testdata/does-not-exist.yaml")

		assert.NotNil(t, err)
	})

	t.Run("ReturnsJobsForEstafetteManifest", func(t *testing.T) {

		// act
		definition, err := ReadFile("testdata/.estafette.yaml")

		assert.Nil(t, err)
		assert.Equal(t, "estafette-ci-builder", definition.Name)
		assert.Equal(t, api.CIPlatformDocker, definition.Platform)
		assert.Equal(t, "Greetings", definition.EnvVars["VAR_A"])
		if assert.Equal(t, 4, len(definition.Jobs)) {
			assert.Equal(t, "build", definition.Jobs[0].ID)
			assert.Equal(t, "golang:1.16-alpine", definition.Jobs[0].Image)
			assert.Equal(t, 0, len(definition.Jobs[0].DependsOn))

			assert.Equal(t, "lint", definition.Jobs[1].ID)
			assert.Equal(t, "checks/lint", definition.Jobs[1].Name)
			assert.Equal(t, []string{"build"}, definition.Jobs[1].DependsOn)
			assert.Equal(t, "vet", definition.Jobs[2].ID)
			assert.Equal(t, []string{"build"}, definition.Jobs[2].DependsOn)

			assert.Equal(t, "bake", definition.Jobs[3].ID)
			assert.Equal(t, []string{"lint", "vet"}, definition.Jobs[3].DependsOn)
			assert.Equal(t, 1, definition.Jobs[3].MaxRetries)
		}
	})
}

func TestParse(t *testing.T) {

	t.Run("ReturnsDefinitionErrorForEmptyInput", func(t *testing.T) {

		// act
		_, err := Parse([]byte("  \n"))

		var definitionError *api.DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionErrorForUnknownField", func(t *testing.T) {

		// act
		_, err := Parse([]byte("jobs:\n- id: a\n  image: alpine\n  dependencies: [b]\n"))

		var definitionError *api.DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionForJson", func(t *testing.T) {

		// act
		definition, err := Parse([]byte(`{"name":"api","jobs":[{"id":"a"},{"id":"b","dependsOn":["a"]}]}`))

		assert.Nil(t, err)
		assert.Equal(t, 2, len(definition.Jobs))
		assert.Equal(t, []string{"a"}, definition.Jobs[1].DependsOn)
	})

	t.Run("ReturnsDefinitionThatSurvivesMarshal", func(t *testing.T) {

		definition, err := ReadFile("testdata/pipeline.yaml")
		assert.Nil(t, err)

		// act
		data, err := Marshal(definition)
		assert.Nil(t, err)
		roundTripped, err := Parse(data)

		assert.Nil(t, err)
		assert.Equal(t, definition, roundTripped)
	})
}
