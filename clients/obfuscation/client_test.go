package obfuscation

import (
	"testing"

	"github.com/estafette/estafette-ci-orchestrator/api"
	crypt "github.com/estafette/estafette-ci-crypt"
	"github.com/stretchr/testify/assert"
)

func TestObfuscate(t *testing.T) {

	t.Run("ReturnsInputUnchangedBeforeSecretsAreCollected", func(t *testing.T) {

		obfuscationClient := getObfuscationClient()

		// act
		output := obfuscationClient.Obfuscate("this is my secret")

		assert.Equal(t, "this is my secret", output)
	})

	t.Run("ReplacesDecryptedSecretValuesFromJobEnvvars", func(t *testing.T) {

		obfuscationClient := getObfuscationClient()
		pipeline := &api.Pipeline{
			Name: "github.com/estafette/estafette-ci-builder",
			Jobs: []*api.Job{
				{ID: "deploy", EnvVars: map[string]string{"TOKEN": "estafette.secret(deFTz5Bdjg6SUe29.oPIkXbze5G9PNEWS2-ZnArl8BCqHnx4MdTdxHg37th9u)"}},
			},
		}
		err := obfuscationClient.CollectSecrets(pipeline)
		assert.Nil(t, err)

		// act
		output := obfuscationClient.Obfuscate("token: this is my secret")

		assert.Equal(t, "token: ***", output)
	})

	t.Run("KeepsObfuscatingSecretsOfEarlierPipelines", func(t *testing.T) {

		obfuscationClient := getObfuscationClient()
		first := &api.Pipeline{
			Name:    "github.com/estafette/estafette-ci-builder",
			EnvVars: map[string]string{"TOKEN": "estafette.secret(deFTz5Bdjg6SUe29.oPIkXbze5G9PNEWS2-ZnArl8BCqHnx4MdTdxHg37th9u)"},
		}
		second := &api.Pipeline{
			Name:    "github.com/estafette/estafette-ci-builder",
			EnvVars: map[string]string{"NAME": "estafette.secret(yOQOYnIJAS1tN5eQ.Xaao3tVnwszu3OJ4XqGO0NMw8Cw0c0V3qA==)"},
		}
		_ = obfuscationClient.CollectSecrets(first)
		_ = obfuscationClient.CollectSecrets(second)

		// act
		output := obfuscationClient.Obfuscate("this is my secret, estafette")

		assert.Equal(t, "***, ***", output)
	})
}

func TestObfuscateSecrets(t *testing.T) {

	t.Run("ReplacesSecretEnvelopes", func(t *testing.T) {

		obfuscationClient := getObfuscationClient()

		// act
		output := obfuscationClient.ObfuscateSecrets("TOKEN=estafette.secret(deFTz5Bdjg6SUe29.oPIkXbze5G9PNEWS2-ZnArl8BCqHnx4MdTdxHg37th9u)")

		assert.Equal(t, "TOKEN=***", output)
	})
}

func getObfuscationClient() Client {
	secretHelper := crypt.NewSecretHelper("SazbwMf3NZxVVbBqQHebPcXCqrVn3DDp", false)
	return NewClient(secretHelper)
}
