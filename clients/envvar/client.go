package envvar

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/estafette/estafette-ci-orchestrator/api"
	crypt "github.com/estafette/estafette-ci-crypt"
	foundation "github.com/estafette/estafette-foundation"
	"github.com/rs/zerolog/log"
)

// Client assembles the environment variables a job runs with
//go:generate mockgen -package=envvar -destination ./mock.go -source=client.go
type Client interface {
	CollectJobEnvvars(pipeline *api.Pipeline, job *api.Job, attempt int) map[string]string
	CollectRuntimeEnvvars(pipeline *api.Pipeline, job *api.Job, attempt int) map[string]string
	CollectLabelEnvvars(labels map[string]string) map[string]string
	GetEnvvarName(key string) string
	OverrideEnvvars(...map[string]string) map[string]string
	DecryptSecret(string, string) string
	DecryptSecrets(map[string]string, string) map[string]string
	MakeDNSLabelSafe(string) string
}

// NewClient returns a new envvar.Client; runtime variables get prefix instead of CI_
func NewClient(prefix string, secretHelper crypt.SecretHelper) Client {
	if prefix == "" {
		prefix = "CI_"
	}
	return &client{
		prefix:       prefix,
		secretHelper: secretHelper,
	}
}

type client struct {
	prefix       string
	secretHelper crypt.SecretHelper
}

// CollectJobEnvvars combines runtime variables, labels, pipeline and job variables, in increasing order of precedence,
// and decrypts any secrets in them; ${VAR} references to runtime variables get expanded
func (c *client) CollectJobEnvvars(pipeline *api.Pipeline, job *api.Job, attempt int) map[string]string {

	runtimeEnvvars := c.CollectRuntimeEnvvars(pipeline, job, attempt)

	envvars := c.OverrideEnvvars(runtimeEnvvars, c.CollectLabelEnvvars(pipeline.Labels), pipeline.EnvVars, job.EnvVars)
	envvars = c.DecryptSecrets(envvars, pipeline.Name)

	for k, v := range envvars {
		envvars[k] = os.Expand(v, func(key string) string {
			if value, ok := runtimeEnvvars[key]; ok {
				return value
			}
			return "${" + key + "}"
		})
	}

	return envvars
}

func (c *client) CollectRuntimeEnvvars(pipeline *api.Pipeline, job *api.Job, attempt int) map[string]string {

	envvars := map[string]string{
		c.GetEnvvarName("CI_PIPELINE_ID"):   pipeline.ID,
		c.GetEnvvarName("CI_PIPELINE_NAME"): pipeline.Name,
		c.GetEnvvarName("CI_PLATFORM"):      string(pipeline.Platform),
		c.GetEnvvarName("CI_JOB_ID"):        job.ID,
		c.GetEnvvarName("CI_JOB_NAME"):      job.Name,
		c.GetEnvvarName("CI_JOB_ATTEMPT"):   strconv.Itoa(attempt),
	}

	// dns safe versions for use in resource names
	envvars[c.GetEnvvarName("CI_PIPELINE_NAME_DNS_SAFE")] = c.MakeDNSLabelSafe(pipeline.Name)
	envvars[c.GetEnvvarName("CI_JOB_NAME_DNS_SAFE")] = c.MakeDNSLabelSafe(job.Name)

	if pipeline.Environment.Name != "" {
		envvars[c.GetEnvvarName("CI_ENVIRONMENT")] = pipeline.Environment.Name
	}

	return envvars
}

func (c *client) CollectLabelEnvvars(labels map[string]string) map[string]string {

	envvars := map[string]string{}
	for key, value := range labels {
		envvars[c.GetEnvvarName("CI_LABEL_"+foundation.ToUpperSnakeCase(key))] = value
	}

	return envvars
}

func (c *client) GetEnvvarName(key string) string {
	if strings.HasPrefix(key, "CI_") {
		return c.prefix + strings.TrimPrefix(key, "CI_")
	}
	return key
}

func (c *client) OverrideEnvvars(envvarMaps ...map[string]string) (envvars map[string]string) {

	envvars = make(map[string]string)
	for _, envvarMap := range envvarMaps {
		for k, v := range envvarMap {
			envvars[k] = v
		}
	}

	return
}

func (c *client) DecryptSecret(encryptedValue, pipeline string) (decryptedValue string) {

	decryptedValue, err := c.secretHelper.DecryptAllEnvelopes(encryptedValue, pipeline)

	if err != nil {
		log.Warn().Err(err).Msg("Failed decrypting secret")
		return encryptedValue
	}

	return
}

func (c *client) DecryptSecrets(encryptedEnvvars map[string]string, pipeline string) (envvars map[string]string) {

	if len(encryptedEnvvars) == 0 {
		return encryptedEnvvars
	}

	envvars = make(map[string]string)
	for k, v := range encryptedEnvvars {
		envvars[k] = c.DecryptSecret(v, pipeline)
	}

	return
}

var (
	invalidDNSCharactersRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	leadingDigitsRegex        = regexp.MustCompile(`^[0-9-]+`)
)

func (c *client) MakeDNSLabelSafe(value string) string {
	// in order for the label to be used as a dns label (part between dots) it should only use
	// lowercase letters, digits and hyphens and have a max length of 63 characters;
	// also it should start with a letter and not end in a hyphen

	value = strings.ToLower(value)
	value = invalidDNSCharactersRegex.ReplaceAllString(value, "-")
	value = strings.Replace(value, "--", "-", -1)
	value = strings.Trim(value, "-")
	value = leadingDigitsRegex.ReplaceAllString(value, "")

	if len(value) > 63 {
		value = value[:63]
	}

	return strings.Trim(value, "-")
}
