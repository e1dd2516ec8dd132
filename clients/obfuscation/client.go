package obfuscation

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/estafette/estafette-ci-orchestrator/api"
	crypt "github.com/estafette/estafette-ci-crypt"
)

const maxLengthToSkipObfuscation = 3

var secretEnvelopeRegex = regexp.MustCompile(`estafette\.secret\(([a-zA-Z0-9.=_-]+)\)`)

// Client hides secret values from job output, messages and status events
//go:generate mockgen -package=obfuscation -destination ./mock.go -source=client.go
type Client interface {
	CollectSecrets(pipeline *api.Pipeline) (err error)
	Obfuscate(input string) string
	ObfuscateSecrets(input string) string
}

// NewClient returns a new obfuscation.Client
func NewClient(secretHelper crypt.SecretHelper) Client {
	return &client{
		secretHelper: secretHelper,
		values:       map[string]struct{}{},
		replacer:     strings.NewReplacer(),
	}
}

type client struct {
	secretHelper crypt.SecretHelper
	mu           sync.RWMutex
	values       map[string]struct{}
	replacer     *strings.Replacer
}

// CollectSecrets adds the decrypted values of all secrets in the pipeline to the values being obfuscated; values of
// earlier pipelines stay obfuscated as well
func (c *client) CollectSecrets(pipeline *api.Pipeline) (err error) {

	pipelineBytes, err := json.Marshal(pipeline)
	if err != nil {
		return err
	}
	values, err := c.secretHelper.GetAllSecretValues(string(pipelineBytes), pipeline.Name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range getObfuscatableValues(values) {
		c.values[v] = struct{}{}
	}

	// longest values first so a secret containing another secret isn't partially replaced
	sorted := make([]string, 0, len(c.values))
	for v := range c.values {
		sorted = append(sorted, v)
	}
	sortByLengthDescending(sorted)

	replacerStrings := make([]string, 0, 2*len(sorted))
	for _, v := range sorted {
		replacerStrings = append(replacerStrings, v, "***")
	}
	c.replacer = strings.NewReplacer(replacerStrings...)

	return nil
}

func getObfuscatableValues(values []string) (obfuscatable []string) {

	obfuscatable = []string{}

	addLines := func(value string) {
		for _, l := range strings.Split(value, "\n") {
			if len(l) > maxLengthToSkipObfuscation {
				obfuscatable = append(obfuscatable, l)

				// split further if line contains \n (encoded newline)
				for _, ll := range strings.Split(l, "\\n") {
					if len(ll) > maxLengthToSkipObfuscation {
						obfuscatable = append(obfuscatable, ll)
					}
				}
			}
		}
	}

	for _, v := range values {
		addLines(v)

		// if value looks like base64 decode it
		if decodedValue, err := base64.StdEncoding.DecodeString(v); err == nil {
			addLines(string(decodedValue))
		}
	}

	return obfuscatable
}

func sortByLengthDescending(values []string) {
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) == len(values[j]) {
			return values[i] < values[j]
		}
		return len(values[i]) > len(values[j])
	})
}

func (c *client) Obfuscate(input string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.replacer.Replace(input)
}

func (c *client) ObfuscateSecrets(input string) string {
	return secretEnvelopeRegex.ReplaceAllString(input, "***")
}
