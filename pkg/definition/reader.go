package definition

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/estafette/estafette-ci-orchestrator/api"
	manifest "github.com/estafette/estafette-ci-manifest"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v2"
)

// ReadFile reads a pipeline definition from disk, see Parse
func ReadFile(path string) (*api.PipelineDefinition, error) {

	log.Debug().Msgf("Reading %v file...", path)

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("reading %v failed: %w", path, err)
	}

	log.Debug().Msgf("Finished reading %v file successfully", path)

	return definition, nil
}

// Parse unmarshals a native pipeline definition, or imports an .estafette.yaml manifest when the document has a
// top-level stages section; json is accepted as well since it's valid yaml
func Parse(data []byte) (*api.PipelineDefinition, error) {

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &api.DefinitionError{Reason: "definition is empty"}
	}

	var layout struct {
		Jobs   []interface{} `yaml:"jobs"`
		Stages yaml.MapSlice `yaml:"stages"`
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, &api.DefinitionError{Reason: fmt.Sprintf("malformed yaml: %v", err)}
	}

	if len(layout.Jobs) == 0 && len(layout.Stages) > 0 {
		var m manifest.EstafetteManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, &api.DefinitionError{Reason: fmt.Sprintf("malformed estafette manifest: %v", err)}
		}
		return FromEstafetteManifest(m), nil
	}

	var definition api.PipelineDefinition
	if err := yaml.UnmarshalStrict(data, &definition); err != nil {
		return nil, &api.DefinitionError{Reason: fmt.Sprintf("malformed definition: %v", err)}
	}

	return &definition, nil
}

// FromEstafetteManifest turns the stages of an estafette manifest into a chain of jobs; parallel stages fan out into a
// job per nested stage and the next stage waits for all of them
func FromEstafetteManifest(m manifest.EstafetteManifest) *api.PipelineDefinition {

	definition := &api.PipelineDefinition{
		Name:     m.Labels["app"],
		Platform: api.CIPlatformDocker,
		Labels:   m.Labels,
		EnvVars:  m.GlobalEnvVars,
		Jobs:     make([]*api.JobDefinition, 0, len(m.Stages)),
	}

	previous := []string{}
	for _, stage := range m.Stages {
		if stage == nil {
			continue
		}

		if len(stage.ParallelStages) > 0 {
			group := []string{}
			for _, nested := range stage.ParallelStages {
				if nested == nil {
					continue
				}
				job := jobFromStage(nested, previous)
				job.Name = fmt.Sprintf("%v/%v", stage.Name, nested.Name)
				definition.Jobs = append(definition.Jobs, job)
				group = append(group, job.ID)
			}
			previous = group
			continue
		}

		job := jobFromStage(stage, previous)
		definition.Jobs = append(definition.Jobs, job)
		previous = []string{job.ID}
	}

	return definition
}

func jobFromStage(stage *manifest.EstafetteStage, dependsOn []string) *api.JobDefinition {
	return &api.JobDefinition{
		ID:         stage.Name,
		Name:       stage.Name,
		DependsOn:  append([]string(nil), dependsOn...),
		MaxRetries: stage.Retries,
		Image:      stage.ContainerImage,
		Shell:      stage.Shell,
		WorkDir:    stage.WorkingDirectory,
		Commands:   stage.Commands,
		EnvVars:    stage.EnvVars,
	}
}

// Marshal renders a definition as yaml
func Marshal(definition *api.PipelineDefinition) ([]byte, error) {
	return yaml.Marshal(definition)
}
