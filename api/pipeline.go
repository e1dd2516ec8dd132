package api

import (
	"time"

	"github.com/google/uuid"
)

// NewPipeline creates a pipeline run in created status from a validated definition
func NewPipeline(definition *PipelineDefinition) *Pipeline {

	pipeline := &Pipeline{
		ID:          uuid.New().String(),
		Name:        definition.Name,
		Platform:    definition.Platform,
		Labels:      copyStringMap(definition.Labels),
		EnvVars:     copyStringMap(definition.EnvVars),
		Status:      PipelineStatusCreated,
		Jobs:        make([]*Job, 0, len(definition.Jobs)),
		Gates:       append([]QualityGate(nil), definition.Gates...),
		Strategy:    definition.Strategy.Copy(),
		Environment: definition.Environment,
		CreatedAt:   time.Now().UTC(),
	}

	for _, d := range definition.Jobs {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		pipeline.Jobs = append(pipeline.Jobs, &Job{
			ID:          d.ID,
			Name:        name,
			DependsOn:   append([]string(nil), d.DependsOn...),
			Optional:    d.Optional,
			MaxRetries:  d.MaxRetries,
			Status:      JobStatusPending,
			Timeout:     d.Timeout,
			Image:       d.Image,
			Shell:       d.Shell,
			WorkDir:     d.WorkDir,
			Commands:    append([]string(nil), d.Commands...),
			EnvVars:     copyStringMap(d.EnvVars),
			Outputs:     append([]ArtifactDeclaration(nil), d.Artifacts...),
			MetricsFile: d.MetricsFile,
		})
	}

	return pipeline
}

// GetJob returns the job with the given id, or nil
func (p *Pipeline) GetJob(jobID string) *Job {
	for _, j := range p.Jobs {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

// Metrics merges the metrics of all jobs; on duplicate names the job declared last wins
func (p *Pipeline) Metrics() map[string]float64 {
	metrics := map[string]float64{}
	for _, j := range p.Jobs {
		for k, v := range j.Metrics {
			metrics[k] = v
		}
	}
	return metrics
}

// Copy returns a deep copy, so snapshots can be handed out while the run keeps mutating the original
func (p *Pipeline) Copy() *Pipeline {
	if p == nil {
		return nil
	}

	c := *p
	c.Labels = copyStringMap(p.Labels)
	c.EnvVars = copyStringMap(p.EnvVars)
	c.Gates = append([]QualityGate(nil), p.Gates...)
	c.Strategy = p.Strategy.Copy()
	c.StartedAt = copyTime(p.StartedAt)
	c.FinishedAt = copyTime(p.FinishedAt)

	if p.GateResult != nil {
		gr := *p.GateResult
		gr.Violated = append([]string(nil), p.GateResult.Violated...)
		gr.Warnings = append([]string(nil), p.GateResult.Warnings...)
		c.GateResult = &gr
	}
	if p.Rollout != nil {
		r := *p.Rollout
		r.CompletedSteps = append([]string(nil), p.Rollout.CompletedSteps...)
		c.Rollout = &r
	}

	c.Jobs = make([]*Job, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		c.Jobs = append(c.Jobs, j.Copy())
	}

	return &c
}

// Copy returns a deep copy of the job
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}

	c := *j
	c.DependsOn = append([]string(nil), j.DependsOn...)
	c.Commands = append([]string(nil), j.Commands...)
	c.EnvVars = copyStringMap(j.EnvVars)
	c.Outputs = append([]ArtifactDeclaration(nil), j.Outputs...)
	c.ArtifactIDs = append([]string(nil), j.ArtifactIDs...)
	c.StartedAt = copyTime(j.StartedAt)
	c.FinishedAt = copyTime(j.FinishedAt)
	if j.Metrics != nil {
		c.Metrics = make(map[string]float64, len(j.Metrics))
		for k, v := range j.Metrics {
			c.Metrics[k] = v
		}
	}

	return &c
}

// Copy returns a deep copy of the strategy
func (s *DeploymentStrategy) Copy() *DeploymentStrategy {
	if s == nil {
		return nil
	}

	c := *s
	if s.Rolling != nil {
		r := *s.Rolling
		c.Rolling = &r
	}
	if s.BlueGreen != nil {
		bg := *s.BlueGreen
		c.BlueGreen = &bg
	}
	if s.Canary != nil {
		cp := *s.Canary
		cp.Gates = append([]QualityGate(nil), s.Canary.Gates...)
		c.Canary = &cp
	}

	return &c
}

// TransitiveDependents returns the ids of all jobs that depend directly or indirectly on jobID, in declaration order
func TransitiveDependents(jobs []*Job, jobID string) []string {

	dependents := map[string][]string{}
	for _, j := range jobs {
		for _, d := range j.DependsOn {
			dependents[d] = append(dependents[d], j.ID)
		}
	}

	reached := map[string]struct{}{}
	stack := []string{jobID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range dependents[id] {
			if _, ok := reached[d]; !ok {
				reached[d] = struct{}{}
				stack = append(stack, d)
			}
		}
	}

	ids := []string{}
	for _, j := range jobs {
		if _, ok := reached[j.ID]; ok {
			ids = append(ids, j.ID)
		}
	}

	return ids
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
