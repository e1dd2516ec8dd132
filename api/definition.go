package api

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateDefinition checks the job graph of a definition: at least one job, unique ids, known dependencies and no
// cycles; gates and strategy are validated by their own services
func ValidateDefinition(definition *PipelineDefinition) error {

	if definition == nil {
		return &DefinitionError{Reason: "definition is empty"}
	}
	if len(definition.Jobs) == 0 {
		return &DefinitionError{PipelineName: definition.Name, Reason: "pipeline has no jobs"}
	}

	ids := make(map[string]struct{}, len(definition.Jobs))
	for _, j := range definition.Jobs {
		if j == nil || j.ID == "" {
			return &DefinitionError{PipelineName: definition.Name, Reason: "job without id"}
		}
		if _, ok := ids[j.ID]; ok {
			return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: "duplicate job id"}
		}
		ids[j.ID] = struct{}{}
		if j.MaxRetries < 0 {
			return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: "retries can't be negative"}
		}
		if j.Timeout < 0 {
			return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: "timeout can't be negative"}
		}
		for _, a := range j.Artifacts {
			if a.Path == "" {
				return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: "artifact without path"}
			}
			if a.Kind != "" && !a.Kind.IsValid() {
				return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: fmt.Sprintf("unknown artifact kind %q", a.Kind)}
			}
		}
	}

	for _, j := range definition.Jobs {
		for _, d := range j.DependsOn {
			if d == j.ID {
				return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: "job depends on itself"}
			}
			if _, ok := ids[d]; !ok {
				return &DefinitionError{PipelineName: definition.Name, JobID: j.ID, Reason: fmt.Sprintf("unknown dependency %q", d)}
			}
		}
	}

	if cycle := findCycle(definition.Jobs); len(cycle) > 0 {
		return &DefinitionError{PipelineName: definition.Name, JobID: cycle[0], Reason: fmt.Sprintf("dependency cycle between jobs %v", strings.Join(cycle, ", "))}
	}

	return nil
}

// TopologicalOrder returns the job ids in an order that respects dependencies, preferring declaration order; it
// expects a validated definition
func TopologicalOrder(jobs []*JobDefinition) []string {
	order, _ := kahn(jobs)
	return order
}

// findCycle returns the sorted ids of the jobs that can't be ordered, which are the jobs on or behind a cycle
func findCycle(jobs []*JobDefinition) []string {
	_, remaining := kahn(jobs)
	sort.Strings(remaining)
	return remaining
}

// kahn runs Kahn's algorithm over an explicit adjacency list so a cycle never leads to endless traversal
func kahn(jobs []*JobDefinition) (order []string, remaining []string) {

	indegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string, len(jobs))
	for _, j := range jobs {
		indegree[j.ID] += 0
		for _, d := range j.DependsOn {
			indegree[j.ID]++
			dependents[d] = append(dependents[d], j.ID)
		}
	}

	position := make(map[string]int, len(jobs))
	for i, j := range jobs {
		position[j.ID] = i
	}

	queue := []string{}
	for _, j := range jobs {
		if indegree[j.ID] == 0 {
			queue = append(queue, j.ID)
		}
	}

	order = make([]string, 0, len(jobs))
	for len(queue) > 0 {
		sort.SliceStable(queue, func(a, b int) bool { return position[queue[a]] < position[queue[b]] })
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) < len(jobs) {
		done := make(map[string]struct{}, len(order))
		for _, id := range order {
			done[id] = struct{}{}
		}
		for _, j := range jobs {
			if _, ok := done[j.ID]; !ok {
				remaining = append(remaining, j.ID)
			}
		}
	}

	return order, remaining
}
