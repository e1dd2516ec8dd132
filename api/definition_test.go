package api

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidateDefinition(t *testing.T) {

	t.Run("ReturnsNilForValidChain", func(t *testing.T) {

		definition := &PipelineDefinition{
			Name: "chain",
			Jobs: []*JobDefinition{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"b"}},
			},
		}

		// act
		err := ValidateDefinition(definition)

		assert.Nil(t, err)
	})

	t.Run("ReturnsDefinitionErrorIfPipelineHasNoJobs", func(t *testing.T) {

		// act
		err := ValidateDefinition(&PipelineDefinition{Name: "empty"})

		var definitionError *DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionErrorForDuplicateJobID", func(t *testing.T) {

		definition := &PipelineDefinition{
			Jobs: []*JobDefinition{
				{ID: "a"},
				{ID: "a"},
			},
		}

		// act
		err := ValidateDefinition(definition)

		var definitionError *DefinitionError
		if assert.True(t, errors.As(err, &definitionError)) {
			assert.Equal(t, "a", definitionError.JobID)
		}
	})

	t.Run("ReturnsDefinitionErrorForUnknownDependency", func(t *testing.T) {

		definition := &PipelineDefinition{
			Jobs: []*JobDefinition{
				{ID: "a", DependsOn: []string{"build"}},
			},
		}

		// act
		err := ValidateDefinition(definition)

		var definitionError *DefinitionError
		if assert.True(t, errors.As(err, &definitionError)) {
			assert.Equal(t, "a", definitionError.JobID)
			assert.Contains(t, definitionError.Reason, "build")
		}
	})

	t.Run("ReturnsDefinitionErrorForSelfDependency", func(t *testing.T) {

		definition := &PipelineDefinition{
			Jobs: []*JobDefinition{
				{ID: "a", DependsOn: []string{"a"}},
			},
		}

		// act
		err := ValidateDefinition(definition)

		var definitionError *DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionErrorNamingTheJobsOfACycle", func(t *testing.T) {

		definition := &PipelineDefinition{
			Jobs: []*JobDefinition{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a", "d"}},
				{ID: "c", DependsOn: []string{"b"}},
				{ID: "d", DependsOn: []string{"c"}},
			},
		}

		// act
		err := ValidateDefinition(definition)

		var definitionError *DefinitionError
		if assert.True(t, errors.As(err, &definitionError)) {
			assert.Contains(t, definitionError.Reason, "b, c, d")
		}
	})

	t.Run("ReturnsDefinitionErrorForNegativeRetries", func(t *testing.T) {

		definition := &PipelineDefinition{
			Jobs: []*JobDefinition{
				{ID: "a", MaxRetries: -1},
			},
		}

		// act
		err := ValidateDefinition(definition)

		var definitionError *DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionErrorForUnknownArtifactKind", func(t *testing.T) {

		definition := &PipelineDefinition{
			Jobs: []*JobDefinition{
				{ID: "a", Artifacts: []ArtifactDeclaration{{Path: "out.tgz", Kind: "tarball"}}},
			},
		}

		// act
		err := ValidateDefinition(definition)

		var definitionError *DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})
}

func TestTopologicalOrder(t *testing.T) {

	t.Run("ReturnsDeclarationOrderForIndependentJobs", func(t *testing.T) {

		jobs := []*JobDefinition{{ID: "e"}, {ID: "d"}, {ID: "c"}, {ID: "b"}, {ID: "a"}}

		// act
		order := TopologicalOrder(jobs)

		assert.Equal(t, []string{"e", "d", "c", "b", "a"}, order)
	})

	t.Run("ReturnsDependenciesBeforeDependents", func(t *testing.T) {

		jobs := []*JobDefinition{
			{ID: "deploy", DependsOn: []string{"test", "build"}},
			{ID: "test", DependsOn: []string{"build"}},
			{ID: "build"},
		}

		// act
		order := TopologicalOrder(jobs)

		assert.Equal(t, []string{"build", "test", "deploy"}, order)
	})
}

// randomDag creates n jobs where each job only depends on jobs declared before it
func randomDag(n int, seed int64) []*JobDefinition {
	r := rand.New(rand.NewSource(seed))
	jobs := make([]*JobDefinition, 0, n)
	for i := 0; i < n; i++ {
		job := &JobDefinition{ID: fmt.Sprintf("job-%v", i)}
		for d := 0; d < i; d++ {
			if r.Intn(3) == 0 {
				job.DependsOn = append(job.DependsOn, fmt.Sprintf("job-%v", d))
			}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// **Property 2: Cycles are always rejected**
// *For any* acyclic job graph validation succeeds and the topological order respects every edge; closing a path back
// onto its start makes validation fail with a DefinitionError.
func TestValidateDefinitionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("acyclic graphs validate and order dependencies first", prop.ForAll(
		func(n int, seed int64) bool {
			jobs := randomDag(n, seed)
			if ValidateDefinition(&PipelineDefinition{Jobs: jobs}) != nil {
				return false
			}
			position := map[string]int{}
			for i, id := range TopologicalOrder(jobs) {
				position[id] = i
			}
			for _, j := range jobs {
				for _, d := range j.DependsOn {
					if position[d] >= position[j.ID] {
						return false
					}
				}
			}
			return len(position) == len(jobs)
		},
		gen.IntRange(1, 12),
		gen.Int64(),
	))

	properties.Property("a back edge makes validation fail", prop.ForAll(
		func(n int, seed int64) bool {
			jobs := randomDag(n, seed)
			// chain every job to its predecessor and close the loop
			for i := 1; i < n; i++ {
				jobs[i].DependsOn = append(jobs[i].DependsOn, jobs[i-1].ID)
			}
			jobs[0].DependsOn = append(jobs[0].DependsOn, jobs[n-1].ID)

			var definitionError *DefinitionError
			return errors.As(ValidateDefinition(&PipelineDefinition{Jobs: jobs}), &definitionError)
		},
		gen.IntRange(2, 12),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
