package evaluation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {

	t.Run("ReturnsPassWhenAllGatesAreMet", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
			{ID: "lint", Metric: "lint_errors", Comparator: api.ComparatorEqual, Threshold: 0},
		}

		// act
		result := evaluationService.Evaluate(gates, map[string]float64{"coverage": 81.5, "lint_errors": 0})

		assert.Equal(t, api.GateVerdictPass, result.Verdict)
		assert.Equal(t, 0, len(result.Violated))
		assert.Equal(t, 0, len(result.Warnings))
	})

	t.Run("ReturnsFailWithViolatedBlockingGate", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
			{ID: "latency", Predicate: "p99_latency_ms < 300"},
		}

		// act
		result := evaluationService.Evaluate(gates, map[string]float64{"coverage": 72, "p99_latency_ms": 120})

		assert.Equal(t, api.GateVerdictFail, result.Verdict)
		assert.Equal(t, []string{"coverage"}, result.Violated)
	})

	t.Run("ReturnsWarnWhenOnlyNonBlockingGatesAreViolated", func(t *testing.T) {

		evaluationService := NewService()
		nonBlocking := false
		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
			{ID: "warnings", Predicate: "lint_warnings <= 10", Blocking: &nonBlocking},
		}

		// act
		result := evaluationService.Evaluate(gates, map[string]float64{"coverage": 90, "lint_warnings": 25})

		assert.Equal(t, api.GateVerdictWarn, result.Verdict)
		assert.Equal(t, []string{"warnings"}, result.Warnings)
		assert.Equal(t, 0, len(result.Violated))
	})

	t.Run("ReturnsFailWhenMetricIsMissing", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
		}

		// act
		result := evaluationService.Evaluate(gates, map[string]float64{})

		assert.Equal(t, api.GateVerdictFail, result.Verdict)
		assert.Equal(t, []string{"coverage"}, result.Violated)
	})

	t.Run("ReturnsPassForNegativeThreshold", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "drift", Metric: "drift", Comparator: api.ComparatorGreaterThan, Threshold: -5},
		}

		// act
		result := evaluationService.Evaluate(gates, map[string]float64{"drift": -2})

		assert.Equal(t, api.GateVerdictPass, result.Verdict)
	})

	t.Run("ReturnsPassForMetricNameWithHyphenInBrackets", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "errors", Predicate: "[error-rate] < 0.05"},
		}

		// act
		result := evaluationService.Evaluate(gates, map[string]float64{"error-rate": 0.01})

		assert.Equal(t, api.GateVerdictPass, result.Verdict)
	})

	t.Run("ReturnsPassWithoutGates", func(t *testing.T) {

		evaluationService := NewService()

		// act
		result := evaluationService.Evaluate(nil, map[string]float64{"coverage": 10})

		assert.Equal(t, api.GateVerdictPass, result.Verdict)
	})
}

func TestValidate(t *testing.T) {

	t.Run("ReturnsNilForValidGates", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
			{ID: "errors", Stage: api.GateStagePreDeploy, Metric: "error_rate", Comparator: api.ComparatorLessThan, Threshold: 0.01},
		}

		// act
		err := evaluationService.Validate(gates)

		assert.Nil(t, err)
	})

	t.Run("ReturnsDefinitionErrorForMalformedPredicate", func(t *testing.T) {

		evaluationService := NewService()

		for _, predicate := range []string{
			"coverage >=",
			"coverage != 80",
			"coverage >= 80 && lint_errors == 0",
			"coverage >= 'high'",
			"80 <= coverage",
			"coverage",
		} {
			// act
			err := evaluationService.Validate([]api.QualityGate{{ID: "coverage", Predicate: predicate}})

			var definitionError *api.DefinitionError
			if assert.True(t, errors.As(err, &definitionError), predicate) {
				assert.Equal(t, "coverage", definitionError.GateID)
			}
		}
	})

	t.Run("ReturnsDefinitionErrorForDuplicateGateID", func(t *testing.T) {

		evaluationService := NewService()
		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
			{ID: "coverage", Predicate: "coverage >= 70"},
		}

		// act
		err := evaluationService.Validate(gates)

		var definitionError *api.DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionErrorForUnknownStage", func(t *testing.T) {

		evaluationService := NewService()

		// act
		err := evaluationService.Validate([]api.QualityGate{{ID: "coverage", Stage: "post-deploy", Predicate: "coverage >= 80"}})

		var definitionError *api.DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})

	t.Run("ReturnsDefinitionErrorWhenBothPredicateAndMetricAreSet", func(t *testing.T) {

		evaluationService := NewService()

		// act
		err := evaluationService.Validate([]api.QualityGate{{ID: "coverage", Predicate: "coverage >= 80", Metric: "coverage", Comparator: ">=", Threshold: 80}})

		var definitionError *api.DefinitionError
		assert.True(t, errors.As(err, &definitionError))
	})
}

func TestFilter(t *testing.T) {

	t.Run("ReturnsGatesForStageDefaultingToPostTest", func(t *testing.T) {

		gates := []api.QualityGate{
			{ID: "coverage", Predicate: "coverage >= 80"},
			{ID: "errors", Stage: api.GateStagePreDeploy, Predicate: "error_rate < 0.01"},
			{ID: "lint", Stage: api.GateStagePostTest, Predicate: "lint_errors == 0"},
		}

		// act
		filtered := Filter(gates, api.GateStagePostTest)

		if assert.Equal(t, 2, len(filtered)) {
			assert.Equal(t, "coverage", filtered[0].ID)
			assert.Equal(t, "lint", filtered[1].ID)
		}
	})
}

// **Property 3: Gate evaluation is pure**
// *For any* gates and metrics, evaluating twice yields the same result, and the verdict is fail exactly when a
// blocking gate is violated.
func TestEvaluateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	comparators := []api.Comparator{api.ComparatorLessThan, api.ComparatorLessThanOrEqual, api.ComparatorGreaterThan, api.ComparatorGreaterThanOrEqual, api.ComparatorEqual}
	compare := map[api.Comparator]func(a, b float64) bool{
		api.ComparatorLessThan:           func(a, b float64) bool { return a < b },
		api.ComparatorLessThanOrEqual:    func(a, b float64) bool { return a <= b },
		api.ComparatorGreaterThan:        func(a, b float64) bool { return a > b },
		api.ComparatorGreaterThanOrEqual: func(a, b float64) bool { return a >= b },
		api.ComparatorEqual:              func(a, b float64) bool { return a == b },
	}

	toGates := func(thresholds []int, comparatorIndexes []int, blocking []bool) []api.QualityGate {
		gates := []api.QualityGate{}
		for i, threshold := range thresholds {
			b := i < len(blocking) && blocking[i]
			c := comparators[0]
			if i < len(comparatorIndexes) {
				c = comparators[comparatorIndexes[i]]
			}
			gates = append(gates, api.QualityGate{
				ID:         fmt.Sprintf("gate-%v", i),
				Metric:     fmt.Sprintf("metric_%v", i%3),
				Comparator: c,
				Threshold:  float64(threshold),
				Blocking:   &b,
			})
		}
		return gates
	}

	toMetrics := func(values []int) map[string]float64 {
		metrics := map[string]float64{}
		for i, v := range values {
			if i < 3 {
				metrics[fmt.Sprintf("metric_%v", i)] = float64(v)
			}
		}
		return metrics
	}

	evaluationService := NewService()

	properties.Property("evaluating twice yields the same result", prop.ForAll(
		func(thresholds []int, comparatorIndexes []int, blocking []bool, values []int) bool {
			gates := toGates(thresholds, comparatorIndexes, blocking)
			metrics := toMetrics(values)
			first := evaluationService.Evaluate(gates, metrics)
			second := evaluationService.Evaluate(gates, metrics)
			return assert.ObjectsAreEqual(first, second)
		},
		gen.SliceOf(gen.IntRange(-100, 100)),
		gen.SliceOf(gen.IntRange(0, len(comparators)-1)),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.IntRange(-100, 100)),
	))

	properties.Property("verdict is fail exactly when a blocking gate is violated", prop.ForAll(
		func(thresholds []int, comparatorIndexes []int, blocking []bool, values []int) bool {
			gates := toGates(thresholds, comparatorIndexes, blocking)
			metrics := toMetrics(values)

			blockingViolated := false
			for _, g := range gates {
				value, ok := metrics[g.Metric]
				if g.IsBlocking() && (!ok || !compare[g.Comparator](value, g.Threshold)) {
					blockingViolated = true
				}
			}

			result := evaluationService.Evaluate(gates, metrics)
			return (result.Verdict == api.GateVerdictFail) == blockingViolated
		},
		gen.SliceOf(gen.IntRange(-100, 100)),
		gen.SliceOf(gen.IntRange(0, len(comparators)-1)),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.IntRange(-100, 100)),
	))

	properties.TestingRun(t)
}
