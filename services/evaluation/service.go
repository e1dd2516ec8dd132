package evaluation

import (
	"fmt"
	"strconv"

	"github.com/Knetic/govaluate"
	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/rs/zerolog/log"
)

// Service evaluates quality gates against a snapshot of metrics
//go:generate mockgen -package=evaluation -destination ./mock.go -source=service.go
type Service interface {
	Validate(gates []api.QualityGate) error
	Evaluate(gates []api.QualityGate, metrics map[string]float64) api.GateResult
}

// NewService returns a new evaluation.Service
func NewService() Service {
	return &service{}
}

type service struct {
}

// Validate returns a DefinitionError for the first gate without id, with a duplicate id, an unknown stage or a
// predicate that isn't a single comparison of a metric with a number
func (s *service) Validate(gates []api.QualityGate) error {

	ids := make(map[string]struct{}, len(gates))
	for _, g := range gates {
		if g.ID == "" {
			return &api.DefinitionError{Reason: "quality gate without id"}
		}
		if _, ok := ids[g.ID]; ok {
			return &api.DefinitionError{GateID: g.ID, Reason: "duplicate quality gate id"}
		}
		ids[g.ID] = struct{}{}

		switch g.GetStage() {
		case api.GateStagePostTest, api.GateStagePreDeploy:
		default:
			return &api.DefinitionError{GateID: g.ID, Reason: fmt.Sprintf("unknown gate stage %q", g.Stage)}
		}

		if _, _, err := compile(g); err != nil {
			return &api.DefinitionError{GateID: g.ID, Reason: err.Error()}
		}
	}

	return nil
}

// Evaluate checks every gate; a violated blocking gate fails the result, a violated non-blocking gate only warns
func (s *service) Evaluate(gates []api.QualityGate, metrics map[string]float64) api.GateResult {

	result := api.GateResult{
		Verdict: api.GateVerdictPass,
	}

	for _, g := range gates {
		passed, err := evaluateGate(g, metrics)
		if err != nil {
			log.Warn().Err(err).Msgf("[%v] Quality gate violated", g.ID)
		} else {
			log.Debug().Msgf("[%v] Result of quality gate is %v", g.ID, passed)
		}
		if passed {
			continue
		}

		if g.IsBlocking() {
			result.Violated = append(result.Violated, g.ID)
		} else {
			result.Warnings = append(result.Warnings, g.ID)
		}
	}

	switch {
	case len(result.Violated) > 0:
		result.Verdict = api.GateVerdictFail
	case len(result.Warnings) > 0:
		result.Verdict = api.GateVerdictWarn
	}

	return result
}

// Filter returns the gates that apply to stage, in declaration order
func Filter(gates []api.QualityGate, stage api.GateStage) []api.QualityGate {
	filtered := []api.QualityGate{}
	for _, g := range gates {
		if g.GetStage() == stage {
			filtered = append(filtered, g)
		}
	}
	return filtered
}

func evaluateGate(gate api.QualityGate, metrics map[string]float64) (bool, error) {

	metric, expression, err := compile(gate)
	if err != nil {
		return false, err
	}

	value, ok := metrics[metric]
	if !ok {
		return false, fmt.Errorf("metric %v is missing", metric)
	}

	r, err := expression.Evaluate(map[string]interface{}{metric: value})
	if err != nil {
		return false, err
	}

	if result, ok := r.(bool); ok {
		return result, nil
	}

	return false, fmt.Errorf("result of evaluating gate %v is not of type boolean", gate.ID)
}

// compile turns a gate into a govaluate expression and returns the metric it reads
func compile(gate api.QualityGate) (metric string, expression *govaluate.EvaluableExpression, err error) {

	input := gate.Predicate
	switch {
	case input != "" && gate.Metric != "":
		return "", nil, fmt.Errorf("gate sets both a predicate and a metric")
	case input == "" && gate.Metric == "":
		return "", nil, fmt.Errorf("gate sets neither a predicate nor a metric")
	case input == "":
		input = fmt.Sprintf("[%v] %v %v", gate.Metric, gate.Comparator, strconv.FormatFloat(gate.Threshold, 'f', -1, 64))
	}

	expression, err = govaluate.NewEvaluableExpression(input)
	if err != nil {
		return "", nil, fmt.Errorf("predicate %q can't be parsed: %w", input, err)
	}

	if err = checkTokens(input, expression.Tokens()); err != nil {
		return "", nil, err
	}

	vars := expression.Vars()
	if len(vars) != 1 {
		return "", nil, fmt.Errorf("predicate %q should reference exactly one metric", input)
	}

	return vars[0], expression, nil
}

// checkTokens only allows `metric comparator number`, with an optional minus sign in front of the number
func checkTokens(input string, tokens []govaluate.ExpressionToken) error {

	invalid := fmt.Errorf("predicate %q should have the form 'metric comparator threshold' with comparator one of <, <=, >, >=, ==", input)

	if len(tokens) == 4 && tokens[2].Kind == govaluate.PREFIX && tokens[2].Value == "-" {
		tokens = []govaluate.ExpressionToken{tokens[0], tokens[1], tokens[3]}
	}
	if len(tokens) != 3 {
		return invalid
	}
	if tokens[0].Kind != govaluate.VARIABLE || tokens[1].Kind != govaluate.COMPARATOR || tokens[2].Kind != govaluate.NUMERIC {
		return invalid
	}

	switch api.Comparator(fmt.Sprint(tokens[1].Value)) {
	case api.ComparatorLessThan, api.ComparatorLessThanOrEqual, api.ComparatorGreaterThan, api.ComparatorGreaterThanOrEqual, api.ComparatorEqual:
	default:
		return invalid
	}

	return nil
}
