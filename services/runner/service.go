package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/approval"
	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/estafette/estafette-ci-orchestrator/pkg/definition"
	"github.com/estafette/estafette-ci-orchestrator/server"
	"github.com/estafette/estafette-ci-orchestrator/services/deployment"
	"github.com/estafette/estafette-ci-orchestrator/services/pipeline"
	foundation "github.com/estafette/estafette-foundation"
	"github.com/olekukonko/tablewriter"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Service runs the orchestrator for the different commands of the cli
//go:generate mockgen -package=runner -destination ./mock.go -source=service.go
type Service interface {
	RunPipeline(ctx context.Context, definitionPath string) (*api.Pipeline, error)
	ValidateDefinition(ctx context.Context, definitionPath string) (*api.PipelineDefinition, error)
	PlanRollout(ctx context.Context, definitionPath string) (api.RolloutPlan, error)
	Serve(ctx context.Context) error
}

// NewService returns a new runner.Service writing human readable output to out
func NewService(applicationInfo foundation.ApplicationInfo, cfg *config.Config, pipelineService pipeline.Service, deploymentService deployment.Service, approvalClient approval.Client, gatherer prometheus.Gatherer, out io.Writer) Service {
	return &service{
		applicationInfo:   applicationInfo,
		config:            cfg,
		pipelineService:   pipelineService,
		deploymentService: deploymentService,
		approvalClient:    approvalClient,
		gatherer:          gatherer,
		out:               out,
	}
}

type service struct {
	applicationInfo   foundation.ApplicationInfo
	config            *config.Config
	pipelineService   pipeline.Service
	deploymentService deployment.Service
	approvalClient    approval.Client
	gatherer          prometheus.Gatherer
	out               io.Writer
}

// RunPipeline submits the definition at definitionPath, runs it to completion and prints the job stats; the returned
// pipeline is set whenever it got submitted, also when it failed
func (s *service) RunPipeline(ctx context.Context, definitionPath string) (*api.Pipeline, error) {

	rootSpan, ctx := opentracing.StartSpanFromContext(ctx, "RunPipelineJob")
	defer rootSpan.Finish()

	def, err := definition.ReadFile(definitionPath)
	if err != nil {
		return nil, err
	}

	submitted, err := s.pipelineService.Submit(ctx, def)
	if err != nil {
		return nil, err
	}
	rootSpan.SetTag("pipeline", submitted.ID)

	log.Info().Msgf("[%v] Starting pipeline %v with %v jobs...", submitted.ID, submitted.Name, len(submitted.Jobs))

	pipeline, runErr := s.pipelineService.Start(ctx, submitted.ID)
	if pipeline == nil {
		return submitted, runErr
	}

	api.RenderStats(s.out, pipeline, s.colors())

	if runErr != nil {
		log.Warn().Err(runErr).Msgf("[%v] Pipeline %v finished with status %v", pipeline.ID, pipeline.Name, pipeline.Status)
	} else {
		log.Info().Msgf("[%v] Pipeline %v finished with status %v", pipeline.ID, pipeline.Name, pipeline.Status)
	}

	return pipeline, runErr
}

// ValidateDefinition reads the definition and runs every submit check against it
func (s *service) ValidateDefinition(ctx context.Context, definitionPath string) (*api.PipelineDefinition, error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "ValidateDefinition")
	defer span.Finish()

	def, err := definition.ReadFile(definitionPath)
	if err != nil {
		return nil, err
	}

	if err := s.pipelineService.Validate(ctx, def); err != nil {
		return def, err
	}

	fmt.Fprintf(s.out, "Definition %v is valid: %v jobs in order %v\n", definitionPath, len(def.Jobs), api.TopologicalOrder(def.Jobs))

	return def, nil
}

// PlanRollout prints the rollout steps the definition's deployment strategy would execute
func (s *service) PlanRollout(ctx context.Context, definitionPath string) (api.RolloutPlan, error) {

	def, err := s.ValidateDefinition(ctx, definitionPath)
	if err != nil {
		return api.RolloutPlan{}, err
	}

	if def.Strategy == nil {
		return api.RolloutPlan{}, &api.DefinitionError{PipelineName: def.Name, Reason: "definition has no deployment strategy"}
	}

	plan, err := s.deploymentService.Plan(*def.Strategy, def.Environment)
	if err != nil {
		return plan, err
	}

	renderPlan(s.out, plan, def.Environment)

	return plan, nil
}

// Serve runs the http api until ctx is done
func (s *service) Serve(ctx context.Context) error {

	log.Info().
		Str("branch", s.applicationInfo.Branch).
		Str("revision", s.applicationInfo.Revision).
		Str("buildDate", s.applicationInfo.BuildDate).
		Str("goVersion", s.applicationInfo.GoVersion()).
		Str("os", s.applicationInfo.OperatingSystem()).
		Msgf("Starting %v version %v in server mode...", s.applicationInfo.App, s.applicationInfo.Version)

	srv := server.NewServer(ctx, s.pipelineService, s.approvalClient, s.gatherer)

	return srv.ListenAndServe(ctx, s.config.Server.Address)
}

func (s *service) colors() bool {
	return s.config.Log.Format == "console"
}

func renderPlan(w io.Writer, plan api.RolloutPlan, environment api.Environment) {

	data := make([][]string, 0, len(plan.Steps)+1)
	for i, step := range plan.Steps {
		decision := ""
		if i == plan.DecisionAfter {
			decision = "canary decision"
		}
		data = append(data, []string{
			step.Name,
			string(step.Action),
			fmt.Sprintf("%v/%v", step.Instances, environment.GetCapacity()),
			fmt.Sprintf("%v%%", step.Percentage),
			waitDescription(step.Wait),
			decision,
		})
	}
	if plan.Rollback != nil {
		data = append(data, []string{plan.Rollback.Name, string(plan.Rollback.Action), "", "", "", "on failure"})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Action", "Instances", "Traffic", "Wait", "Note"})
	table.SetFooter([]string{"", "", "", "", "Strategy", string(plan.Strategy)})
	table.SetBorder(false)
	table.AppendBulk(data)
	table.Render()
}

func waitDescription(wait api.WaitCondition) string {
	if wait.Duration > 0 {
		return fmt.Sprintf("%v (%v)", wait.Type, wait.Duration)
	}
	return string(wait.Type)
}

// InitJaeger returns an instance of Jaeger Tracer that can be configured with environment variables
// https://github.com/jaegertracing/jaeger-client-go#environment-variables
func InitJaeger(service string) io.Closer {

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Generating Jaeger config from environment variables failed")
	}

	closer, err := cfg.InitGlobalTracer(service, jaegercfg.Logger(jaeger.StdLogger))

	if err != nil {
		log.Fatal().Err(err).Msg("Generating Jaeger tracer failed")
	}

	return closer
}
