package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/alecthomas/kingpin"
	crypt "github.com/estafette/estafette-ci-crypt"
	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/approval"
	"github.com/estafette/estafette-ci-orchestrator/clients/docker"
	"github.com/estafette/estafette-ci-orchestrator/clients/envvar"
	"github.com/estafette/estafette-ci-orchestrator/clients/events"
	"github.com/estafette/estafette-ci-orchestrator/clients/executor"
	"github.com/estafette/estafette-ci-orchestrator/clients/metrics"
	"github.com/estafette/estafette-ci-orchestrator/clients/obfuscation"
	"github.com/estafette/estafette-ci-orchestrator/clients/readiness"
	"github.com/estafette/estafette-ci-orchestrator/clients/webhook"
	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/estafette/estafette-ci-orchestrator/services/deployment"
	"github.com/estafette/estafette-ci-orchestrator/services/evaluation"
	"github.com/estafette/estafette-ci-orchestrator/services/pipeline"
	"github.com/estafette/estafette-ci-orchestrator/services/runner"
	"github.com/estafette/estafette-ci-orchestrator/services/scheduler"
	foundation "github.com/estafette/estafette-foundation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	app       string
	version   string
	branch    string
	revision  string
	buildDate string
	goVersion = runtime.Version()
)

var (
	configPath    = kingpin.Flag("config", "Path to the orchestrator config file.").Envar("ESTAFETTE_ORCHESTRATOR_CONFIG").String()
	logFormat     = kingpin.Flag("log-format", "Log format, console or json.").Envar("ESTAFETTE_LOG_FORMAT").String()
	logLevel      = kingpin.Flag("log-level", "Log level.").Envar("ESTAFETTE_LOG_LEVEL").String()
	concurrency   = kingpin.Flag("concurrency", "Maximum number of jobs running at the same time, 0 for unbounded.").Envar("ESTAFETTE_CONCURRENCY").Default("-1").Int()
	platform      = kingpin.Flag("platform", "Platform for pipelines that don't set one, docker or local.").Envar("ESTAFETTE_PLATFORM").String()
	secretKey     = kingpin.Flag("secret-decryption-key", "Key to decrypt estafette.secret(...) values.").Envar("SECRET_DECRYPTION_KEY").String()
	autoApprove   = kingpin.Flag("auto-approve", "Approve manual rollout steps without waiting.").Envar("ESTAFETTE_AUTO_APPROVE").Bool()
	webhookURL    = kingpin.Flag("webhook-url", "Url status events get posted to.").Envar("ESTAFETTE_WEBHOOK_URL").String()
	deployerURL   = kingpin.Flag("deployer-url", "Url rollout steps get posted to.").Envar("ESTAFETTE_DEPLOYER_URL").String()
	runCommand    = kingpin.Command("run", "Run a pipeline definition to completion.").Default()
	runPath       = runCommand.Arg("definition", "Path to the pipeline definition.").Default(".estafette-pipeline.yaml").String()
	validateCmd   = kingpin.Command("validate", "Validate a pipeline definition.")
	validatePath  = validateCmd.Arg("definition", "Path to the pipeline definition.").Default(".estafette-pipeline.yaml").String()
	planCmd       = kingpin.Command("plan", "Print the rollout plan of a pipeline definition.")
	planPath      = planCmd.Arg("definition", "Path to the pipeline definition.").Default(".estafette-pipeline.yaml").String()
	serveCmd      = kingpin.Command("serve", "Serve the http api.")
	listenAddress = serveCmd.Flag("listen-address", "Address the http api listens on.").Envar("ESTAFETTE_LISTEN_ADDRESS").String()
)

func main() {

	// parse command line parameters
	kingpin.Version(version)
	command := kingpin.Parse()

	applicationInfo := foundation.ApplicationInfo{
		App:       app,
		Version:   version,
		Branch:    branch,
		Revision:  revision,
		BuildDate: buildDate,
	}
	if applicationInfo.App == "" {
		applicationInfo.App = "estafette-ci-orchestrator"
	}

	cfg := readConfig()

	if err := runner.InitLogging(applicationInfo, cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("Initializing logging failed")
	}

	log.Debug().Str("goVersion", goVersion).Msgf("Starting %v version %v...", applicationInfo.App, applicationInfo.Version)

	closer := runner.InitJaeger(applicationInfo.App)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	runnerService, sink := newRunnerService(ctx, applicationInfo, cfg, registry)
	defer sink.Close()

	switch command {
	case validateCmd.FullCommand():
		if _, err := runnerService.ValidateDefinition(ctx, *validatePath); err != nil {
			log.Fatal().Err(err).Msgf("Definition %v is invalid", *validatePath)
		}

	case planCmd.FullCommand():
		if _, err := runnerService.PlanRollout(ctx, *planPath); err != nil {
			log.Fatal().Err(err).Msgf("Planning rollout for %v failed", *planPath)
		}

	case serveCmd.FullCommand():
		if err := runnerService.Serve(ctx); err != nil {
			log.Fatal().Err(err).Msg("Serving http api failed")
		}

	default:
		result, err := runnerService.RunPipeline(ctx, *runPath)
		if result == nil {
			log.Fatal().Err(err).Msgf("Running %v failed", *runPath)
		}

		// flush events and traces before exiting
		sink.Close()
		stop()
		closer.Close()

		api.HandleExit(result)
	}
}

// readConfig loads the config file if any and lets flags override it
func readConfig() *config.Config {

	cfg := config.NewDefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.ReadConfigFromFile(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msgf("Reading config file %v failed", *configPath)
		}
	}

	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *concurrency >= 0 {
		cfg.Concurrency = *concurrency
	}
	if *platform != "" {
		cfg.Platform = api.CIPlatform(*platform)
	}
	if *secretKey != "" {
		cfg.SecretDecryptionKey = *secretKey
	}
	if *autoApprove {
		cfg.Approval.AutoApprove = true
	}
	if *webhookURL != "" {
		cfg.Webhook.URL = *webhookURL
	}
	if *deployerURL != "" {
		cfg.Deployer.URL = *deployerURL
	}
	if *listenAddress != "" {
		cfg.Server.Address = *listenAddress
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	return cfg
}

func newRunnerService(ctx context.Context, applicationInfo foundation.ApplicationInfo, cfg *config.Config, registry *prometheus.Registry) (runner.Service, *webhook.EventSink) {

	secretHelper := crypt.NewSecretHelper(cfg.SecretDecryptionKey, false)
	obfuscationClient := obfuscation.NewClient(secretHelper)
	envvarClient := envvar.NewClient("CI_", secretHelper)

	executorRegistry := executor.NewRegistry()
	executorRegistry.Register(api.CIPlatformLocal, executor.NewLocalClient(cfg.Local, obfuscationClient))
	dockerClient, err := docker.NewClient(ctx, cfg.Docker, obfuscationClient)
	if err != nil {
		log.Warn().Err(err).Msg("Creating docker client failed, docker platform is unavailable")
	} else {
		executorRegistry.Register(api.CIPlatformDocker, dockerClient)
	}

	sink := webhook.NewEventSink(webhook.NewClient(cfg.Webhook), 0)
	eventsClient := events.NewClient(events.NewLoggingObserver(), metrics.NewObserver(registry), sink)

	approvalClient := approval.NewClient(cfg.Approval)
	readinessClient := readiness.NewClient(0)
	deployer := webhook.NewDeployer(webhook.NewClient(config.WebhookConfig(cfg.Deployer)))

	evaluationService := evaluation.NewService()
	deploymentService := deployment.NewService(deployer, approvalClient, readinessClient, evaluationService)
	schedulerService := scheduler.NewService(eventsClient, envvarClient, obfuscationClient)
	pipelineService := pipeline.NewService(eventsClient, executorRegistry, schedulerService, evaluationService, deploymentService, obfuscationClient, cfg.Platform, cfg.Concurrency)

	return runner.NewService(applicationInfo, cfg, pipelineService, deploymentService, approvalClient, registry, os.Stdout), sink
}
