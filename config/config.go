package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	yaml "gopkg.in/yaml.v2"
)

// Config is read from the orchestrator's config file; command line flags override individual fields
type Config struct {
	Concurrency int            `yaml:"concurrency,omitempty"`
	Platform    api.CIPlatform `yaml:"platform,omitempty"`
	Log         LogConfig      `yaml:"log,omitempty"`
	Docker      DockerConfig   `yaml:"docker,omitempty"`
	Local       LocalConfig    `yaml:"local,omitempty"`
	Webhook     WebhookConfig  `yaml:"webhook,omitempty"`
	Deployer    DeployerConfig `yaml:"deployer,omitempty"`
	Approval    ApprovalConfig `yaml:"approval,omitempty"`
	Server      ServerConfig   `yaml:"server,omitempty"`
	// key to decrypt estafette.secret(...) envelopes in job environment variables
	SecretDecryptionKey string `yaml:"secretDecryptionKey,omitempty"`
}

// LogConfig sets the zerolog output
type LogConfig struct {
	Format string `yaml:"format,omitempty"`
	Level  string `yaml:"level,omitempty"`
}

// DockerConfig configures the docker executor
type DockerConfig struct {
	WorkDir      string                           `yaml:"workDir,omitempty"`
	MountWorkDir string                           `yaml:"mountWorkDir,omitempty"`
	DefaultShell string                           `yaml:"defaultShell,omitempty"`
	AlwaysPull   bool                             `yaml:"alwaysPull,omitempty"`
	Privileged   bool                             `yaml:"privileged,omitempty"`
	Registries   []PrivateContainerRegistryConfig `yaml:"registries,omitempty"`
	StopTimeout  time.Duration                    `yaml:"stopTimeout,omitempty"`
	MountSocket  bool                             `yaml:"mountDockerSocket,omitempty"`
}

// PrivateContainerRegistryConfig is used to authenticate for private container registries
type PrivateContainerRegistryConfig struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LocalConfig configures the local shell executor
type LocalConfig struct {
	WorkDir      string `yaml:"workDir,omitempty"`
	DefaultShell string `yaml:"defaultShell,omitempty"`
}

// WebhookConfig configures the status event sink
type WebhookConfig struct {
	URL        string            `yaml:"url,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	MaxRetries int               `yaml:"maxRetries,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
}

// DeployerConfig configures the webhook deployer that applies rollout steps
type DeployerConfig struct {
	URL        string            `yaml:"url,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	MaxRetries int               `yaml:"maxRetries,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
}

// ApprovalConfig configures manual approvals
type ApprovalConfig struct {
	// auto approve, for non-interactive runs without the http api
	AutoApprove bool          `yaml:"autoApprove,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// ServerConfig configures the http api
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// NewDefaultConfig returns the configuration used when no config file is provided
func NewDefaultConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// ReadConfigFromFile reads and defaults the config file at path
func ReadConfigFromFile(path string) (*Config, error) {

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshalling config file %v failed: %w", path, err)
	}

	c.SetDefaults()

	return &c, c.Validate()
}

// SetDefaults fills in every field that isn't set
func (c *Config) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Platform == "" {
		c.Platform = api.CIPlatformDocker
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Docker.WorkDir == "" {
		c.Docker.WorkDir = "/estafette-work"
	}
	if c.Docker.DefaultShell == "" {
		c.Docker.DefaultShell = "/bin/sh"
	}
	if c.Docker.StopTimeout <= 0 {
		c.Docker.StopTimeout = 20 * time.Second
	}
	if c.Local.DefaultShell == "" {
		c.Local.DefaultShell = "/bin/sh"
	}
	if c.Webhook.MaxRetries <= 0 {
		c.Webhook.MaxRetries = 3
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Deployer.MaxRetries <= 0 {
		c.Deployer.MaxRetries = 3
	}
	if c.Deployer.Timeout <= 0 {
		c.Deployer.Timeout = 60 * time.Second
	}
	if c.Approval.Timeout <= 0 {
		c.Approval.Timeout = 24 * time.Hour
	}
	if c.Server.Address == "" {
		c.Server.Address = ":5000"
	}
}

// Validate returns an error for values that can't be used
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format %q is not supported, use console or json", c.Log.Format)
	}
	switch c.Platform {
	case api.CIPlatformDocker, api.CIPlatformLocal:
	default:
		return fmt.Errorf("%w: %v", api.ErrUnknownPlatform, c.Platform)
	}
	for _, r := range c.Docker.Registries {
		if r.Server == "" {
			return fmt.Errorf("container registry without server")
		}
	}
	return nil
}
