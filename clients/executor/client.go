package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/estafette/estafette-ci-orchestrator/api"
)

// Request holds a single attempt of a job, with its fully resolved environment
type Request struct {
	PipelineID   string
	PipelineName string
	Job          api.Job
	Attempt      int
	EnvVars      map[string]string
}

// Client executes jobs on a ci platform; it should honor ctx cancellation and then report JobStatusCancelled
//go:generate mockgen -package=executor -destination ./mock.go -source=client.go
type Client interface {
	ExecuteJob(ctx context.Context, request Request) (api.JobResult, error)
}

// Registry maps ci platforms to the client executing their jobs
type Registry struct {
	mu      sync.RWMutex
	clients map[api.CIPlatform]Client
}

// NewRegistry returns an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		clients: map[api.CIPlatform]Client{},
	}
}

// Register adds or replaces the client for a platform
func (r *Registry) Register(platform api.CIPlatform, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[platform] = client
}

// Get returns the client for a platform or ErrUnknownPlatform
func (r *Registry) Get(platform api.CIPlatform) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownPlatform, platform)
	}
	return client, nil
}

// Platforms returns the registered platforms sorted by name
func (r *Registry) Platforms() []api.CIPlatform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]api.CIPlatform, 0, len(r.clients))
	for p := range r.clients {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	return platforms
}
