package artifactstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"
)

// Client keeps track of the artifacts produced by the jobs of a single pipeline run
//go:generate mockgen -package=artifactstore -destination ./mock.go -source=client.go
type Client interface {
	Register(ctx context.Context, jobID string, spec api.ArtifactSpec) (api.Artifact, error)
	Get(ctx context.Context, artifactID string) (api.Artifact, error)
	GetByJob(ctx context.Context, jobID string) ([]api.Artifact, error)
	List(ctx context.Context) ([]api.Artifact, error)
}

// NewClient returns an empty artifactstore.Client for a pipeline run
func NewClient(pipelineID string) Client {
	return &client{
		pipelineID: pipelineID,
		artifacts:  map[string]api.Artifact{},
		byJob:      map[string][]string{},
	}
}

type client struct {
	pipelineID string
	mu         sync.RWMutex
	artifacts  map[string]api.Artifact
	byJob      map[string][]string
}

func (c *client) Register(ctx context.Context, jobID string, spec api.ArtifactSpec) (artifact api.Artifact, err error) {

	if jobID == "" {
		return artifact, fmt.Errorf("artifact without owning job")
	}

	kind := spec.Kind
	if kind == "" {
		kind = api.ArtifactKindBinary
	}
	if !kind.IsValid() {
		return artifact, fmt.Errorf("artifact %v of job %v has unknown kind %q", spec.Path, jobID, kind)
	}

	reference, err := getReference(spec)
	if err != nil {
		return artifact, fmt.Errorf("artifact %v of job %v: %w", spec.Path, jobID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// artifacts are immutable, registering the same output twice returns the original
	for _, id := range c.byJob[jobID] {
		existing := c.artifacts[id]
		if existing.Kind == kind && existing.Reference == reference {
			return existing, nil
		}
	}

	artifact = api.Artifact{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Kind:      kind,
		Reference: reference,
		Path:      spec.Path,
		CreatedAt: time.Now().UTC(),
	}

	c.artifacts[artifact.ID] = artifact
	c.byJob[jobID] = append(c.byJob[jobID], artifact.ID)

	log.Debug().Str("pipeline", c.pipelineID).Str("job", jobID).Msgf("Registered %v artifact %v", kind, reference)

	return artifact, nil
}

// getReference prefers a content digest over the path
func getReference(spec api.ArtifactSpec) (string, error) {
	if len(spec.Content) > 0 {
		return digest.FromBytes(spec.Content).String(), nil
	}
	if spec.Digest != "" {
		d, err := digest.Parse(spec.Digest)
		if err != nil {
			return "", err
		}
		return d.String(), nil
	}
	if spec.Path == "" {
		return "", fmt.Errorf("artifact has neither content, digest nor path")
	}
	return spec.Path, nil
}

func (c *client) Get(ctx context.Context, artifactID string) (api.Artifact, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	artifact, ok := c.artifacts[artifactID]
	if !ok {
		return artifact, fmt.Errorf("%w: %v", api.ErrArtifactNotFound, artifactID)
	}

	return artifact, nil
}

func (c *client) GetByJob(ctx context.Context, jobID string) ([]api.Artifact, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	artifacts := make([]api.Artifact, 0, len(c.byJob[jobID]))
	for _, id := range c.byJob[jobID] {
		artifacts = append(artifacts, c.artifacts[id])
	}

	return artifacts, nil
}

func (c *client) List(ctx context.Context) ([]api.Artifact, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	artifacts := make([]api.Artifact, 0, len(c.artifacts))
	for _, a := range c.artifacts {
		artifacts = append(artifacts, a)
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].ID < artifacts[j].ID
		}
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})

	return artifacts, nil
}
