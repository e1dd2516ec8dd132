package artifactstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {

	t.Run("ReturnsArtifactWithDigestReferenceForContent", func(t *testing.T) {

		client := NewClient("pipeline-1")

		// act
		artifact, err := client.Register(context.Background(), "build", api.ArtifactSpec{Kind: api.ArtifactKindReport, Path: "coverage.out", Content: []byte("hello")})

		assert.Nil(t, err)
		assert.Equal(t, "build", artifact.JobID)
		assert.Equal(t, api.ArtifactKindReport, artifact.Kind)
		assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", artifact.Reference)
		assert.Equal(t, "coverage.out", artifact.Path)
	})

	t.Run("ReturnsArtifactWithPathReferenceWithoutContentOrDigest", func(t *testing.T) {

		client := NewClient("pipeline-1")

		// act
		artifact, err := client.Register(context.Background(), "build", api.ArtifactSpec{Path: "./publish/app"})

		assert.Nil(t, err)
		assert.Equal(t, "./publish/app", artifact.Reference)
		assert.Equal(t, api.ArtifactKindBinary, artifact.Kind)
	})

	t.Run("ReturnsErrorForMalformedDigest", func(t *testing.T) {

		client := NewClient("pipeline-1")

		// act
		_, err := client.Register(context.Background(), "bake", api.ArtifactSpec{Kind: api.ArtifactKindImage, Digest: "sha256:nope"})

		assert.NotNil(t, err)
	})

	t.Run("ReturnsErrorForUnknownKind", func(t *testing.T) {

		client := NewClient("pipeline-1")

		// act
		_, err := client.Register(context.Background(), "bake", api.ArtifactSpec{Kind: "tarball", Path: "out.tgz"})

		assert.NotNil(t, err)
	})

	t.Run("ReturnsExistingArtifactWhenRegisteringTheSameOutputTwice", func(t *testing.T) {

		client := NewClient("pipeline-1")
		first, _ := client.Register(context.Background(), "build", api.ArtifactSpec{Path: "./publish/app"})

		// act
		second, err := client.Register(context.Background(), "build", api.ArtifactSpec{Path: "./publish/app"})

		assert.Nil(t, err)
		assert.Equal(t, first.ID, second.ID)
		artifacts, _ := client.List(context.Background())
		assert.Equal(t, 1, len(artifacts))
	})

	t.Run("IsSafeForConcurrentJobs", func(t *testing.T) {

		client := NewClient("pipeline-1")
		jobs := []string{"a", "b", "c", "d"}

		var wg sync.WaitGroup
		wg.Add(len(jobs))
		for _, j := range jobs {
			go func(jobID string) {
				defer wg.Done()
				_, _ = client.Register(context.Background(), jobID, api.ArtifactSpec{Kind: api.ArtifactKindLog, Content: []byte(jobID)})
			}(j)
		}

		// act
		wg.Wait()

		artifacts, err := client.List(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 4, len(artifacts))
	})
}

func TestGet(t *testing.T) {

	t.Run("ReturnsRegisteredArtifact", func(t *testing.T) {

		client := NewClient("pipeline-1")
		artifact, _ := client.Register(context.Background(), "build", api.ArtifactSpec{Path: "./publish/app"})

		// act
		result, err := client.Get(context.Background(), artifact.ID)

		assert.Nil(t, err)
		assert.Equal(t, artifact, result)
	})

	t.Run("ReturnsErrArtifactNotFoundForUnknownID", func(t *testing.T) {

		client := NewClient("pipeline-1")

		// act
		_, err := client.Get(context.Background(), "unknown")

		assert.True(t, errors.Is(err, api.ErrArtifactNotFound))
	})
}

func TestGetByJob(t *testing.T) {

	t.Run("ReturnsOnlyArtifactsOfTheJobInRegistrationOrder", func(t *testing.T) {

		client := NewClient("pipeline-1")
		first, _ := client.Register(context.Background(), "build", api.ArtifactSpec{Path: "./publish/app"})
		_, _ = client.Register(context.Background(), "test", api.ArtifactSpec{Kind: api.ArtifactKindReport, Path: "report.xml"})
		second, _ := client.Register(context.Background(), "build", api.ArtifactSpec{Kind: api.ArtifactKindLog, Path: "build.log"})

		// act
		artifacts, err := client.GetByJob(context.Background(), "build")

		assert.Nil(t, err)
		assert.Equal(t, []api.Artifact{first, second}, artifacts)
	})

	t.Run("ReturnsEmptySliceForJobWithoutArtifacts", func(t *testing.T) {

		client := NewClient("pipeline-1")

		// act
		artifacts, err := client.GetByJob(context.Background(), "lint")

		assert.Nil(t, err)
		assert.Equal(t, 0, len(artifacts))
	})
}
