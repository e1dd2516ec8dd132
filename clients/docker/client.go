package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/executor"
	"github.com/estafette/estafette-ci-orchestrator/clients/obfuscation"
	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
)

const (
	defaultMountWorkDir = "/estafette-work"
	entrypointMountPath = "/entrypoint"
	entrypointFile      = "entrypoint.sh"
)

var entrypointTemplate = template.Must(template.New(entrypointFile).Parse(`#!{{.Shell}}
set -e
{{range .Commands}}
echo "> {{.Escaped}}"
{{.Command}}
{{end}}`))

// NewClient returns an executor.Client that runs every job as a container on the docker daemon configured in the
// environment (DOCKER_HOST and friends)
func NewClient(ctx context.Context, config config.DockerConfig, obfuscationClient obfuscation.Client) (executor.Client, error) {

	apiClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	return newClient(apiClient, config, obfuscationClient), nil
}

func newClient(apiClient client.APIClient, config config.DockerConfig, obfuscationClient obfuscation.Client) *dockerClient {
	return &dockerClient{
		apiClient:           apiClient,
		config:              config,
		obfuscationClient:   obfuscationClient,
		pulledImagesMutex:   NewMapMutex(),
		runningContainerIDs: map[string]string{},
	}
}

type dockerClient struct {
	apiClient         client.APIClient
	config            config.DockerConfig
	obfuscationClient obfuscation.Client
	pulledImagesMutex *MapMutex

	mu                  sync.Mutex
	runningContainerIDs map[string]string
}

func (c *dockerClient) ExecuteJob(ctx context.Context, request executor.Request) (result api.JobResult, err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "ExecuteDockerJob")
	defer span.Finish()
	span.SetTag("pipeline", request.PipelineID)
	span.SetTag("job", request.Job.ID)
	span.SetTag("attempt", request.Attempt)
	span.SetTag("docker-image", request.Job.Image)

	job := request.Job
	if job.Image == "" {
		return api.JobResult{Status: api.JobStatusFailed, Message: fmt.Sprintf("Job %v has no image to run on docker", job.ID)}, nil
	}

	if c.config.AlwaysPull || !c.isImagePulled(ctx, job.ID, job.Image) {
		err = c.pullImage(ctx, job.ID, job.Image)
		if ctx.Err() != nil {
			return api.JobResult{Status: api.JobStatusCancelled, Message: ctx.Err().Error()}, nil
		}
		if err != nil {
			return result, fmt.Errorf("pulling image %v failed: %w", job.Image, err)
		}
	}

	hostDir := filepath.Join(c.config.WorkDir, request.PipelineID)
	err = os.MkdirAll(hostDir, 0777)
	if err != nil {
		return result, err
	}

	containerID, entrypointDir, err := c.startJobContainer(ctx, hostDir, request)
	if entrypointDir != "" {
		defer os.RemoveAll(entrypointDir)
	}
	if ctx.Err() != nil {
		if containerID != "" {
			_ = c.stopContainer(containerID)
		}
		return api.JobResult{Status: api.JobStatusCancelled, Message: ctx.Err().Error()}, nil
	}
	if err != nil {
		return result, err
	}
	defer c.removeRunningContainerID(job.ID)

	output := executor.NewOutputWriter(job.ID, c.obfuscationClient)
	exitCode, err := c.tailContainerLogs(ctx, containerID, output)
	if ctx.Err() != nil {
		log.Info().Msgf("[%v] Job canceled, stopping container %v", job.ID, containerID)
		_ = c.stopContainer(containerID)
		return api.JobResult{Status: api.JobStatusCancelled, Message: ctx.Err().Error()}, nil
	}
	if err != nil {
		return result, err
	}

	if exitCode != 0 {
		return api.JobResult{
			Status:    api.JobStatusFailed,
			Message:   fmt.Sprintf("Failed with exit code: %v", exitCode),
			Artifacts: []api.ArtifactSpec{executor.LogArtifact(job, output.Bytes())},
		}, nil
	}

	artifacts, metrics, err := executor.CollectOutputs(hostJobDir(hostDir, job), job)
	if err != nil {
		return api.JobResult{Status: api.JobStatusFailed, Message: err.Error()}, nil
	}
	if logBytes := output.Bytes(); len(logBytes) > 0 {
		artifacts = append(artifacts, executor.LogArtifact(job, logBytes))
	}

	return api.JobResult{
		Status:    api.JobStatusSucceeded,
		Artifacts: artifacts,
		Metrics:   metrics,
	}, nil
}

func (c *dockerClient) isImagePulled(ctx context.Context, jobID string, containerImage string) bool {

	// a read lock waits for an ongoing pull of the same image
	c.pulledImagesMutex.RLock(containerImage)
	defer c.pulledImagesMutex.RUnlock(containerImage)

	_, _, err := c.apiClient.ImageInspectWithRaw(ctx, containerImage)
	if err != nil {
		log.Debug().Err(err).Msgf("[%v] Image %v isn't pulled yet", jobID, containerImage)
		return false
	}

	return true
}

func (c *dockerClient) pullImage(ctx context.Context, jobID string, containerImage string) (err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "PullImage")
	defer span.Finish()
	span.SetTag("docker-image", containerImage)

	// get write lock so only one job pulls the same image
	c.pulledImagesMutex.Lock(containerImage)
	defer c.pulledImagesMutex.Unlock(containerImage)

	log.Info().Msgf("[%v] Pulling docker image '%v'", jobID, containerImage)

	rc, err := c.apiClient.ImagePull(ctx, containerImage, c.getImagePullOptions(containerImage))
	if err != nil {
		return err
	}
	defer rc.Close()

	// wait for image pull to finish
	_, err = ioutil.ReadAll(rc)

	return err
}

func (c *dockerClient) getImagePullOptions(containerImage string) types.ImagePullOptions {

	server := registryServer(containerImage)

	for _, r := range c.config.Registries {
		if r.Server != server {
			continue
		}

		authConfig := types.AuthConfig{
			Username:      r.Username,
			Password:      r.Password,
			ServerAddress: r.Server,
		}
		encodedJSON, err := json.Marshal(authConfig)
		if err != nil {
			log.Error().Err(err).Msgf("Failed marshaling docker auth config for container image %v", containerImage)
			break
		}

		log.Debug().Msgf("Using credentials for registry '%v' to authenticate for image '%v'", r.Server, containerImage)

		return types.ImagePullOptions{
			RegistryAuth: base64.URLEncoding.EncodeToString(encodedJSON),
		}
	}

	return types.ImagePullOptions{}
}

// registryServer returns the registry host of an image reference, docker.io for images without one
func registryServer(containerImage string) string {
	parts := strings.SplitN(containerImage, "/", 2)
	if len(parts) == 2 && (strings.ContainsAny(parts[0], ".:") || parts[0] == "localhost") {
		return parts[0]
	}
	return "docker.io"
}

func (c *dockerClient) startJobContainer(ctx context.Context, hostDir string, request executor.Request) (containerID, entrypointDir string, err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "StartJobContainer")
	defer span.Finish()

	job := request.Job

	mountDir := c.config.MountWorkDir
	if mountDir == "" {
		mountDir = defaultMountWorkDir
	}

	binds := []string{fmt.Sprintf("%v:%v", hostDir, mountDir)}
	if c.config.MountSocket {
		if ok, _ := pathExists("/var/run/docker.sock"); ok {
			binds = append(binds, "/var/run/docker.sock:/var/run/docker.sock")
		}
	}

	containerConfig := container.Config{
		AttachStdout: true,
		AttachStderr: true,
		Env:          dockerEnvVars(request.EnvVars),
		Image:        job.Image,
		WorkingDir:   containerWorkDir(mountDir, job.WorkDir),
		Labels: map[string]string{
			"estafette-pipeline": request.PipelineID,
			"estafette-job":      job.ID,
		},
	}

	if len(job.Commands) > 0 {
		shell := job.Shell
		if shell == "" {
			shell = c.config.DefaultShell
		}

		entrypointDir, err = c.generateEntrypointScript(shell, job.Commands)
		if err != nil {
			return "", entrypointDir, err
		}
		binds = append(binds, fmt.Sprintf("%v:%v", entrypointDir, entrypointMountPath))

		// only override the entrypoint when commands are set, so images can run their own entrypoint
		containerConfig.Entrypoint = []string{path.Join(entrypointMountPath, entrypointFile)}
	}

	resp, err := c.apiClient.ContainerCreate(ctx, &containerConfig, &container.HostConfig{
		Binds:      binds,
		Privileged: c.config.Privileged,
		AutoRemove: true,
	}, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return "", entrypointDir, err
	}

	containerID = resp.ID
	c.addRunningContainerID(job.ID, containerID)

	log.Info().Msgf("[%v] Starting container %v from image %v", job.ID, containerID, job.Image)

	if err = c.apiClient.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return containerID, entrypointDir, err
	}

	return containerID, entrypointDir, nil
}

func (c *dockerClient) tailContainerLogs(ctx context.Context, containerID string, output *executor.OutputWriter) (exitCode int64, err error) {

	// follow logs
	rc, err := c.apiClient.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	// demultiplex the 8 byte headers docker puts in front of every frame
	_, err = stdcopy.StdCopy(output.Stream("stdout"), output.Stream("stderr"), rc)
	output.Flush()
	if err != nil {
		return 0, err
	}

	// wait for container to stop running
	resultC, errC := c.apiClient.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case result := <-resultC:
		if result.Error != nil {
			return result.StatusCode, fmt.Errorf("waiting for container %v failed: %v", containerID, result.Error.Message)
		}
		return result.StatusCode, nil
	case err = <-errC:
		log.Warn().Err(err).Msgf("Container %v exited with error", containerID)
		return 0, err
	}
}

func (c *dockerClient) stopContainer(containerID string) error {

	log.Debug().Msgf("Stopping container with id %v", containerID)

	timeout := c.config.StopTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	err := c.apiClient.ContainerStop(context.Background(), containerID, &timeout)
	if err != nil {
		log.Warn().Err(err).Msgf("Failed stopping container with id %v", containerID)
		return err
	}

	log.Info().Msgf("Stopped container with id %v", containerID)
	return nil
}

func (c *dockerClient) addRunningContainerID(jobID, containerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runningContainerIDs[jobID] = containerID
}

func (c *dockerClient) removeRunningContainerID(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runningContainerIDs, jobID)
}

func (c *dockerClient) generateEntrypointScript(shell string, commands []string) (hostPath string, err error) {

	type command struct {
		Command string
		Escaped string
	}

	data := struct {
		Shell    string
		Commands []command
	}{
		Shell: shell,
	}
	for _, cmd := range commands {
		data.Commands = append(data.Commands, command{Command: cmd, Escaped: escapeCharsInCommand(cmd)})
	}

	entrypointDir, err := ioutil.TempDir("", "*-entrypoint")
	if err != nil {
		return
	}

	// non-root containers need to be able to read the mounted directory
	err = os.Chmod(entrypointDir, 0777)
	if err != nil {
		return
	}

	entrypointPath := filepath.Join(entrypointDir, entrypointFile)
	targetFile, err := os.Create(entrypointPath)
	if err != nil {
		return
	}
	defer targetFile.Close()

	err = entrypointTemplate.Execute(targetFile, data)
	if err != nil {
		return
	}

	err = os.Chmod(entrypointPath, 0777)
	if err != nil {
		return
	}

	return entrypointDir, nil
}

func escapeCharsInCommand(command string) string {
	command = strings.ReplaceAll(command, `\`, `\\`)
	command = strings.ReplaceAll(command, `"`, `\"`)
	command = strings.ReplaceAll(command, "$", `\$`)
	command = strings.ReplaceAll(command, "`", "\\`")
	return command
}

func dockerEnvVars(envvars map[string]string) []string {
	env := make([]string, 0, len(envvars))
	for k, v := range envvars {
		env = append(env, fmt.Sprintf("%v=%v", k, v))
	}
	sort.Strings(env)
	return env
}

func containerWorkDir(mountDir, workDir string) string {
	if workDir == "" {
		return mountDir
	}
	if path.IsAbs(workDir) {
		return workDir
	}
	return path.Join(mountDir, workDir)
}

// hostJobDir is where the outputs of a job end up on the host; absolute work dirs live inside the container only
func hostJobDir(hostDir string, job api.Job) string {
	if job.WorkDir == "" || path.IsAbs(job.WorkDir) {
		return hostDir
	}
	return filepath.Join(hostDir, job.WorkDir)
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}
