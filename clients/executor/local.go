package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/clients/obfuscation"
	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
)

// NewLocalClient returns a Client that runs the commands of a job with a shell on the host
func NewLocalClient(config config.LocalConfig, obfuscationClient obfuscation.Client) Client {
	return &localClient{
		config:            config,
		obfuscationClient: obfuscationClient,
	}
}

type localClient struct {
	config            config.LocalConfig
	obfuscationClient obfuscation.Client
}

func (c *localClient) ExecuteJob(ctx context.Context, request Request) (result api.JobResult, err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "ExecuteLocalJob")
	defer span.Finish()
	span.SetTag("pipeline", request.PipelineID)
	span.SetTag("job", request.Job.ID)
	span.SetTag("attempt", request.Attempt)

	job := request.Job
	dir, err := c.getWorkDir(job)
	if err != nil {
		return result, err
	}

	var output []byte
	if len(job.Commands) > 0 {
		var exitCode int
		output, exitCode, err = c.runCommands(ctx, dir, request)
		if ctx.Err() != nil {
			log.Info().Msgf("[%v] Job canceled", job.ID)
			return api.JobResult{Status: api.JobStatusCancelled, Message: ctx.Err().Error()}, nil
		}
		if err != nil {
			return result, err
		}
		if exitCode != 0 {
			return api.JobResult{
				Status:    api.JobStatusFailed,
				Message:   fmt.Sprintf("Failed with exit code: %v", exitCode),
				Artifacts: []api.ArtifactSpec{LogArtifact(job, output)},
			}, nil
		}
	}

	artifacts, metrics, err := CollectOutputs(dir, job)
	if err != nil {
		return api.JobResult{Status: api.JobStatusFailed, Message: err.Error()}, nil
	}
	if len(output) > 0 {
		artifacts = append(artifacts, LogArtifact(job, output))
	}

	return api.JobResult{
		Status:    api.JobStatusSucceeded,
		Artifacts: artifacts,
		Metrics:   metrics,
	}, nil
}

func (c *localClient) getWorkDir(job api.Job) (string, error) {

	base := c.config.WorkDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		base = wd
	}

	if job.WorkDir == "" {
		return base, nil
	}
	if filepath.IsAbs(job.WorkDir) {
		return job.WorkDir, nil
	}

	return filepath.Join(base, job.WorkDir), nil
}

func (c *localClient) runCommands(ctx context.Context, dir string, request Request) (out []byte, exitCode int, err error) {

	shell := request.Job.Shell
	if shell == "" {
		shell = c.config.DefaultShell
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	// stop at the first failing command
	script := "set -e\n" + strings.Join(request.Job.Commands, "\n")

	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range request.EnvVars {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%v=%v", k, v))
	}

	writer := NewOutputWriter(request.Job.ID, c.obfuscationClient)
	cmd.Stdout = writer.Stream("stdout")
	cmd.Stderr = writer.Stream("stderr")
	// don't wait for grandchildren holding on to stdout after the shell got killed
	cmd.WaitDelay = 2 * time.Second

	log.Info().Msgf("[%v] Running %v commands with %v in %v", request.Job.ID, len(request.Job.Commands), shell, dir)

	start := time.Now()
	err = cmd.Run()
	writer.Flush()

	log.Debug().Msgf("[%v] Commands finished in %v", request.Job.ID, time.Since(start))

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return writer.Bytes(), exitErr.ExitCode(), nil
	}

	return writer.Bytes(), 0, err
}

// OutputWriter logs job output line by line and keeps an obfuscated copy for the job's log artifact
type OutputWriter struct {
	jobID             string
	obfuscationClient obfuscation.Client
	mu                sync.Mutex
	buf               bytes.Buffer
	partial           map[string][]byte
}

// NewOutputWriter returns an OutputWriter for the output of a job
func NewOutputWriter(jobID string, obfuscationClient obfuscation.Client) *OutputWriter {
	return &OutputWriter{
		jobID:             jobID,
		obfuscationClient: obfuscationClient,
		partial:           map[string][]byte{},
	}
}

// Stream returns a writer for one output stream, stdout or stderr
func (w *OutputWriter) Stream(streamType string) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		w.mu.Lock()
		defer w.mu.Unlock()

		data := append(w.partial[streamType], p...)
		for {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				break
			}
			w.writeLine(streamType, string(data[:i]))
			data = data[i+1:]
		}
		w.partial[streamType] = append([]byte(nil), data...)

		return len(p), nil
	})
}

func (w *OutputWriter) writeLine(streamType, line string) {
	if w.obfuscationClient != nil {
		line = w.obfuscationClient.Obfuscate(line)
	}

	log.Info().Str("stream", streamType).Msgf("[%v] %v", w.jobID, line)

	w.buf.WriteString(line)
	w.buf.WriteString("\n")
}

// Flush writes out lines that didn't end with a newline
func (w *OutputWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for streamType, data := range w.partial {
		if len(data) > 0 {
			w.writeLine(streamType, string(data))
		}
	}
	w.partial = map[string][]byte{}
}

// Bytes returns the obfuscated output so far
func (w *OutputWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]byte(nil), w.buf.Bytes()...)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

// LogArtifact wraps the output of a job as its log artifact
func LogArtifact(job api.Job, output []byte) api.ArtifactSpec {
	return api.ArtifactSpec{
		Kind:    api.ArtifactKindLog,
		Path:    fmt.Sprintf("%v.log", job.ID),
		Content: output,
	}
}
