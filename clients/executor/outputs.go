package executor

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/opencontainers/go-digest"
	yaml "gopkg.in/yaml.v2"
)

// CollectOutputs resolves the artifacts a job declared and reads its metrics file, relative to dir; image artifacts
// are references to a registry and aren't looked up on disk
func CollectOutputs(dir string, job api.Job) (artifacts []api.ArtifactSpec, metrics map[string]float64, err error) {

	artifacts = make([]api.ArtifactSpec, 0, len(job.Outputs))

	for _, o := range job.Outputs {
		kind := o.Kind
		if kind == "" {
			kind = api.ArtifactKindBinary
		}

		if kind == api.ArtifactKindImage {
			artifacts = append(artifacts, api.ArtifactSpec{Kind: kind, Path: o.Path})
			continue
		}

		d, err := digestFile(resolvePath(dir, o.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("declared artifact %v wasn't produced: %w", o.Path, err)
		}

		artifacts = append(artifacts, api.ArtifactSpec{Kind: kind, Path: o.Path, Digest: d})
	}

	if job.MetricsFile != "" {
		metrics, err = ReadMetricsFile(resolvePath(dir, job.MetricsFile))
		if err != nil {
			return nil, nil, err
		}
	}

	return artifacts, metrics, nil
}

// ReadMetricsFile reads a flat yaml or json map of metric names to numbers
func ReadMetricsFile(path string) (map[string]float64, error) {

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metrics file %v failed: %w", path, err)
	}

	metrics := map[string]float64{}
	if err := yaml.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("metrics file %v should be a map of metric names to numbers: %w", path, err)
	}

	return metrics, nil
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func digestFile(path string) (string, error) {

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		// directories are referenced by path
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d, err := digest.Canonical.FromReader(f)
	if err != nil {
		return "", err
	}

	return d.String(), nil
}
