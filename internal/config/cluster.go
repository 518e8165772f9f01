package config

import (
	"errors"
	"os"
	"path/filepath"

	"releasetest/internal/template"
	"releasetest/pkg/logging"

	"gopkg.in/yaml.v3"
)

// RenderData carries the per-run values exposed to cluster file templates.
type RenderData struct {
	ProjectID string
	WheelsURL string
}

// ClusterLoader resolves, renders and parses the cluster environment and
// cluster compute files of a test. It has no side effects beyond reading
// files.
type ClusterLoader struct {
	engine *template.Engine
}

// NewClusterLoader creates a ClusterLoader with a sprig-backed template engine.
func NewClusterLoader() *ClusterLoader {
	return &ClusterLoader{engine: template.New()}
}

// LoadClusterEnv loads the cluster environment file named by the test.
func (l *ClusterLoader) LoadClusterEnv(test Test, data RenderData) (ClusterEnvConfig, error) {
	doc, err := l.load(test, test.Cluster.ClusterEnv, CategoryClusterEnv, data)
	if err != nil {
		return ClusterEnvConfig{}, err
	}
	return ClusterEnvConfig{Document: doc}, nil
}

// LoadClusterCompute loads the cluster compute file named by the test.
func (l *ClusterLoader) LoadClusterCompute(test Test, data RenderData) (ClusterComputeConfig, error) {
	doc, err := l.load(test, test.Cluster.ClusterCompute, CategoryClusterCompute, data)
	if err != nil {
		return ClusterComputeConfig{}, err
	}
	return ClusterComputeConfig{Document: doc}, nil
}

func (l *ClusterLoader) load(test Test, name, category string, data RenderData) (Document, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(test.WorkingDir, name)
	}

	fail := func(ce ConfigurationError) (Document, error) {
		ce.Test = test.Name
		logging.Debug("Config", "Loading %s for test %s failed: %s", category, test.Name, ce.Error())
		return Document{}, asResultError(ce)
	}

	if name == "" {
		return fail(NewConfigurationError(test.WorkingDir, category, ErrorTypePathNotFound, "path not found: no file configured"))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ce := NewConfigurationError(path, category, ErrorTypePathNotFound, "path not found: "+path)
			ce.Suggestions = []string{"paths are resolved relative to the test's working_dir"}
			return fail(ce)
		}
		ce := NewConfigurationError(path, category, ErrorTypeIO, "could not read file")
		ce.Details = err.Error()
		return fail(ce)
	}

	rendered, err := l.engine.Render(filepath.Base(path), string(raw), l.templateData(test, data))
	if err != nil {
		ce := NewConfigurationError(path, category, ErrorTypeTemplate, "could not render yaml template")
		ce.Details = err.Error()
		return fail(ce)
	}

	var spec map[string]interface{}
	if err := yaml.Unmarshal([]byte(rendered), &spec); err != nil {
		return fail(parseError(path, category, err))
	}
	if spec == nil {
		spec = map[string]interface{}{}
	}

	return Document{FilePath: path, Rendered: rendered, Spec: spec}, nil
}

func (l *ClusterLoader) templateData(test Test, data RenderData) map[string]interface{} {
	return template.MergeContexts(
		map[string]interface{}{
			"Env":       template.EnvContext(test.Env),
			"TestName":  test.Name,
			"SmokeTest": test.SmokeTest,
		},
		map[string]interface{}{
			"ProjectID": data.ProjectID,
			"WheelsURL": data.WheelsURL,
		},
	)
}
