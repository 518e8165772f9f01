package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"releasetest/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/releasetest"
	configFileName = "config.yaml"

	// Environment variables that override secrets from config.yaml.
	EnvControlPlaneToken = "RELEASETEST_CONTROL_PLANE_TOKEN"
	EnvMinioAccessKey    = "RELEASETEST_MINIO_ACCESS_KEY"
	EnvMinioSecretKey    = "RELEASETEST_MINIO_SECRET_KEY"
)

// GetDefaultConfigPath returns ~/.config/releasetest.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath over the defaults and applies
// environment overrides. A missing file is not an error.
func LoadConfig(configPath string) (AppConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		ce := NewConfigurationError(configFilePath, CategoryApp, ErrorTypeIO, "could not read config file")
		ce.Details = err.Error()
		return AppConfig{}, asResultError(ce)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return AppConfig{}, asResultError(parseError(configFilePath, CategoryApp, err))
		}
		logging.Info("Config", "Loaded configuration from %s", configFilePath)
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		ce := NewConfigurationError(configFilePath, CategoryApp, ErrorTypeValidation, "invalid application config")
		ce.Details = err.Error()
		return AppConfig{}, asResultError(ce)
	}
	return config, nil
}

func applyEnvOverrides(config *AppConfig) {
	if v := os.Getenv(EnvControlPlaneToken); v != "" {
		config.ControlPlane.Token = v
	}
	if v := os.Getenv(EnvMinioAccessKey); v != "" {
		config.ObjectStore.AccessKey = v
	}
	if v := os.Getenv(EnvMinioSecretKey); v != "" {
		config.ObjectStore.SecretKey = v
	}
}

// LoadTestCollection reads a release test collection file. Each test's
// working_dir is resolved relative to the directory of the file.
func LoadTestCollection(path string) ([]Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ce := NewConfigurationError(path, CategoryCollection, ErrorTypePathNotFound, "test collection file not found")
			ce.Suggestions = []string{"pass the collection file with --test-collection-file"}
			return nil, asResultError(ce)
		}
		ce := NewConfigurationError(path, CategoryCollection, ErrorTypeIO, "could not read test collection file")
		ce.Details = err.Error()
		return nil, asResultError(ce)
	}

	var tests []Test
	if err := yaml.Unmarshal(data, &tests); err != nil {
		return nil, asResultError(parseError(path, CategoryCollection, err))
	}

	baseDir := filepath.Dir(path)
	for i := range tests {
		if tests[i].WorkingDir != "" && !filepath.IsAbs(tests[i].WorkingDir) {
			tests[i].WorkingDir = filepath.Join(baseDir, tests[i].WorkingDir)
		}
	}

	logging.Debug("Config", "Loaded %d tests from %s", len(tests), path)
	return tests, nil
}

// FindTest returns the test with the given name.
func FindTest(tests []Test, name string) (Test, error) {
	for _, test := range tests {
		if test.Name == name {
			return test, nil
		}
	}
	ce := ConfigurationError{
		FileName:  name,
		Test:      name,
		Category:  CategoryCollection,
		ErrorType: ErrorTypeValidation,
		Message:   "test not found in collection",
	}
	if names := similarNames(tests, name); len(names) > 0 {
		ce.Suggestions = append(ce.Suggestions, fmt.Sprintf("did you mean one of: %v", names))
	}
	return Test{}, asResultError(ce)
}
