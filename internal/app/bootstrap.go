package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"releasetest/internal/config"
	"releasetest/internal/result"
	"releasetest/pkg/logging"
)

// Application loads the configuration and test collection and runs the
// selected release tests.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "", "release_tests.yaml")
//	cfg.TestNames = []string{"many_tasks"}
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	results, err := application.Run(ctx)
type Application struct {
	config   *Config
	tests    []config.Test
	services *Services
}

// NewApplication creates and initializes a new application instance:
//
//  1. Configures logging based on debug settings
//  2. Loads the application config (defaults when the file is absent)
//  3. Loads and validates the test collection
//  4. Initializes the services shared by every run
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(appLogLevel, logOutput)

	if cfg.AppConfig == nil {
		appCfg, err := loadAppConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load releasetest configuration")
			return nil, err
		}
		cfg.AppConfig = &appCfg
	}

	tests, err := config.LoadTestCollection(cfg.TestCollectionFile)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load test collection %s", cfg.TestCollectionFile)
		return nil, err
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, result.Wrap(result.KindSetup, err, "failed to initialize services")
	}

	if err := config.ValidateTests(cfg.TestCollectionFile, tests, services.Registry.Names()); err != nil {
		return nil, err
	}

	return &Application{
		config:   cfg,
		tests:    tests,
		services: services,
	}, nil
}

func loadAppConfig(configPath string) (config.AppConfig, error) {
	if configPath == "" {
		dir, err := config.GetDefaultConfigPath()
		if err != nil {
			return config.AppConfig{}, result.Wrap(result.KindConfig, err, "could not determine config directory")
		}
		configPath = dir
	}
	appCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.AppConfig{}, err
	}
	logging.Debug("Bootstrap", "Loaded configuration from %s", configPath)
	return appCfg, nil
}

// Tests returns the loaded test collection.
func (a *Application) Tests() []config.Test {
	return a.tests
}

// Run executes the selected tests. See runTests.
func (a *Application) Run(ctx context.Context) ([]*result.Result, error) {
	if len(a.config.TestNames) == 0 {
		return nil, fmt.Errorf("no tests selected")
	}
	return runTests(ctx, a.config, a.tests, a.services)
}
