package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"releasetest/internal/alert"
	"releasetest/internal/cluster"
	"releasetest/internal/command"
	"releasetest/internal/config"
	"releasetest/internal/controlplane"
	"releasetest/internal/filemanager"
	"releasetest/internal/pipeline"
	"releasetest/internal/remote"
	"releasetest/internal/report"
	"releasetest/pkg/logging"
)

// Run types known to the registry.
const (
	RunTypeSDKCommand = "sdk_command"
	RunTypeClient     = "client"
)

// Services holds the long-lived components shared by every run.
type Services struct {
	ControlPlane *controlplane.Client
	// Store is nil when no object store is configured.
	Store        filemanager.Store
	Registry     *pipeline.Registry
	Alerts       *alert.Registry
	Orchestrator *pipeline.Orchestrator
}

// InitializeServices creates the control-plane client, the optional object
// store, the run-type registry and the orchestrator.
func InitializeServices(cfg *Config) (*Services, error) {
	appCfg := *cfg.AppConfig

	cp := controlplane.NewClient(appCfg.ControlPlane.URL,
		controlplane.WithToken(appCfg.ControlPlane.Token),
		controlplane.WithRetry(appCfg.ControlPlane.RetryMax, appCfg.ControlPlane.RetryWaitMin, appCfg.ControlPlane.RetryWaitMax),
		controlplane.WithHTTPTimeout(appCfg.ControlPlane.HTTPTimeout),
	)

	var store filemanager.Store
	if appCfg.ObjectStore.Enabled() {
		minioStore, err := filemanager.NewMinioStore(appCfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
		store = minioStore
		logging.Info("Bootstrap", "Using object store %s/%s for file transfers", appCfg.ObjectStore.Endpoint, appCfg.ObjectStore.Bucket)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	services := &Services{
		ControlPlane: cp,
		Store:        store,
		Registry:     NewRunTypeRegistry(appCfg, cp, store, commandOutput(cfg, out)),
		Alerts:       alert.NewRegistry(),
	}
	services.Orchestrator = newOrchestrator(cfg, appCfg, services, out)
	return services, nil
}

func newOrchestrator(cfg *Config, appCfg config.AppConfig, services *Services, out io.Writer) *pipeline.Orchestrator {
	opts := []pipeline.Option{
		pipeline.WithAlerts(services.Alerts),
		pipeline.WithTimeouts(appCfg.Timeouts.BuildTimeout, appCfg.Timeouts.StartupTimeout),
		pipeline.WithTeardownTimeout(appCfg.Timeouts.TerminateGrace),
		pipeline.WithArtifactDir(cfg.ArtifactDir),
	}
	if cfg.Observer != nil {
		opts = append(opts, pipeline.WithObserver(cfg.Observer))
	}

	var reporters report.Multi
	if appCfg.Report.Console && !cfg.NoConsole {
		reporters = append(reporters, report.NewConsoleReporter(out, cfg.Color))
	}
	resultFile := appCfg.Report.ResultFile
	if cfg.ResultFile != "" {
		resultFile = cfg.ResultFile
	}
	if resultFile != "" {
		reporters = append(reporters, report.NewFileReporter(resultFile))
	}
	if len(reporters) > 0 {
		opts = append(opts, pipeline.WithReporter(reporters))
	}

	return pipeline.New(config.NewClusterLoader(), services.Registry, opts...)
}

// commandOutput mirrors workload output to out in debug mode.
func commandOutput(cfg *Config, out io.Writer) io.Writer {
	if cfg.Debug && !cfg.Silent {
		return out
	}
	return nil
}

// NewRunTypeRegistry builds the table of run types. Both run types
// provision the cluster through the control plane; they differ in where the
// workload runs and how files reach it.
func NewRunTypeRegistry(appCfg config.AppConfig, provisioner cluster.Provisioner, store filemanager.Store, output io.Writer) *pipeline.Registry {
	newManager := func(env pipeline.Env) (cluster.Manager, error) {
		return cluster.NewFullManager(provisioner, env.ProjectID, env.Test.Name,
			cluster.WithPollInterval(appCfg.Timeouts.PollInterval),
			cluster.WithAutosuspend(env.Test.Cluster.AutosuspendMins),
		), nil
	}

	runnerOpts := []command.Option{command.WithPollInterval(appCfg.Timeouts.PollInterval)}
	if output != nil {
		runnerOpts = append(runnerOpts, command.WithOutput(output))
	}

	return pipeline.NewRegistry(map[string]pipeline.RunType{
		RunTypeSDKCommand: {
			NewClusterManager: newManager,
			NewExecutor: func(pipeline.Env) (remote.Executor, error) {
				return remote.NewSSHExecutor(remote.SSHOptions{
					User:           appCfg.SSH.User,
					Port:           appCfg.SSH.Port,
					KeyPath:        appCfg.SSH.KeyPath,
					KnownHostsPath: appCfg.SSH.KnownHostsPath,
					DialTimeout:    appCfg.SSH.DialTimeout,
					DialRetries:    appCfg.SSH.DialRetries,
				}), nil
			},
			NewFileManager: func(env pipeline.Env, executor remote.Executor) (filemanager.FileManager, error) {
				if store == nil {
					return filemanager.NewExecFileManager(executor), nil
				}
				return filemanager.NewObjectStoreFileManager(store, executor,
					appCfg.ObjectStore.KeyPrefix, env.RunID, appCfg.ObjectStore.URLExpiry), nil
			},
			NewCommandRunner: func(env pipeline.Env, manager cluster.Manager, files filemanager.FileManager, executor remote.Executor) (command.Runner, error) {
				return command.NewRemoteRunner(manager, files, executor,
					env.Test.WorkingDir, appCfg.SSH.RemoteBaseDir, env.RunID, runnerOpts...), nil
			},
		},
		RunTypeClient: {
			NewClusterManager: newManager,
			NewExecutor: func(pipeline.Env) (remote.Executor, error) {
				return remote.NewLocalExecutor(), nil
			},
			NewFileManager: func(pipeline.Env, remote.Executor) (filemanager.FileManager, error) {
				return filemanager.LocalFileManager{}, nil
			},
			NewCommandRunner: func(env pipeline.Env, manager cluster.Manager, files filemanager.FileManager, executor remote.Executor) (command.Runner, error) {
				baseDir := filepath.Join(os.TempDir(), "releasetest")
				return command.NewRemoteRunner(manager, files, executor,
					env.Test.WorkingDir, baseDir, env.RunID, runnerOpts...), nil
			},
		},
	})
}
