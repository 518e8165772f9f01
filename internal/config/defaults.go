package config

import "time"

const (
	// DefaultControlPlaneURL is the provisioning backend used when config.yaml
	// does not name one.
	DefaultControlPlaneURL = "https://console.anyscale.com"

	// DefaultSSHUser is the login user on cluster head nodes.
	DefaultSSHUser = "ray"

	// DefaultRemoteBaseDir is where working directories are uploaded.
	DefaultRemoteBaseDir = "/tmp/release_test"
)

// GetDefaultConfig returns the default application configuration.
func GetDefaultConfig() AppConfig {
	return AppConfig{
		ControlPlane: ControlPlaneConfig{
			URL:          DefaultControlPlaneURL,
			RetryMax:     4,
			RetryWaitMin: 1 * time.Second,
			RetryWaitMax: 30 * time.Second,
			HTTPTimeout:  60 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			PollInterval:   15 * time.Second,
			BuildTimeout:   30 * time.Minute,
			StartupTimeout: 30 * time.Minute,
			TerminateGrace: 5 * time.Minute,
		},
		SSH: SSHConfig{
			User:          DefaultSSHUser,
			Port:          22,
			DialTimeout:   30 * time.Second,
			DialRetries:   5,
			RemoteBaseDir: DefaultRemoteBaseDir,
		},
		ObjectStore: ObjectStoreConfig{
			Region:    "us-east-1",
			URLExpiry: 1 * time.Hour,
			KeyPrefix: "release-test",
		},
		Report: ReportConfig{
			Console: true,
		},
	}
}
