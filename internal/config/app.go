package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppConfig is the top-level configuration structure for releasetest.
type AppConfig struct {
	ControlPlane ControlPlaneConfig `yaml:"controlPlane"`
	Timeouts     TimeoutsConfig     `yaml:"timeouts"`
	SSH          SSHConfig          `yaml:"ssh"`
	ObjectStore  ObjectStoreConfig  `yaml:"objectStore"`
	Report       ReportConfig       `yaml:"report"`
}

// ControlPlaneConfig defines how to reach the provisioning backend.
type ControlPlaneConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token,omitempty"`
	RetryMax     int           `yaml:"retryMax,omitempty"`
	RetryWaitMin time.Duration `yaml:"retryWaitMin,omitempty"`
	RetryWaitMax time.Duration `yaml:"retryWaitMax,omitempty"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout,omitempty"`
}

// TimeoutsConfig bounds the infrastructure stages. Command timeouts come from
// the test definition instead.
type TimeoutsConfig struct {
	PollInterval   time.Duration `yaml:"pollInterval,omitempty"`
	BuildTimeout   time.Duration `yaml:"buildTimeout,omitempty"`
	StartupTimeout time.Duration `yaml:"startupTimeout,omitempty"`
	TerminateGrace time.Duration `yaml:"terminateGrace,omitempty"`
}

// SSHConfig configures the connection to the cluster head node.
type SSHConfig struct {
	User           string        `yaml:"user"`
	Port           int           `yaml:"port"`
	KeyPath        string        `yaml:"keyPath"`
	DialTimeout    time.Duration `yaml:"dialTimeout,omitempty"`
	DialRetries    uint          `yaml:"dialRetries,omitempty"`
	RemoteBaseDir  string        `yaml:"remoteBaseDir,omitempty"`
	KnownHostsPath string        `yaml:"knownHostsPath,omitempty"`
}

// ObjectStoreConfig configures the optional S3-compatible store used to move
// files to and from clusters. It is disabled when Endpoint is empty.
type ObjectStoreConfig struct {
	Endpoint  string        `yaml:"endpoint,omitempty"`
	AccessKey string        `yaml:"accessKey,omitempty"`
	SecretKey string        `yaml:"secretKey,omitempty"`
	Region    string        `yaml:"region,omitempty"`
	UseSSL    bool          `yaml:"useSSL,omitempty"`
	Bucket    string        `yaml:"bucket,omitempty"`
	URLExpiry time.Duration `yaml:"urlExpiry,omitempty"`
	KeyPrefix string        `yaml:"keyPrefix,omitempty"`
}

// ReportConfig controls where run results are written.
type ReportConfig struct {
	ResultFile string `yaml:"resultFile,omitempty"`
	Console    bool   `yaml:"console"`
}

// Enabled reports whether an object store is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Validate checks the object store settings when the store is enabled.
func (c ObjectStoreConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// Validate checks the application configuration.
func (c AppConfig) Validate() error {
	var errs ValidationErrors
	if err := ValidateRequired("controlPlane.url", c.ControlPlane.URL, "application config"); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if c.Timeouts.PollInterval <= 0 {
		errs.Add("timeouts.pollInterval", "must be positive", c.Timeouts.PollInterval)
	}
	if c.Timeouts.BuildTimeout <= 0 {
		errs.Add("timeouts.buildTimeout", "must be positive", c.Timeouts.BuildTimeout)
	}
	if c.Timeouts.StartupTimeout <= 0 {
		errs.Add("timeouts.startupTimeout", "must be positive", c.Timeouts.StartupTimeout)
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		errs.Add("ssh.port", "must be a valid TCP port", c.SSH.Port)
	}
	if err := c.ObjectStore.Validate(); err != nil {
		errs.Add("objectStore", err.Error())
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
