package config

import (
	"fmt"
	"maps"

	"dario.cat/mergo"
)

// AsSmokeTest returns a copy of the test with its smoke_test overrides merged
// over the base definition and SmokeTest set. Non-empty override fields win.
// The returned test carries no overrides, so applying it twice is a no-op.
func (t Test) AsSmokeTest() (Test, error) {
	smoke := t
	smoke.SmokeTest = true
	smoke.Env = maps.Clone(t.Env)
	smoke.Alert.Thresholds = maps.Clone(t.Alert.Thresholds)
	smoke.SmokeTestOverrides = nil

	overrides := t.SmokeTestOverrides
	if overrides == nil {
		return smoke, nil
	}

	if err := mergo.Merge(&smoke.Cluster, overrides.Cluster, mergo.WithOverride); err != nil {
		return Test{}, fmt.Errorf("failed to merge smoke test cluster overrides for %s: %w", t.Name, err)
	}
	if err := mergo.Merge(&smoke.Run, overrides.Run, mergo.WithOverride); err != nil {
		return Test{}, fmt.Errorf("failed to merge smoke test run overrides for %s: %w", t.Name, err)
	}
	if overrides.Frequency != "" {
		smoke.Frequency = overrides.Frequency
	}
	return smoke, nil
}
