package app

import (
	"context"
	"fmt"

	"releasetest/internal/config"
	"releasetest/internal/result"
	"releasetest/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// SelectTests resolves names against the collection and applies the smoke
// test overrides when smoke is set.
func SelectTests(tests []config.Test, names []string, smoke bool) ([]config.Test, error) {
	selected := make([]config.Test, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		test, err := config.FindTest(tests, name)
		if err != nil {
			return nil, err
		}
		if smoke {
			if test.SmokeTestOverrides == nil {
				return nil, result.NewError(result.KindConfig,
					"smoke test requested but test %s has no smoke_test configuration", name)
			}
			if test, err = test.AsSmokeTest(); err != nil {
				return nil, result.Wrap(result.KindConfig, err, "invalid smoke test configuration")
			}
		}
		selected = append(selected, test)
	}
	return selected, nil
}

// runTests runs the selected tests, at most cfg.Parallelism at a time. Each
// run gets its own Result and collaborators. The returned error belongs to
// the first failed test in selection order.
func runTests(ctx context.Context, cfg *Config, tests []config.Test, services *Services) ([]*result.Result, error) {
	selected, err := SelectTests(tests, cfg.TestNames, cfg.SmokeTest)
	if err != nil {
		return nil, err
	}

	results := make([]*result.Result, len(selected))
	errs := make([]error, len(selected))

	g := new(errgroup.Group)
	limit := cfg.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, test := range selected {
		results[i] = result.New()
		g.Go(func() error {
			errs[i] = services.Orchestrator.Run(ctx, test, cfg.ProjectID, cfg.WheelsURL, results[i])
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("release test %s failed: %w", selected[i].Name, err)
		}
	}
	if len(selected) > 1 {
		logging.Info("Run", "%d of %d release tests passed", len(selected)-failed, len(selected))
	}
	return results, firstErr
}
