package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"releasetest/internal/result"
)

// Reporter publishes the outcome of a finished run.
type Reporter interface {
	Name() string
	Report(ctx context.Context, res *result.Result) error
}

// Multi runs every reporter and joins their errors.
type Multi []Reporter

func (m Multi) Name() string { return "multi" }

func (m Multi) Report(ctx context.Context, res *result.Result) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("%s reporter: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// PrettyJSON formats v as indented JSON, falling back to %v.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
