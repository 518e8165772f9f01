package alert

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"releasetest/internal/config"
)

const (
	// DefaultHandler never raises an alert.
	DefaultHandler = "default"
	// ThresholdHandler checks numeric results against alert.thresholds.
	ThresholdHandler = "threshold"
)

// Handler inspects the results of a finished workload. It returns a
// non-empty message when the results should fail the run.
type Handler interface {
	Check(test config.Test, results map[string]interface{}) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(test config.Test, results map[string]interface{}) (string, error)

func (f HandlerFunc) Check(test config.Test, results map[string]interface{}) (string, error) {
	return f(test, results)
}

// Registry maps handler names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry holding the default and threshold
// handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}}
	r.Register(DefaultHandler, HandlerFunc(noAlert))
	r.Register(ThresholdHandler, HandlerFunc(checkThresholds))
	return r
}

// Register adds or replaces the handler called name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get returns the handler called name. An empty name selects the default
// handler.
func (r *Registry) Get(name string) (Handler, bool) {
	if name == "" {
		name = DefaultHandler
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func noAlert(config.Test, map[string]interface{}) (string, error) {
	return "", nil
}

func checkThresholds(test config.Test, results map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(test.Alert.Thresholds))
	for key := range test.Alert.Thresholds {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var violations []string
	for _, key := range keys {
		bounds := test.Alert.Thresholds[key]
		raw, ok := results[key]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s missing from results", key))
			continue
		}
		value, ok := toFloat(raw)
		if !ok {
			return "", fmt.Errorf("result %q is not numeric: %v", key, raw)
		}
		if bounds.Min != nil && value < *bounds.Min {
			violations = append(violations, fmt.Sprintf("%s=%g is below minimum %g", key, value, *bounds.Min))
		}
		if bounds.Max != nil && value > *bounds.Max {
			violations = append(violations, fmt.Sprintf("%s=%g is above maximum %g", key, value, *bounds.Max))
		}
	}
	return strings.Join(violations, "; "), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
