package config

import (
	"fmt"
	"slices"
	"strings"

	"releasetest/internal/result"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// addErr appends err if it is a ValidationError.
func (ve *ValidationErrors) addErr(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateNonNegative checks that a numeric field is not negative
func ValidateNonNegative(field string, value int) error {
	if value < 0 {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must not be negative",
		}
	}
	return nil
}

// ValidateEntityName validates that an entity name follows proper conventions
func ValidateEntityName(name, entityType string) error {
	if err := ValidateRequired("name", name, entityType); err != nil {
		return err
	}

	if len(name) > 100 {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "must not exceed 100 characters",
		}
	}

	if strings.ContainsAny(name, " \t/") {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "cannot contain whitespace or slashes",
		}
	}

	return nil
}

// FormatValidationError creates a consistent validation error message
func FormatValidationError(entityType, entityName string, err error) error {
	if err == nil {
		return nil
	}

	if entityName != "" {
		return fmt.Errorf("validation failed for %s '%s': %w", entityType, entityName, err)
	}
	return fmt.Errorf("validation failed for %s: %w", entityType, err)
}

// ValidateTest checks a single test definition. runTypes lists the run types
// registered in this process.
func ValidateTest(test Test, runTypes []string) error {
	var errs ValidationErrors

	errs.addErr(ValidateEntityName(test.Name, "test"))
	errs.addErr(ValidateRequired("working_dir", test.WorkingDir, "test"))
	errs.addErr(ValidateRequired("cluster.cluster_env", test.Cluster.ClusterEnv, "test"))
	errs.addErr(ValidateRequired("cluster.cluster_compute", test.Cluster.ClusterCompute, "test"))
	errs.addErr(ValidateRequired("run.script", test.Run.Script, "test"))
	errs.addErr(ValidateOneOf("run.type", test.Run.Type, runTypes))
	errs.addErr(ValidateNonNegative("run.timeout", test.Run.Timeout))
	errs.addErr(ValidateNonNegative("run.prepare_timeout", test.Run.PrepareTimeout))
	errs.addErr(ValidateNonNegative("run.wait_for_nodes.num_nodes", test.Run.WaitForNodes.NumNodes))
	errs.addErr(ValidateNonNegative("run.wait_for_nodes.timeout", test.Run.WaitForNodes.Timeout))
	errs.addErr(ValidateNonNegative("cluster.autosuspend_mins", test.Cluster.AutosuspendMins))

	if test.Cluster.ClusterEnvBuildID != "" && test.Cluster.ClusterEnvID == "" {
		errs.Add("cluster.cluster_env_build_id", "requires cluster.cluster_env_id", test.Cluster.ClusterEnvBuildID)
	}

	if smoke := test.SmokeTestOverrides; smoke != nil {
		if smoke.Run.Type != "" {
			errs.addErr(ValidateOneOf("smoke_test.run.type", smoke.Run.Type, runTypes))
		}
		errs.addErr(ValidateNonNegative("smoke_test.run.timeout", smoke.Run.Timeout))
	}

	for key, threshold := range test.Alert.Thresholds {
		if threshold.Min != nil && threshold.Max != nil && *threshold.Min > *threshold.Max {
			errs.Add("alert.thresholds."+key, "min must not exceed max")
		}
	}

	if errs.HasErrors() {
		return FormatValidationError("test", test.Name, errs)
	}
	return nil
}

// ValidateTests validates every test of a collection and checks that names
// are unique. The returned error is a ConfigError wrapping a
// ConfigurationErrorCollection with one entry per invalid test.
func ValidateTests(path string, tests []Test, runTypes []string) error {
	collection := NewConfigurationErrorCollection()
	seen := make(map[string]bool)

	for _, test := range tests {
		if err := ValidateTest(test, runTypes); err != nil {
			ce := NewConfigurationError(path, CategoryCollection, ErrorTypeValidation, err.Error())
			ce.Test = test.Name
			collection.Add(ce)
		}
		if test.Name != "" && seen[test.Name] {
			ce := NewConfigurationError(path, CategoryCollection, ErrorTypeValidation,
				fmt.Sprintf("duplicate test name %q", test.Name))
			ce.Test = test.Name
			collection.Add(ce)
		}
		seen[test.Name] = true
	}

	if collection.HasErrors() {
		return &result.Error{Kind: result.KindConfig, Err: *collection}
	}
	return nil
}

// NewConfigurationErrorCollection creates a new empty error collection
func NewConfigurationErrorCollection() *ConfigurationErrorCollection {
	return &ConfigurationErrorCollection{
		Errors: make([]ConfigurationError, 0),
	}
}

func similarNames(tests []Test, name string) []string {
	var names []string
	needle := strings.ToLower(name)
	for _, test := range tests {
		candidate := strings.ToLower(test.Name)
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			names = append(names, test.Name)
		}
	}
	return names
}
