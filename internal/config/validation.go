package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&builder, "  %d. %s\n", i+1, err.Error())
	}
	return builder.String()
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for values the tooling cannot use.
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if err := ValidateEndpoint(c.Agent.Endpoint); err != nil {
		add("agent.endpoint", err.Error())
	}
	if c.Agent.DialTimeout <= 0 {
		add("agent.dial_timeout", "must be positive")
	}
	if c.Agent.CallTimeout <= 0 {
		add("agent.call_timeout", "must be positive")
	}
	if c.Agent.Retry.MaxRetries < 0 {
		add("agent.retry.max_retries", "cannot be negative")
	}
	if c.Agent.Retry.Jitter < 0 || c.Agent.Retry.Jitter > 1 {
		add("agent.retry.jitter", "must be between 0 and 1")
	}
	if c.Target.EngineType == "" {
		add("target.engine_type", "cannot be empty")
	}
	if !logLevels[c.Logging.Level] {
		add("logging.level", fmt.Sprintf("unknown level %q (debug, info, warn, error)", c.Logging.Level))
	}
	if c.Store.Dir == "" {
		add("store.dir", "cannot be empty")
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}

// ValidateEndpoint checks that endpoint is a ws:// or wss:// URL with a host.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", endpoint)
	}
	return nil
}
