package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest marks caller mistakes such as a missing query.
var ErrInvalidRequest = errors.New("invalid request")

// ConfigurationError reports a secret the deployment did not provide.
// It is an operator fault: callers must not retry.
type ConfigurationError struct {
	Secret  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Secret + " not configured"
}

// UpstreamError wraps any failure talking to a third-party API:
// non-2xx status, undecodable body, network error or timeout.
type UpstreamError struct {
	Upstream string
	Status   int
	Body     string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		body := strings.TrimSpace(e.Body)
		if body == "" {
			return fmt.Sprintf("%s API error: %d", e.Upstream, e.Status)
		}
		return fmt.Sprintf("%s API error: %d - %s", e.Upstream, e.Status, body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Upstream, e.Err)
	}
	return e.Upstream + " request failed"
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call could succeed.
func (e *UpstreamError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429
}

func InvalidRequest(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, message)
}
