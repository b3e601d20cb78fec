package domain

import "time"

type UpstreamDiagnostics struct {
	Name                string     `json:"name"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs"`
	LastTimeout         bool       `json:"lastTimeout"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
	TimeoutCount        int64      `json:"timeoutCount"`
}
