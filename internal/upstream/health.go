package upstream

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wakakowasake/favthing/internal/domain"
	"github.com/wakakowasake/favthing/internal/metrics"
)

type upstreamHealth struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// Monitor keeps per-upstream call statistics for the diagnostics endpoint.
type Monitor struct {
	mu     sync.Mutex
	health map[string]*upstreamHealth
	now    func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		health: make(map[string]*upstreamHealth),
		now:    time.Now,
	}
}

// Register makes an upstream visible in diagnostics before its first call.
func (m *Monitor) Register(name string) {
	if m == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.health[key] == nil {
		m.health[key] = &upstreamHealth{}
	}
}

func (m *Monitor) Record(name string, err error, latency time.Duration) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	if latency > 0 {
		metrics.UpstreamRequestDuration.WithLabelValues(key).Observe(latency.Seconds())
	}
	timeout := isTimeoutLikeError(err)
	status := "ok"
	switch {
	case err == nil:
	case timeout:
		status = "timeout"
	default:
		status = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(key, status).Inc()

	if m == nil {
		return
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.health[key]
	if state == nil {
		state = &upstreamHealth{}
		m.health[key] = state
	}
	state.totalRequests++
	state.lastLatency = latency
	state.lastTimeout = timeout
	if timeout {
		state.timeoutCount++
	}
	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		return
	}
	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
}

func (m *Monitor) Diagnostics() []domain.UpstreamDiagnostics {
	if m == nil {
		return []domain.UpstreamDiagnostics{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]domain.UpstreamDiagnostics, 0, len(m.health))
	for name, state := range m.health {
		item := domain.UpstreamDiagnostics{
			Name:                name,
			ConsecutiveFailures: state.consecutiveFailures,
			LastError:           state.lastError,
			LastLatencyMS:       state.lastLatency.Milliseconds(),
			LastTimeout:         state.lastTimeout,
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
			TimeoutCount:        state.timeoutCount,
		}
		if !state.lastSuccessAt.IsZero() {
			lastSuccessAt := state.lastSuccessAt
			item.LastSuccessAt = &lastSuccessAt
		}
		if !state.lastFailureAt.IsZero() {
			lastFailureAt := state.lastFailureAt
			item.LastFailureAt = &lastFailureAt
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
