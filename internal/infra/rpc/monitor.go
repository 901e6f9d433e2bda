package rpc

import (
	"strings"
	"sync"
	"time"
)

// Status represents the health state of the registrar connection.
type Status string

const (
	StatusHealthy   Status = "healthy"   // requests are succeeding
	StatusDegraded  Status = "degraded"  // slow responses
	StatusThrottled Status = "throttled" // recent 429s
	StatusBlocked   Status = "blocked"   // recent 403
)

// MonitorStats is a point-in-time view of the monitor.
type MonitorStats struct {
	Status           Status        `json:"status"`
	AverageLatency   time.Duration `json:"average_latency"`
	ThrottleCount429 int           `json:"throttle_count_429"`
	BlockedCount403  int           `json:"blocked_count_403"`
	Retries          int           `json:"retries"`
	Failures         int           `json:"failures"`
	RequestsLastHour int           `json:"requests_last_hour"`
	LastError        string        `json:"last_error,omitempty"`
	LastThrottleAt   time.Time     `json:"last_throttle_at,omitzero"`
	LastSuccessAt    time.Time     `json:"last_success_at,omitzero"`
}

// Monitor tracks registrar health and rate limiting.
type Monitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	status429Count   int
	status403Count   int
	retries          int
	failures         int
	lastError        string
	throttlePatterns []string
	lastThrottleTime time.Time
	lastSuccessTime  time.Time
	cooldown         time.Duration

	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"request limit",
			"try again later",
		},
		windowDuration:        time.Hour,
		slowResponseThreshold: 5 * time.Second,
	}
}

// RecordRequest records a successful request with its latency.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.lastSuccessTime = now

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}

	m.requestTimestamps = append(m.requestTimestamps, now)
	cutoff := now.Add(-m.windowDuration)
	i := 0
	for i < len(m.requestTimestamps) && !m.requestTimestamps[i].After(cutoff) {
		i++
	}
	m.requestTimestamps = m.requestTimestamps[i:]
}

// RecordThrottle records a 429 or 403 response.
func (m *Monitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = time.Now()
	switch statusCode {
	case 429:
		m.status429Count++
		m.cooldown = time.Minute
		if d, err := time.ParseDuration(strings.TrimSpace(retryAfter) + "s"); err == nil && d > 0 {
			m.cooldown = d
		}
	case 403:
		m.status403Count++
		m.cooldown = 10 * time.Minute
	}
}

// RecordFailure records a terminal or intermediate failure.
func (m *Monitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	if err != nil {
		m.lastError = err.Error()
	}
}

func (m *Monitor) RecordRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

// DetectThrottlePattern checks if a message reads like a rate-limit notice.
func (m *Monitor) DetectThrottlePattern(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range m.throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Status returns the current connection status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() Status {
	inCooldown := time.Since(m.lastThrottleTime) < m.cooldown
	if m.status403Count > 0 && inCooldown {
		return StatusBlocked
	}
	if m.status429Count > 0 && inCooldown {
		return StatusThrottled
	}
	if len(m.recentLatencies) > 10 && m.averageLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *Monitor) averageLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range m.recentLatencies {
		total += l
	}
	return total / time.Duration(len(m.recentLatencies))
}

// Stats returns current monitoring statistics.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:           m.statusLocked(),
		AverageLatency:   m.averageLocked(),
		ThrottleCount429: m.status429Count,
		BlockedCount403:  m.status403Count,
		Retries:          m.retries,
		Failures:         m.failures,
		RequestsLastHour: len(m.requestTimestamps),
		LastError:        m.lastError,
		LastThrottleAt:   m.lastThrottleTime,
		LastSuccessAt:    m.lastSuccessTime,
	}
}
