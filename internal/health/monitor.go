package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// Pinger checks a backing service.
type Pinger interface {
	Health(ctx context.Context) error
}

// RegistrarStats exposes the registrar client monitor.
type RegistrarStats interface {
	Stats() rpc.MonitorStats
}

// RefreshTracker reports pricing refresh times.
type RefreshTracker interface {
	LastRefresh(tier domain.Tier) (time.Time, bool)
}

// Deps are the components the monitor inspects. Nil fields are not checked.
type Deps struct {
	Registrar RegistrarStats
	Database  Pinger
	Redis     Pinger
	Pricing   RefreshTracker
	Tiers     []domain.Tier
	MaxAge    time.Duration
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	deps       Deps
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
	now        func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor(deps Deps) *Monitor {
	return &Monitor{deps: deps, now: time.Now}
}

// CheckHealth builds a report. Results are cached for a few seconds so
// probes do not hammer the database.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < 5*time.Second {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}
	add := func(name string, c ComponentHealth) {
		report.Components[name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	if m.deps.Registrar != nil {
		report.Registrar = m.deps.Registrar.Stats()
		add("registrar", registrarHealth(report.Registrar))
	}
	if m.deps.Database != nil {
		add("database", ping(ctx, m.deps.Database, StatusCritical))
	}
	if m.deps.Redis != nil {
		add("redis", ping(ctx, m.deps.Redis, StatusDegraded))
	}
	if m.deps.Pricing != nil {
		for _, tier := range m.deps.Tiers {
			add("pricing:"+string(tier), m.pricingHealth(tier))
		}
	}

	m.lastCheck = m.now()
	m.lastReport = &report
	return report
}

func registrarHealth(s rpc.MonitorStats) ComponentHealth {
	switch s.Status {
	case rpc.StatusBlocked:
		return ComponentHealth{Status: StatusCritical, Detail: "registrar rejected credentials or source IP"}
	case rpc.StatusThrottled:
		return ComponentHealth{Status: StatusDegraded, Detail: "registrar is throttling requests"}
	case rpc.StatusDegraded:
		return ComponentHealth{Status: StatusDegraded, Detail: "slow registrar responses"}
	}
	return ComponentHealth{Status: StatusHealthy}
}

func ping(ctx context.Context, p Pinger, failStatus SystemStatus) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Health(ctx); err != nil {
		return ComponentHealth{Status: failStatus, Detail: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy}
}

func (m *Monitor) pricingHealth(tier domain.Tier) ComponentHealth {
	last, ok := m.deps.Pricing.LastRefresh(tier)
	if !ok {
		return ComponentHealth{Status: StatusDegraded, Detail: "not refreshed since start"}
	}
	age := m.now().Sub(last)
	if m.deps.MaxAge > 0 && age > m.deps.MaxAge {
		return ComponentHealth{
			Status: StatusDegraded,
			Detail: fmt.Sprintf("last refresh %s ago", age.Truncate(time.Second)),
		}
	}
	return ComponentHealth{Status: StatusHealthy}
}
