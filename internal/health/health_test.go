package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// =============================================================================
// Stubs
// =============================================================================

type stubRegistrar struct {
	status rpc.Status
}

func (s *stubRegistrar) Stats() rpc.MonitorStats { return rpc.MonitorStats{Status: s.status} }

type stubPinger struct {
	err error
}

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

type stubRefresh struct {
	at map[domain.Tier]time.Time
}

func (s *stubRefresh) LastRefresh(tier domain.Tier) (time.Time, bool) {
	t, ok := s.at[tier]
	return t, ok
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor(Deps{
		Registrar: &stubRegistrar{status: rpc.StatusHealthy},
		Database:  &stubPinger{},
		Pricing:   &stubRefresh{at: map[domain.Tier]time.Time{domain.TierCustomer: time.Now()}},
		Tiers:     []domain.Tier{domain.TierCustomer},
		MaxAge:    time.Hour,
	})

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s: %+v", report.SystemStatus, report.Components)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	monitor := NewMonitor(Deps{
		Registrar: &stubRegistrar{status: rpc.StatusThrottled},
		Pricing:   &stubRefresh{at: map[domain.Tier]time.Time{domain.TierCustomer: time.Now().Add(-3 * time.Hour)}},
		Tiers:     []domain.Tier{domain.TierCustomer, domain.TierCost},
		MaxAge:    time.Hour,
	})

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if got := report.Components["pricing:cost"].Status; got != StatusDegraded {
		t.Errorf("never-refreshed tier should be degraded, got %s", got)
	}
}

func TestMonitor_Critical(t *testing.T) {
	monitor := NewMonitor(Deps{
		Registrar: &stubRegistrar{status: rpc.StatusBlocked},
		Redis:     &stubPinger{err: errors.New("connection refused")},
	})

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	if report.Components["redis"].Detail != "connection refused" {
		t.Errorf("unexpected redis detail %q", report.Components["redis"].Detail)
	}
}

func TestServer_HealthStatusCode(t *testing.T) {
	srv := NewServer(NewMonitor(Deps{Database: &stubPinger{err: errors.New("down")}}), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("unexpected body %v", body)
	}
}
