package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aist-nrm/nrm/pkg/reservation"
)

type stubCheck struct {
	name   string
	status Status
}

func (c *stubCheck) Name() string { return c.name }
func (c *stubCheck) Run(ctx context.Context) Result {
	return Result{Check: c.name, Status: c.status, Message: string(c.status)}
}

func TestCheckerRunAllOK(t *testing.T) {
	c := NewChecker(&stubCheck{"a", StatusOK}, &stubCheck{"b", StatusOK})
	report := c.Run(context.Background())
	if report.Overall != StatusOK {
		t.Errorf("expected overall ok, got %s", report.Overall)
	}
	if len(report.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(report.Results))
	}
}

func TestCheckerRunWorstWins(t *testing.T) {
	c := NewChecker(&stubCheck{"a", StatusOK}, &stubCheck{"b", StatusWarning}, &stubCheck{"c", StatusCritical})
	report := c.Run(context.Background())
	if report.Overall != StatusCritical {
		t.Errorf("expected overall critical, got %s", report.Overall)
	}
}

func TestCheckerRunWarningWithoutCritical(t *testing.T) {
	c := NewChecker(&stubCheck{"a", StatusOK}, &stubCheck{"b", StatusWarning})
	report := c.Run(context.Background())
	if report.Overall != StatusWarning {
		t.Errorf("expected overall warning, got %s", report.Overall)
	}
}

func TestTopologyCheckNilTopology(t *testing.T) {
	c := &TopologyCheck{}
	r := c.Run(context.Background())
	if r.Status != StatusCritical {
		t.Errorf("expected critical for nil topology, got %s: %s", r.Status, r.Message)
	}
}

func TestStoreCheckNilStoreIsOK(t *testing.T) {
	c := &StoreCheck{}
	r := c.Run(context.Background())
	if r.Status != StatusOK {
		t.Errorf("expected ok when no store configured, got %s: %s", r.Status, r.Message)
	}
}

func TestStoreCheckMemoryStoreReachable(t *testing.T) {
	c := &StoreCheck{Store: reservation.NewMemoryStore()}
	r := c.Run(context.Background())
	if r.Status != StatusOK {
		t.Errorf("expected ok for memory store, got %s: %s", r.Status, r.Message)
	}
}

func TestSolverCheckLookupFailure(t *testing.T) {
	c := &SolverCheck{Lookup: func() (string, error) { return "", errors.New("not found") }}
	r := c.Run(context.Background())
	if r.Status != StatusCritical {
		t.Errorf("expected critical on lookup failure, got %s", r.Status)
	}
}

func TestSolverCheckNilLookupIsOK(t *testing.T) {
	c := &SolverCheck{}
	r := c.Run(context.Background())
	if r.Status != StatusOK {
		t.Errorf("expected ok when lookup unwired, got %s", r.Status)
	}
}

func TestServerHealthzReturnsJSONReport(t *testing.T) {
	reg := prometheus.NewRegistry()
	checker := NewChecker(&stubCheck{"a", StatusOK})
	srv := NewServer("127.0.0.1:0", checker, reg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("expected report body to contain check status, got %s", w.Body.String())
	}
}

func TestServerHealthzReturns503OnCritical(t *testing.T) {
	reg := prometheus.NewRegistry()
	checker := NewChecker(&stubCheck{"a", StatusCritical})
	srv := NewServer("127.0.0.1:0", checker, reg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.handleHealthz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestMetricsTrackSolveRecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	done := m.TrackSolve("reserve")
	done(nil)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "nrm_pathfinder_solve_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected solve duration histogram to be registered, got families: %v", metricFamilies)
	}
}

func TestMetricsCountReservationOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CountReservationOp("terminate", nil)
	m.CountReservationOp("terminate", errors.New("boom"))

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "nrm_reservation_operations_total" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reservation operations counter to be registered")
	}
}
