package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mf := findMetricFamily(t, reg, name)
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("expected 1 metric for %s, got %d", name, len(mf.GetMetric()))
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestDomainCounters_Increment(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration()
	c.RecordCourseCreated()
	c.RecordCourseCreated()
	c.RecordCourseDeleted()
	c.RecordBookingCreated()
	c.RecordBookingCreated()
	c.RecordBookingCreated()
	c.RecordBookingCancelled()
	c.RecordSessionsPurged(5)

	tests := []struct {
		name string
		want float64
	}{
		{"coursebook_registrations_total", 1},
		{"coursebook_courses_created_total", 2},
		{"coursebook_courses_deleted_total", 1},
		{"coursebook_bookings_created_total", 3},
		{"coursebook_bookings_cancelled_total", 1},
		{"coursebook_sessions_purged_total", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, reg, tt.name); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRecordLogin_SeparatesResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordLogin(false)

	mf := findMetricFamily(t, reg, "coursebook_logins_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "result" {
				got[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if got["success"] != 1 || got["failure"] != 2 {
		t.Errorf("logins = %v, want success=1 failure=2", got)
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(403)

	mf := findMetricFamily(t, reg, "coursebook_http_status_total")
	statusCounts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				statusCounts[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if statusCounts["200"] != 2 {
		t.Errorf("status 200 count = %v, want 2", statusCounts["200"])
	}
	if statusCounts["403"] != 1 {
		t.Errorf("status 403 count = %v, want 1", statusCounts["403"])
	}
}

func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(150 * time.Millisecond)
	c.RecordRequestLatency(2 * time.Second)

	mf := findMetricFamily(t, reg, "coursebook_request_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() < 2.1 {
		t.Errorf("sample sum = %v, want >= 2.1", h.GetSampleSum())
	}
}

func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordBookingCreated()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "coursebook_bookings_created_total 1") {
		t.Errorf("response should contain bookings counter, got:\n%s", body)
	}
}

func TestNop_ImplementsInterface(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordRegistration()
	c.RecordLogin(true)
	c.RecordHTTPStatus(500)
	c.RecordSessionsPurged(3)
}

func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordCourseCreated()

	if got := counterValue(t, reg2, "coursebook_courses_created_total"); got != 0 {
		t.Errorf("reg2 courses_created_total = %v, want 0", got)
	}
}
