package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名のメトリクスファミリーを返す。見つからない場合はnil。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
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
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestNewCollector_DuplicateRegistration_Panics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistration_Panics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}

// TestRecordHTTPRequest_LabelsByRoute はルートパターンとステータスでラベル付けされることを検証する。
func TestRecordHTTPRequest_LabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", "/api/leads/{id}", 200, 15*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/leads/{id}", 200, 20*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/leads", 402, 5*time.Millisecond)

	mf := findMetric(t, reg, "steadyleadflow_http_requests_total")
	if mf == nil {
		t.Fatal("steadyleadflow_http_requests_total metric not found")
	}
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
	}

	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["route"] == "/api/leads/{id}" && m.GetCounter().GetValue() != 2 {
			t.Errorf("GET /api/leads/{id} count = %v, want 2", m.GetCounter().GetValue())
		}
		if labels["route"] == "/api/leads" && labels["status_code"] != "402" {
			t.Errorf("POST /api/leads status label = %q, want 402", labels["status_code"])
		}
	}

	latency := findMetric(t, reg, "steadyleadflow_http_request_duration_seconds")
	if latency == nil {
		t.Fatal("latency histogram not found")
	}
}

// TestRecordLeadCounters はリード関連カウンタが増加することを検証する。
func TestRecordLeadCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLeadCreated()
	c.RecordLeadCreated()
	c.RecordLeadLimitRejected()

	if v := findMetric(t, reg, "steadyleadflow_leads_created_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("leads_created_total = %v, want 2", v)
	}
	if v := findMetric(t, reg, "steadyleadflow_lead_limit_rejections_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("lead_limit_rejections_total = %v, want 1", v)
	}
}

// TestRecordLogin_ByOutcome はログイン結果ごとにカウントされることを検証する。
func TestRecordLogin_ByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginSuccess)
	c.RecordLogin(LoginInvalidCredentials)
	c.RecordLogin(LoginInvalidCredentials)

	mf := findMetric(t, reg, "steadyleadflow_logins_total")
	if mf == nil {
		t.Fatal("steadyleadflow_logins_total metric not found")
	}
	for _, m := range mf.GetMetric() {
		outcome := m.GetLabel()[0].GetValue()
		want := map[string]float64{LoginSuccess: 1, LoginInvalidCredentials: 2}[outcome]
		if m.GetCounter().GetValue() != want {
			t.Errorf("logins{outcome=%q} = %v, want %v", outcome, m.GetCounter().GetValue(), want)
		}
	}
}

// TestRecordWorkerCounters はワーカー関連カウンタが加算されることを検証する。
func TestRecordWorkerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSnapshotsUpserted(12)
	c.RecordSessionsExpired(3)

	if v := findMetric(t, reg, "steadyleadflow_snapshots_upserted_total").GetMetric()[0].GetCounter().GetValue(); v != 12 {
		t.Errorf("snapshots_upserted_total = %v, want 12", v)
	}
	if v := findMetric(t, reg, "steadyleadflow_sessions_expired_total").GetMetric()[0].GetCounter().GetValue(); v != 3 {
		t.Errorf("sessions_expired_total = %v, want 3", v)
	}
}
