package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/dramauth"
	"github.com/MrEthical07/dramauth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot dramauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() dramauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: dramauth.MetricsSnapshot{
			Counters:   map[dramauth.MetricID]uint64{},
			Histograms: map[dramauth.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(c); got != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", got)
	}
}

func TestCollectCounters(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: dramauth.MetricsSnapshot{
			Counters: map[dramauth.MetricID]uint64{
				dramauth.MetricLoginSuccess: 7,
			},
			Histograms: map[dramauth.MetricID][]uint64{},
		},
		dropped: 2,
	})

	expected := `
# HELP dramauth_login_success_total Sign-ins that ended with an issued session.
# TYPE dramauth_login_success_total counter
dramauth_login_success_total 7
# HELP dramauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE dramauth_audit_dropped_total counter
dramauth_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dramauth_login_success_total", "dramauth_audit_dropped_total"); err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
	if got, want := testutil.CollectAndCount(c), len(internaldefs.CounterDefs)+1; got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}
}

func TestHandlerServesHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: dramauth.MetricsSnapshot{
			Counters: map[dramauth.MetricID]uint64{dramauth.MetricLoginSuccess: 1},
			Histograms: map[dramauth.MetricID][]uint64{
				dramauth.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		`dramauth_login_latency_seconds_bucket{le="0.005"} 1`,
		`dramauth_login_latency_seconds_bucket{le="+Inf"} 36`,
		`dramauth_login_latency_seconds_count 36`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}
