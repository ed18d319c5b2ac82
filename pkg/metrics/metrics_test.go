package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/shell"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, reg
}

func TestObserveSwitch(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveSwitch(model.SwitchOutcome{Success: true, Reachable: true, Duration: time.Second})
	c.ObserveSwitch(model.SwitchOutcome{Success: true, Duration: 2 * time.Second})
	c.ObserveSwitch(model.SwitchOutcome{
		Duration: 500 * time.Millisecond,
		Steps: []shell.StepResult{
			{Step: shell.Step{Name: "route", Critical: true}, Ran: true, ExitCode: 2},
			{Step: shell.Step{Name: "dns1"}, Ran: true},
			{Step: shell.Step{Name: "dns2"}},
		},
	})
	c.ObserveRejected()

	for result, want := range map[string]float64{
		ResultSuccess: 1, ResultUnreachable: 1, ResultFailed: 1, ResultRejected: 1,
	} {
		if got := testutil.ToFloat64(c.SwitchesTotal.WithLabelValues(result)); got != want {
			t.Errorf("stargate_switches_total{result=%q} = %v, want %v", result, got, want)
		}
	}
	if got := testutil.ToFloat64(c.StepFailuresTotal.WithLabelValues("route")); got != 1 {
		t.Errorf("route failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.StepFailuresTotal.WithLabelValues("dns2")); got != 1 {
		t.Errorf("unrun step should count as failed, got %v", got)
	}
	if got := histogramCount(t, reg, "stargate_switch_duration_seconds"); got != 3 {
		t.Errorf("duration samples = %d, want 3 (rejections are not timed)", got)
	}
}

func TestObserveSnapshot(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveSnapshot(model.Snapshot{
		Connected: true, SignalStrength: 96, SignalDBm: -52, LinkSpeed: 866, MatchedProfileID: "side",
	})
	if testutil.ToFloat64(c.Connected) != 1 || testutil.ToFloat64(c.SignalDBm) != -52 || testutil.ToFloat64(c.LinkSpeed) != 866 {
		t.Error("link gauges not updated")
	}
	if testutil.ToFloat64(c.ActiveProfile.WithLabelValues("side")) != 1 {
		t.Error("matched profile gauge not set")
	}

	c.ObserveSnapshot(model.Disconnected(time.Now()))
	if testutil.ToFloat64(c.Connected) != 0 || testutil.ToFloat64(c.SignalStrength) != 0 {
		t.Error("disconnect should zero the link gauges")
	}
	if n := testutil.CollectAndCount(c.ActiveProfile); n != 0 {
		t.Errorf("matched profile series = %d after disconnect, want 0", n)
	}
	if got := testutil.ToFloat64(c.ProbesTotal); got != 2 {
		t.Errorf("probes = %v, want 2", got)
	}
}

func TestNewCollector_Reregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	a.ObserveRejected()
	if got := testutil.ToFloat64(b.SwitchesTotal.WithLabelValues(ResultRejected)); got != 1 {
		t.Errorf("re-registered collector should share series, got %v", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveSwitch(model.SwitchOutcome{Success: true})
	c.ObserveRejected()
	c.ObserveSnapshot(model.Snapshot{Connected: true})
	if c.Gatherer() != nil {
		t.Error("nil collector should have no gatherer")
	}
}

func TestHandler(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveSnapshot(model.Snapshot{Connected: true, LinkSpeed: 433})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "stargate_link_speed_mbps 433") {
		t.Errorf("metrics output missing link speed:\n%s", body)
	}
}

func histogramCount(t *testing.T, g prometheus.Gatherer, name string) uint64 {
	t.Helper()
	mfs, err := g.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := histogramOf(m); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func histogramOf(m *dto.Metric) *dto.Histogram {
	return m.GetHistogram()
}
