// Package metrics exposes switch results and probed link state to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starsdaisuki/stargate/pkg/model"
)

// Switch result label values.
const (
	ResultSuccess     = "success"
	ResultUnreachable = "unreachable" // applied, gateway did not answer
	ResultFailed      = "failed"
	ResultRejected    = "rejected" // another switch was in flight
)

// Collector holds the stargate metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	SwitchesTotal     *prometheus.CounterVec
	SwitchDuration    prometheus.Histogram
	StepFailuresTotal *prometheus.CounterVec
	ProbesTotal       prometheus.Counter
	Connected         prometheus.Gauge
	SignalStrength    prometheus.Gauge
	SignalDBm         prometheus.Gauge
	LinkSpeed         prometheus.Gauge
	ActiveProfile     *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg (the default registerer
// when nil). Registering twice against the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	var err error
	c := &Collector{gatherer: gatherer}

	if c.SwitchesTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stargate_switches_total",
		Help: "Profile switch attempts by result.",
	}, []string{"result"}), "stargate_switches_total"); err != nil {
		return nil, err
	}
	if c.SwitchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stargate_switch_duration_seconds",
		Help:    "Wall time of accepted switches, including verification and settle delays.",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 10, 30},
	}), "stargate_switch_duration_seconds"); err != nil {
		return nil, err
	}
	if c.StepFailuresTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stargate_step_failures_total",
		Help: "Batch steps that exited non-zero, by step name.",
	}, []string{"step"}), "stargate_step_failures_total"); err != nil {
		return nil, err
	}
	if c.ProbesTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargate_probes_total",
		Help: "Status probes completed.",
	}), "stargate_probes_total"); err != nil {
		return nil, err
	}
	if c.Connected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargate_connected",
		Help: "1 when the wireless interface holds an IPv4 address.",
	}), "stargate_connected"); err != nil {
		return nil, err
	}
	if c.SignalStrength, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargate_signal_strength_percent",
		Help: "Signal quality, 0-100.",
	}), "stargate_signal_strength_percent"); err != nil {
		return nil, err
	}
	if c.SignalDBm, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargate_signal_dbm",
		Help: "Signal level in dBm.",
	}), "stargate_signal_dbm"); err != nil {
		return nil, err
	}
	if c.LinkSpeed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargate_link_speed_mbps",
		Help: "Transmit bitrate of the wireless link.",
	}), "stargate_link_speed_mbps"); err != nil {
		return nil, err
	}
	if c.ActiveProfile, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stargate_matched_profile",
		Help: "1 for the profile the current snapshot matches.",
	}, []string{"profile_id"}), "stargate_matched_profile"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the gatherer paired with the registerer.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	g := c.Gatherer()
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveSwitch records an accepted switch attempt.
func (c *Collector) ObserveSwitch(o model.SwitchOutcome) {
	if c == nil {
		return
	}
	result := ResultFailed
	switch {
	case o.Success && o.Reachable:
		result = ResultSuccess
	case o.Success:
		result = ResultUnreachable
	}
	c.SwitchesTotal.WithLabelValues(result).Inc()
	c.SwitchDuration.Observe(o.Duration.Seconds())
	for _, s := range o.Steps {
		if s.Failed() {
			c.StepFailuresTotal.WithLabelValues(s.Name).Inc()
		}
	}
}

// ObserveRejected records a switch refused because one was already running.
func (c *Collector) ObserveRejected() {
	if c == nil {
		return
	}
	c.SwitchesTotal.WithLabelValues(ResultRejected).Inc()
}

// ObserveSnapshot updates the link gauges from a fresh probe.
func (c *Collector) ObserveSnapshot(s model.Snapshot) {
	if c == nil {
		return
	}
	c.ProbesTotal.Inc()
	c.ActiveProfile.Reset()
	if !s.Connected {
		c.Connected.Set(0)
		c.SignalStrength.Set(0)
		c.SignalDBm.Set(0)
		c.LinkSpeed.Set(0)
		return
	}
	c.Connected.Set(1)
	c.SignalStrength.Set(float64(s.SignalStrength))
	c.SignalDBm.Set(float64(s.SignalDBm))
	c.LinkSpeed.Set(float64(s.LinkSpeed))
	if s.MatchedProfileID != "" {
		c.ActiveProfile.WithLabelValues(s.MatchedProfileID).Set(1)
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
