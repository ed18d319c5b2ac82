package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/starsdaisuki/stargate/pkg/metrics"
	"github.com/starsdaisuki/stargate/pkg/switcher"
	"github.com/starsdaisuki/stargate/pkg/util"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print status changes until interrupted",
	Long: `Probe the device every interval and print one line per snapshot.
With --metrics-addr, status and switch counters are served in Prometheus
format at /metrics.

Examples:
  stargate watch
  stargate watch --interval 10s --metrics-addr :9105
  stargate watch --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := firstNonEmpty(watchMetricsAddr, app.settings.MetricsAddr)
		var collector *metrics.Collector
		if addr != "" {
			reg := prometheus.NewRegistry()
			var err error
			if collector, err = metrics.NewCollector(reg); err != nil {
				return err
			}
			srv := serveMetrics(addr, collector)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		rep := &switcher.ConsoleReporter{Out: os.Stdout, JSON: app.jsonOutput}
		c, _, err := newCoordinator(ctx, rep, collector)
		if err != nil {
			return err
		}
		if !c.Init(ctx) {
			return util.ErrNoPrivilege
		}
		return c.Watch(ctx, watchInterval)
	},
}

func serveMetrics(addr string, c *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		util.WithField("addr", addr).Infof("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Probe interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}
