package switcher

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/starsdaisuki/stargate/pkg/cli"
	"github.com/starsdaisuki/stargate/pkg/model"
)

// Reporter receives snapshots and switch outcomes as they are produced.
type Reporter interface {
	SnapshotUpdated(model.Snapshot)
	SwitchCompleted(model.SwitchOutcome)
}

type nopReporter struct{}

func (nopReporter) SnapshotUpdated(model.Snapshot)      {}
func (nopReporter) SwitchCompleted(model.SwitchOutcome) {}

// ConsoleReporter prints human-readable lines, or one JSON object per line
// when JSON is set.
type ConsoleReporter struct {
	Out  io.Writer
	JSON bool

	mu sync.Mutex
}

func (r *ConsoleReporter) SnapshotUpdated(s model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.JSON {
		r.emit("snapshot", s)
		return
	}
	fmt.Fprintln(r.Out, FormatSnapshotLine(s))
}

func (r *ConsoleReporter) SwitchCompleted(o model.SwitchOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.JSON {
		r.emit("switch", o)
		return
	}
	switch {
	case o.Success && o.Reachable:
		fmt.Fprintln(r.Out, cli.Green("✓ ")+o.Message)
	case o.Success:
		fmt.Fprintln(r.Out, cli.Yellow("! ")+o.Message)
	default:
		fmt.Fprintln(r.Out, cli.Red("✗ ")+o.Message)
	}
}

func (r *ConsoleReporter) emit(kind string, v interface{}) {
	_ = json.NewEncoder(r.Out).Encode(map[string]interface{}{"type": kind, "data": v})
}

// FormatSnapshotLine renders a snapshot on one line.
func FormatSnapshotLine(s model.Snapshot) string {
	ts := s.ProbedAt.Format("15:04:05")
	if !s.Connected {
		return fmt.Sprintf("%s  %s", cli.Dim(ts), cli.Red("disconnected"))
	}
	matched := s.MatchedProfileID
	if matched == "" {
		matched = "-"
	}
	return fmt.Sprintf("%s  %s %s  %s/%d via %s  dns %s  %dMbps  profile %s",
		cli.Dim(ts), cli.SignalBars(s.SignalStrength), s.SSID,
		s.IPAddress, s.PrefixLength, orDash(s.Gateway), orDash(s.DNS1), s.LinkSpeed, matched)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
