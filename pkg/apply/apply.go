// Package apply turns a profile into privileged commands, runs them as one
// batch, and verifies the new gateway answers.
package apply

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/probe"
	"github.com/starsdaisuki/stargate/pkg/shell"
	"github.com/starsdaisuki/stargate/pkg/util"
)

// DefaultSettleDelay is the pause between the batch and the verification ping.
const DefaultSettleDelay = 300 * time.Millisecond

// iptables chain names are at most 28 characters.
var chainRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,28}$`)

// Options configures an Applier.
type Options struct {
	DNSChain    string
	SettleDelay time.Duration
}

// Result describes a completed switch. A Result is returned even when the
// gateway did not answer; Reachable reports the verification outcome.
type Result struct {
	Interface string             `json:"interface"`
	Gateway   string             `json:"gateway,omitempty"`
	Reachable bool               `json:"reachable"`
	RTT       string             `json:"rtt,omitempty"`
	Message   string             `json:"message"`
	Steps     []shell.StepResult `json:"steps"`
}

// CommandError reports a failed batch: a non-zero session exit or a failed
// critical step. It unwraps to util.ErrCommandFailed.
type CommandError struct {
	Profile  string
	ExitCode int
	Stderr   string
	Failed   *shell.StepResult
	Steps    []shell.StepResult
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "switch to %q failed", e.Profile)
	if e.Failed != nil {
		fmt.Fprintf(&sb, ": step %s exited %d", e.Failed.Name, e.Failed.ExitCode)
	} else {
		fmt.Fprintf(&sb, ": exit status %d", e.ExitCode)
	}
	if e.Stderr != "" {
		sb.WriteString(": " + e.Stderr)
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return util.ErrCommandFailed
}

// Applier executes switch plans over a privileged channel.
type Applier struct {
	ch     shell.Channel
	prober *probe.Prober
	opts   Options
	sleep  func(context.Context, time.Duration)
}

// New creates an Applier. The prober must share ch so interface resolution
// matches what status probes report.
func New(ch shell.Channel, prober *probe.Prober, opts Options) *Applier {
	if opts.DNSChain == "" {
		opts.DNSChain = DefaultDNSChain
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Applier{ch: ch, prober: prober, opts: opts, sleep: sleepCtx}
}

// Plan returns the commands Apply would run for p on iface.
func (a *Applier) Plan(p *model.Profile, iface string) []shell.Step {
	return Plan(p, iface, a.opts.DNSChain)
}

// DryRun validates p and resolves the interface without changing anything.
func (a *Applier) DryRun(ctx context.Context, p *model.Profile) (string, []shell.Step, error) {
	if err := a.check(p); err != nil {
		return "", nil, err
	}
	iface := a.prober.ResolveInterface(ctx)
	return iface, a.Plan(p, iface), nil
}

// Apply switches the live configuration to p. Partially applied batches are
// not rolled back.
func (a *Applier) Apply(ctx context.Context, p *model.Profile) (*Result, error) {
	if err := a.check(p); err != nil {
		return nil, err
	}
	log := util.WithProfile(p.ID, p.Name)

	if !a.ch.CheckPrivilege(ctx) {
		return nil, util.ErrNoPrivilege
	}

	iface := a.prober.ResolveInterface(ctx)
	steps := a.Plan(p, iface)
	log.WithField("interface", iface).Debugf("applying %d commands", len(steps))

	br := a.ch.RunPrivilegedBatch(ctx, steps)
	if failed := br.CriticalFailure(); failed != nil || !br.Success() {
		return nil, &CommandError{
			Profile:  p.Name,
			ExitCode: br.ExitCode,
			Stderr:   br.Stderr,
			Failed:   failed,
			Steps:    br.Steps,
		}
	}
	for _, s := range br.FailedSteps() {
		log.Warnf("step %s exited %d", s.Name, s.ExitCode)
	}

	a.sleep(ctx, a.opts.SettleDelay)

	res := &Result{Interface: iface, Gateway: p.Gateway, Steps: br.Steps}
	if p.UseDHCP {
		res.Gateway = a.leaseGateway(ctx, iface)
	}

	if res.Gateway == "" {
		res.Message = fmt.Sprintf("switched to %q (no gateway to verify)", p.Name)
		return res, nil
	}
	rtt, err := a.prober.Reach(ctx, res.Gateway, 1, true)
	if err != nil {
		log.WithField("gateway", res.Gateway).Warnf("verification failed: %v", err)
		res.Message = fmt.Sprintf("switched to %q (gateway did not answer ping)", p.Name)
		return res, nil
	}
	res.Reachable = true
	res.RTT = rtt
	res.Message = fmt.Sprintf("switched to %q", p.Name)
	return res, nil
}

func (a *Applier) check(p *model.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !chainRe.MatchString(a.opts.DNSChain) {
		return fmt.Errorf("dns chain %q: %w", a.opts.DNSChain, util.ErrInvalidConfig)
	}
	return nil
}

// leaseGateway reads the gateway DHCP installed in the interface table.
func (a *Applier) leaseGateway(ctx context.Context, iface string) string {
	res := a.ch.RunPrivileged(ctx, "ip route show table "+iface)
	if !res.Success() {
		return ""
	}
	gw, _ := probe.ParseDefaultGateway(res.Stdout)
	return gw
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
