// Package switcher coordinates profile switches: one at a time, reconciled
// with the profile store, followed by a fresh status snapshot.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starsdaisuki/stargate/pkg/apply"
	"github.com/starsdaisuki/stargate/pkg/audit"
	"github.com/starsdaisuki/stargate/pkg/metrics"
	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/probe"
	"github.com/starsdaisuki/stargate/pkg/shell"
	"github.com/starsdaisuki/stargate/pkg/store"
	"github.com/starsdaisuki/stargate/pkg/util"
)

// DefaultSettleDelay is the pause between a successful switch and the refresh.
const DefaultSettleDelay = 1500 * time.Millisecond

// Options configures a Coordinator.
type Options struct {
	Probe       probe.Options
	Apply       apply.Options
	SettleDelay time.Duration

	// User and Host label audit events.
	User string
	Host string

	Reporter Reporter
	Metrics  *metrics.Collector
}

// Coordinator owns the single-flight switch flag and the cached snapshot.
type Coordinator struct {
	ch      shell.Channel
	store   store.Store
	prober  *probe.Prober
	applier *apply.Applier
	opts    Options

	switching atomic.Bool

	mu   sync.RWMutex
	snap model.Snapshot

	sleep func(context.Context, time.Duration)
	now   func() time.Time
}

// New wires a prober and an applier over ch.
func New(ch shell.Channel, st store.Store, opts Options) *Coordinator {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.Host == "" {
		opts.Host = "local"
	}
	prober := probe.New(ch, opts.Probe)
	return &Coordinator{
		ch:      ch,
		store:   st,
		prober:  prober,
		applier: apply.New(ch, prober, opts.Apply),
		opts:    opts,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Prober returns the coordinator's prober.
func (c *Coordinator) Prober() *probe.Prober { return c.prober }

// Applier returns the coordinator's applier.
func (c *Coordinator) Applier() *apply.Applier { return c.applier }

// Switching reports whether a switch is in flight.
func (c *Coordinator) Switching() bool {
	return c.switching.Load()
}

// Snapshot returns the most recent snapshot published by Refresh.
func (c *Coordinator) Snapshot() model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Init checks root access and, when available, publishes a first snapshot.
func (c *Coordinator) Init(ctx context.Context) bool {
	if !c.ch.CheckPrivilege(ctx) {
		util.Warnf("root shell not available; switching is disabled")
		return false
	}
	c.Refresh(ctx)
	return true
}

// Refresh probes the device, matches the result against stored profiles,
// and publishes it.
func (c *Coordinator) Refresh(ctx context.Context) model.Snapshot {
	snap := c.prober.Probe(ctx)
	if snap.Connected {
		profiles, err := c.store.List(ctx)
		if err != nil {
			util.Warnf("listing profiles for status match: %v", err)
		}
		snap.MatchedProfileID = model.MatchProfile(profiles, snap.Gateway)
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.opts.Metrics.ObserveSnapshot(snap)
	c.opts.Reporter.SnapshotUpdated(snap)
	return snap
}

// Switch applies profile id. It returns false, with no other effect, when
// another switch is already running. Failures are reported in the outcome;
// the active marker only moves on success.
func (c *Coordinator) Switch(ctx context.Context, id string) (model.SwitchOutcome, bool) {
	if !c.switching.CompareAndSwap(false, true) {
		util.WithField("profile_id", id).Debugf("switch already in progress, ignoring")
		c.opts.Metrics.ObserveRejected()
		return model.SwitchOutcome{}, false
	}
	defer c.switching.Store(false)

	start := c.now()
	event := audit.NewEvent(c.opts.User, c.opts.Host, audit.OpSwitch)

	out := c.run(ctx, id, event)
	out.ProfileID = id
	out.Duration = c.now().Sub(start)

	event.WithDuration(out.Duration).WithSteps(out.Steps).WithReachable(out.Reachable)
	if err := audit.Log(event); err != nil {
		util.Warnf("writing audit event: %v", err)
	}
	c.opts.Metrics.ObserveSwitch(out)
	c.opts.Reporter.SwitchCompleted(out)
	return out, true
}

func (c *Coordinator) run(ctx context.Context, id string, event *audit.Event) model.SwitchOutcome {
	p, err := c.store.Get(ctx, id)
	if err != nil {
		event.WithProfile(id, "").WithError(err)
		return model.SwitchOutcome{Message: err.Error()}
	}
	event.WithProfile(p.ID, p.Name)
	log := util.WithProfile(p.ID, p.Name)

	res, err := c.applier.Apply(ctx, p)
	if err != nil {
		log.Warnf("switch failed: %v", err)
		event.WithError(err)
		out := model.SwitchOutcome{Message: err.Error()}
		var cmdErr *apply.CommandError
		if errors.As(err, &cmdErr) {
			out.Steps = cmdErr.Steps
		}
		return out
	}
	event.WithInterface(res.Interface).WithGateway(res.Gateway).WithSuccess(res.Message)

	if err := c.store.SetActive(ctx, p.ID); err != nil {
		log.Warnf("switch applied but active marker not saved: %v", err)
	}

	c.sleep(ctx, c.opts.SettleDelay)
	c.Refresh(ctx)

	log.Infof("%s", res.Message)
	return model.SwitchOutcome{
		Success:   true,
		Message:   res.Message,
		Reachable: res.Reachable,
		Steps:     res.Steps,
	}
}

// DryRun returns the interface and commands a switch to id would use.
func (c *Coordinator) DryRun(ctx context.Context, id string) (*model.Profile, string, []shell.Step, error) {
	p, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, "", nil, err
	}
	iface, steps, err := c.applier.DryRun(ctx, p)
	if err != nil {
		return nil, "", nil, err
	}
	return p, iface, steps, nil
}

// Watch refreshes every interval until ctx is done. Refreshes are skipped
// while a switch is running; the switch publishes its own snapshot.
func (c *Coordinator) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive: %w", util.ErrInvalidConfig)
	}
	c.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.Switching() {
				c.Refresh(ctx)
			}
		}
	}
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
