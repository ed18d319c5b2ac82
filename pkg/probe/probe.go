// Package probe reads the device's live network state through the command
// channel and turns OS text output into a model.Snapshot.
package probe

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/shell"
	"github.com/starsdaisuki/stargate/pkg/util"
)

const (
	// DefaultInterface is used when neither the route table nor the
	// interface listing names a wireless interface.
	DefaultInterface = "wlan0"
	// DefaultSSID is reported when the SSID cannot be scraped.
	DefaultSSID = "Wi-Fi"
)

// DefaultWirelessPattern matches wireless interface names.
var DefaultWirelessPattern = regexp.MustCompile(`^wlan\d*$`)

var hostRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-]*$`)

// Options tunes interface resolution and reachability probes.
type Options struct {
	WirelessPattern  *regexp.Regexp
	DefaultInterface string
	PingTimeout      int // seconds per echo request, default 2
}

// Prober issues read-only queries and assembles snapshots.
type Prober struct {
	ch   shell.Channel
	opts Options
	now  func() time.Time
}

// New creates a Prober over ch.
func New(ch shell.Channel, opts Options) *Prober {
	if opts.WirelessPattern == nil {
		opts.WirelessPattern = DefaultWirelessPattern
	}
	if opts.DefaultInterface == "" {
		opts.DefaultInterface = DefaultInterface
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2
	}
	return &Prober{ch: ch, opts: opts, now: time.Now}
}

// ResolveInterface finds the active wireless interface: the default route's
// egress device, else the first interface matching the wireless pattern,
// else the configured default. The route table can be empty right after a
// switch, hence the fallbacks.
func (p *Prober) ResolveInterface(ctx context.Context) string {
	if res := p.ch.RunPrivileged(ctx, "ip route show"); res.Success() {
		if dev, ok := ParseDefaultRouteDevice(res.Stdout); ok {
			return dev
		}
	}
	if res := p.ch.RunPrivileged(ctx, "ls /sys/class/net"); res.Success() {
		if dev, ok := ParseWirelessInterface(res.Stdout, p.opts.WirelessPattern); ok {
			return dev
		}
	}
	return p.opts.DefaultInterface
}

// Probe computes a fresh snapshot. Only a missing IPv4 address short-circuits
// (to a disconnected snapshot); every other field degrades to its zero value.
func (p *Prober) Probe(ctx context.Context) model.Snapshot {
	iface := p.ResolveInterface(ctx)
	log := util.WithInterface(iface)

	addrRes := p.ch.RunPrivileged(ctx, "ip -4 addr show dev "+iface)
	ip, prefix, ok := ParseIPv4Address(addrRes.Stdout)
	if !addrRes.Success() || !ok {
		log.Debugf("no IPv4 address, reporting disconnected")
		return model.Disconnected(p.now())
	}

	snap := model.Snapshot{
		Connected:    true,
		Interface:    iface,
		IPAddress:    ip,
		PrefixLength: prefix,
		SubnetMask:   PrefixToMask(prefix),
		SSID:         DefaultSSID,
		ProbedAt:     p.now(),
	}

	// The per-interface table carries the gateway actually in use; the main
	// table's default route can be stale.
	if res := p.ch.RunPrivileged(ctx, "ip route show table "+iface); res.Success() {
		snap.Gateway, _ = ParseDefaultGateway(res.Stdout)
	}

	snap.DNS1 = p.ch.RunPrivileged(ctx, "getprop net.dns1").Stdout
	snap.DNS2 = p.ch.RunPrivileged(ctx, "getprop net.dns2").Stdout

	if res := p.ch.RunPrivileged(ctx, "dumpsys wifi"); res.Success() {
		if ssid, ok := ParseSSID(res.Stdout); ok {
			snap.SSID = ssid
		}
	}

	if res := p.ch.RunPrivileged(ctx, "iw dev "+iface+" link"); res.Success() {
		snap.LinkSpeed, _ = ParseLinkSpeed(res.Stdout)
		if dbm, ok := ParseSignal(res.Stdout); ok {
			snap.SignalDBm = dbm
			snap.SignalStrength = SignalQuality(dbm)
		}
	}

	log.WithField("gateway", snap.Gateway).Debugf("probed %s/%d", snap.IPAddress, snap.PrefixLength)
	return snap
}

// Reach sends count echo requests to host and returns the mean round-trip
// time ("1.234ms"). A non-zero exit or a missing summary line yields
// util.ErrUnreachable.
func (p *Prober) Reach(ctx context.Context, host string, count int, privileged bool) (string, error) {
	if !hostRe.MatchString(host) {
		return "", fmt.Errorf("ping target %q: %w", host, util.ErrInvalidConfig)
	}
	if count <= 0 {
		count = 1
	}
	cmd := fmt.Sprintf("ping -c %d -W %d %s", count, p.opts.PingTimeout, host)

	var res shell.Result
	if privileged {
		res = p.ch.RunPrivileged(ctx, cmd)
	} else {
		res = p.ch.Run(ctx, cmd)
	}
	if !res.Success() {
		return "", fmt.Errorf("%s: %w", host, util.ErrUnreachable)
	}
	avg, ok := ParsePingAverage(res.Stdout)
	if !ok {
		return "", fmt.Errorf("%s: no ping summary: %w", host, util.ErrUnreachable)
	}
	return avg + "ms", nil
}

// Ping is the user-facing reachability test: three unprivileged echo requests.
func (p *Prober) Ping(ctx context.Context, host string) (string, error) {
	return p.Reach(ctx, host, 3, false)
}
