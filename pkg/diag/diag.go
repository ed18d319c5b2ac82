// Package diag runs read-only checks against the command channel and reports
// each one as a titled item. Nothing here changes device state.
package diag

import (
	"context"
	"fmt"
	"strings"

	"github.com/starsdaisuki/stargate/pkg/apply"
	"github.com/starsdaisuki/stargate/pkg/probe"
	"github.com/starsdaisuki/stargate/pkg/shell"
)

// Item status values.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// maxDetail bounds the detail text kept for long listings.
const maxDetail = 500

// Item is the result of one diagnostic check.
type Item struct {
	Title  string `json:"title"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the check passed.
func (i Item) OK() bool { return i.Status == StatusOK }

// Options selects the interface pattern and DNS chain to inspect.
type Options struct {
	Probe    probe.Options
	DNSChain string
}

// Run executes every check with default options.
func Run(ctx context.Context, ch shell.Channel) []Item {
	return RunWith(ctx, ch, Options{})
}

// RunWith executes every check in order. A failing check never stops the
// ones after it.
func RunWith(ctx context.Context, ch shell.Channel, opts Options) []Item {
	if opts.DNSChain == "" {
		opts.DNSChain = apply.DefaultDNSChain
	}
	prober := probe.New(ch, opts.Probe)

	items := []Item{
		rootCheck(ctx, ch),
		commandCheck("ip route", ch.Run(ctx, "ip route")),
		commandCheck("ip -4 addr show", ch.Run(ctx, "ip -4 addr show")),
		commandCheck("root: ip route show", ch.RunPrivileged(ctx, "ip route show")),
	}

	iface := prober.ResolveInterface(ctx)
	items = append(items, commandCheck("interface table "+iface, ch.RunPrivileged(ctx, "ip route show table "+iface)))
	items = append(items, dnsCheck(ctx, ch))
	items = append(items, commandCheck("dns chain "+opts.DNSChain, ch.RunPrivileged(ctx, "iptables -t nat -L "+opts.DNSChain+" -n")))
	return items
}

// Failed counts items that did not pass.
func Failed(items []Item) int {
	n := 0
	for _, it := range items {
		if !it.OK() {
			n++
		}
	}
	return n
}

func rootCheck(ctx context.Context, ch shell.Channel) Item {
	res := ch.RunPrivileged(ctx, "id")
	if res.Success() && strings.Contains(res.Stdout, "uid=0") {
		return Item{Title: "root identity", Status: StatusOK, Detail: res.Stdout}
	}
	return Item{
		Title:  "root identity",
		Status: StatusFail,
		Detail: fmt.Sprintf("exit=%d %s", res.ExitCode, strings.TrimSpace(res.Stderr)),
	}
}

func commandCheck(title string, res shell.Result) Item {
	it := Item{Title: title, Status: StatusFail, Detail: res.Stdout}
	if res.Success() {
		it.Status = StatusOK
	}
	if it.Detail == "" {
		it.Detail = res.Stderr
	}
	it.Detail = truncate(strings.TrimSpace(it.Detail))
	return it
}

func dnsCheck(ctx context.Context, ch shell.Channel) Item {
	dns1 := ch.RunPrivileged(ctx, "getprop net.dns1")
	dns2 := ch.RunPrivileged(ctx, "getprop net.dns2")
	it := Item{
		Title:  "dns properties",
		Status: StatusOK,
		Detail: fmt.Sprintf("net.dns1=%s net.dns2=%s", dns1.Stdout, dns2.Stdout),
	}
	if !dns1.Success() {
		it.Status = StatusFail
	}
	return it
}

func truncate(s string) string {
	if len(s) <= maxDetail {
		return s
	}
	return s[:maxDetail] + "..."
}
