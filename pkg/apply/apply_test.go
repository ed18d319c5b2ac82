package apply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starsdaisuki/stargate/internal/testutil"
	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/probe"
	"github.com/starsdaisuki/stargate/pkg/shell"
	"github.com/starsdaisuki/stargate/pkg/util"
)

const pingReply = `1 packets transmitted, 1 received, 0% packet loss, time 0ms
rtt min/avg/max/mdev = 0.912/0.912/0.912/0.000 ms`

var sideRouter = model.Profile{
	ID:      "side",
	Name:    "Side router",
	Gateway: "192.168.50.3",
	DNS1:    "192.168.50.3",
}

func newApplier(ch *testutil.FakeChannel) *Applier {
	a := New(ch, probe.New(ch, probe.Options{}), Options{})
	a.sleep = func(context.Context, time.Duration) {}
	return a
}

func commands(steps []shell.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Command
	}
	return out
}

func TestPlan_StaticProfileOrder(t *testing.T) {
	want := []string{
		"ip route replace default via 192.168.50.3 dev wlan0 table wlan0",
		"setprop net.dns1 192.168.50.3",
		"iptables -t nat -F stargate_dns 2>/dev/null || true",
		"iptables -t nat -D OUTPUT -j stargate_dns 2>/dev/null || true",
		"iptables -t nat -N stargate_dns 2>/dev/null || true",
		"iptables -t nat -A stargate_dns -p udp --dport 53 -j DNAT --to-destination 192.168.50.3:53",
		"iptables -t nat -A stargate_dns -p tcp --dport 53 -j DNAT --to-destination 192.168.50.3:53",
		"iptables -t nat -A OUTPUT -j stargate_dns",
		"setprop net.dns2 ''",
	}
	got := commands(Plan(&sideRouter, "wlan0", DefaultDNSChain))
	if len(got) != len(want) {
		t.Fatalf("got %d commands, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPlan_FlushPrecedesInserts(t *testing.T) {
	steps := Plan(&sideRouter, "wlan0", "custom_chain")
	idx := map[string]int{}
	for i, s := range steps {
		idx[s.Name] = i
	}
	for _, insert := range []string{StepDNSUDP, StepDNSTCP, StepDNSAttach} {
		if idx[StepDNSFlush] >= idx[insert] {
			t.Errorf("flush at %d must precede %s at %d", idx[StepDNSFlush], insert, idx[insert])
		}
	}
	if idx[StepDNSDetach] >= idx[StepDNSAttach] {
		t.Error("detach must precede attach")
	}
	for _, s := range steps {
		if strings.Contains(s.Command, "iptables") && !strings.Contains(s.Command, "custom_chain") && s.Name != StepDNSAttach {
			t.Errorf("step %s ignores the configured chain: %q", s.Name, s.Command)
		}
	}
}

func TestPlan_Variants(t *testing.T) {
	tests := []struct {
		name      string
		profile   model.Profile
		wantFirst string
		wantNames []string
		wantDNS1  string
		wantDNS2  string
	}{
		{
			name:      "static without dns uses gateway",
			profile:   model.Profile{Name: "x", Gateway: "10.0.0.1"},
			wantNames: []string{StepRoute, StepDNS1, StepDNSFlush, StepDNSDetach, StepDNSCreate, StepDNSUDP, StepDNSTCP, StepDNSAttach, StepDNS2},
			wantDNS1:  "setprop net.dns1 10.0.0.1",
			wantDNS2:  "setprop net.dns2 ''",
		},
		{
			name:      "secondary dns set",
			profile:   model.Profile{Name: "x", Gateway: "10.0.0.1", DNS1: "1.1.1.1", DNS2: "8.8.8.8"},
			wantNames: []string{StepRoute, StepDNS1, StepDNSFlush, StepDNSDetach, StepDNSCreate, StepDNSUDP, StepDNSTCP, StepDNSAttach, StepDNS2},
			wantDNS1:  "setprop net.dns1 1.1.1.1",
			wantDNS2:  "setprop net.dns2 8.8.8.8",
		},
		{
			name:      "dhcp without dns clears redirect",
			profile:   model.Profile{Name: "x", UseDHCP: true},
			wantNames: []string{StepDNSFlush, StepDNSDetach, StepDNS2},
			wantDNS2:  "setprop net.dns2 ''",
		},
		{
			name:      "dhcp with dns redirects but keeps route",
			profile:   model.Profile{Name: "x", UseDHCP: true, DNS1: "9.9.9.9"},
			wantNames: []string{StepDNS1, StepDNSFlush, StepDNSDetach, StepDNSCreate, StepDNSUDP, StepDNSTCP, StepDNSAttach, StepDNS2},
			wantDNS1:  "setprop net.dns1 9.9.9.9",
			wantDNS2:  "setprop net.dns2 ''",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := Plan(&tt.profile, "wlan0", DefaultDNSChain)
			if len(steps) != len(tt.wantNames) {
				t.Fatalf("got %d steps, want %d", len(steps), len(tt.wantNames))
			}
			for i, s := range steps {
				if s.Name != tt.wantNames[i] {
					t.Errorf("step %d = %s, want %s", i, s.Name, tt.wantNames[i])
				}
				if s.Critical != (s.Name == StepRoute) {
					t.Errorf("step %s critical = %v", s.Name, s.Critical)
				}
				switch s.Name {
				case StepDNS1:
					if s.Command != tt.wantDNS1 {
						t.Errorf("dns1 = %q, want %q", s.Command, tt.wantDNS1)
					}
				case StepDNS2:
					if s.Command != tt.wantDNS2 {
						t.Errorf("dns2 = %q, want %q", s.Command, tt.wantDNS2)
					}
				}
			}
		})
	}
}

func TestApply_EndToEnd(t *testing.T) {
	ch := testutil.NewFakeChannel().
		OnOutput("ip route show", "default via 192.168.50.1 dev wlan0 proto dhcp").
		OnOutput("ping -c 1 -W 2 192.168.50.3", pingReply)

	res, err := newApplier(ch).Apply(context.Background(), &sideRouter)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !res.Reachable || res.Message != `switched to "Side router"` || res.RTT != "0.912ms" {
		t.Errorf("Apply() = %+v", res)
	}

	calls := ch.Calls()
	var modes []string
	for _, c := range calls {
		modes = append(modes, c.Mode+" "+c.Command)
	}
	want := []string{"su id", "su ip route show", "batch ", "su ping -c 1 -W 2 192.168.50.3"}
	if strings.Join(modes, "|") != strings.Join(want, "|") {
		t.Errorf("call sequence = %q, want %q", modes, want)
	}

	batches := ch.Batches()
	if got := batches[0][0].Command; got != "ip route replace default via 192.168.50.3 dev wlan0 table wlan0" {
		t.Errorf("first batch command = %q", got)
	}
	if len(res.Steps) != len(batches[0]) {
		t.Errorf("result carries %d step results, want %d", len(res.Steps), len(batches[0]))
	}
}

func TestApply_RouteUsesResolvedInterface(t *testing.T) {
	ch := testutil.NewFakeChannel().
		OnOutput("ip route show", "10.0.0.0/8 dev rmnet0").
		OnOutput("ls /sys/class/net", "lo\nrmnet0\nwlan1").
		OnOutput("ping", pingReply)

	a := newApplier(ch)
	res, err := a.Apply(context.Background(), &sideRouter)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	resolved := probe.New(ch, probe.Options{}).ResolveInterface(context.Background())
	if res.Interface != resolved || resolved != "wlan1" {
		t.Errorf("applied on %q, prober resolves %q", res.Interface, resolved)
	}
	if got := ch.Batches()[0][0].Command; !strings.HasSuffix(got, "dev wlan1 table wlan1") {
		t.Errorf("route step = %q", got)
	}
}

func TestApply_Unreachable(t *testing.T) {
	ch := testutil.NewFakeChannel().
		OnOutput("ip route show", "default via 192.168.50.1 dev wlan0").
		On("ping", shell.Result{ExitCode: 1, Stdout: "1 packets transmitted, 0 received, 100% packet loss"})

	res, err := newApplier(ch).Apply(context.Background(), &sideRouter)
	if err != nil {
		t.Fatalf("unreachable gateway must not fail the switch: %v", err)
	}
	if res.Reachable || res.Message != `switched to "Side router" (gateway did not answer ping)` {
		t.Errorf("Apply() = %+v", res)
	}
}

func TestApply_DHCPVerifiesLeaseGateway(t *testing.T) {
	ch := testutil.NewFakeChannel().
		OnOutput("ip route show", "default via 192.168.50.1 dev wlan0").
		OnOutput("ip route show table wlan0", "default via 192.168.50.1 dev wlan0 proto dhcp").
		OnOutput("ping -c 1 -W 2 192.168.50.1", pingReply)

	p := &model.Profile{ID: "home", Name: "Home", UseDHCP: true, Gateway: "10.9.9.9"}
	res, err := newApplier(ch).Apply(context.Background(), p)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if res.Gateway != "192.168.50.1" || !res.Reachable {
		t.Errorf("DHCP verification used %q (reachable=%v), want lease gateway", res.Gateway, res.Reachable)
	}
	for _, s := range ch.Batches()[0] {
		if s.Name == StepRoute {
			t.Error("DHCP profile must not replace the default route")
		}
	}
}

func TestApply_BatchFailure(t *testing.T) {
	tests := []struct {
		name      string
		exitCode  int
		stderr    string
		failSteps map[string]bool
		wantStep  string
	}{
		{"session exit", 1, "iptables: Permission denied", nil, ""},
		{"critical step", 0, "RTNETLINK answers: Network is unreachable", map[string]bool{StepRoute: true}, StepRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := testutil.NewFakeChannel().OnOutput("ip route show", "default via 192.168.50.1 dev wlan0")
			ch.BatchExitCode = tt.exitCode
			ch.BatchStderr = tt.stderr
			ch.FailSteps = tt.failSteps

			_, err := newApplier(ch).Apply(context.Background(), &sideRouter)
			if !errors.Is(err, util.ErrCommandFailed) {
				t.Fatalf("err = %v, want ErrCommandFailed", err)
			}
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("err is %T, want *CommandError", err)
			}
			if cmdErr.Stderr != tt.stderr || !strings.Contains(err.Error(), tt.stderr) {
				t.Errorf("error does not carry stderr: %v", err)
			}
			if tt.wantStep != "" && (cmdErr.Failed == nil || cmdErr.Failed.Name != tt.wantStep) {
				t.Errorf("Failed = %+v, want step %s", cmdErr.Failed, tt.wantStep)
			}
			for _, c := range ch.Commands() {
				if strings.HasPrefix(c, "ping") {
					t.Error("a failed batch must not be verified")
				}
			}
		})
	}
}

func TestApply_BestEffortStepFailureStillSucceeds(t *testing.T) {
	ch := testutil.NewFakeChannel().
		OnOutput("ip route show", "default via 192.168.50.1 dev wlan0").
		OnOutput("ping", pingReply)
	ch.FailSteps = map[string]bool{StepDNSUDP: true, StepDNS2: true}

	res, err := newApplier(ch).Apply(context.Background(), &sideRouter)
	if err != nil {
		t.Fatalf("best-effort failure should not fail the switch: %v", err)
	}
	if !res.Reachable {
		t.Errorf("Apply() = %+v", res)
	}
}

func TestApply_Refusals(t *testing.T) {
	t.Run("no privilege", func(t *testing.T) {
		ch := testutil.NewFakeChannel()
		ch.Root = false
		_, err := newApplier(ch).Apply(context.Background(), &sideRouter)
		if !errors.Is(err, util.ErrNoPrivilege) {
			t.Fatalf("err = %v, want ErrNoPrivilege", err)
		}
		if len(ch.Batches()) != 0 || len(ch.Commands()) != 1 {
			t.Errorf("only the privilege check may run, got %v", ch.Commands())
		}
	})

	t.Run("invalid profile", func(t *testing.T) {
		ch := testutil.NewFakeChannel()
		bad := sideRouter
		bad.Gateway = "192.168.50.3 && reboot"
		_, err := newApplier(ch).Apply(context.Background(), &bad)
		if !errors.Is(err, util.ErrValidationFailed) {
			t.Fatalf("err = %v, want ErrValidationFailed", err)
		}
		if len(ch.Calls()) != 0 {
			t.Errorf("invalid profile reached the channel: %v", ch.Calls())
		}
	})

	t.Run("invalid chain", func(t *testing.T) {
		ch := testutil.NewFakeChannel()
		a := New(ch, probe.New(ch, probe.Options{}), Options{DNSChain: "x; rm -rf /"})
		_, err := a.Apply(context.Background(), &sideRouter)
		if !errors.Is(err, util.ErrInvalidConfig) {
			t.Fatalf("err = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestDryRun(t *testing.T) {
	ch := testutil.NewFakeChannel().OnOutput("ip route show", "default via 192.168.50.1 dev wlan2")
	iface, steps, err := newApplier(ch).DryRun(context.Background(), &sideRouter)
	if err != nil {
		t.Fatalf("DryRun() error: %v", err)
	}
	if iface != "wlan2" || len(steps) == 0 {
		t.Errorf("DryRun() = %q, %d steps", iface, len(steps))
	}
	if len(ch.Batches()) != 0 {
		t.Error("DryRun must not execute a batch")
	}
	if out := Preview(steps); !strings.Contains(out, "[!] route") {
		t.Errorf("Preview() does not flag the critical step:\n%s", out)
	}
}
