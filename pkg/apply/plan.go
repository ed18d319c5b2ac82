package apply

import (
	"fmt"
	"strings"

	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/shell"
)

// DefaultDNSChain is the nat chain that redirects port 53 to the profile's DNS.
const DefaultDNSChain = "stargate_dns"

// Step names, in plan order.
const (
	StepRoute     = "route"
	StepDNS1      = "dns1"
	StepDNSFlush  = "dns-flush"
	StepDNSDetach = "dns-detach"
	StepDNSCreate = "dns-create"
	StepDNSUDP    = "dns-udp"
	StepDNSTCP    = "dns-tcp"
	StepDNSAttach = "dns-attach"
	StepDNS2      = "dns2"
)

// Plan returns the ordered privileged commands that move iface onto profile p.
// It is pure; p must already be valid.
//
// Only the route replacement is critical. The DNS steps are best-effort: the
// chain housekeeping commands swallow their own errors, and a failed setprop
// leaves the previous DNS in place without undoing the route.
func Plan(p *model.Profile, iface, chain string) []shell.Step {
	var steps []shell.Step

	if !p.UseDHCP {
		steps = append(steps, shell.Step{
			Name:     StepRoute,
			Command:  fmt.Sprintf("ip route replace default via %s dev %s table %s", p.Gateway, iface, iface),
			Critical: true,
		})
	}

	if dns := p.PrimaryDNS(); dns != "" {
		steps = append(steps,
			shell.Step{Name: StepDNS1, Command: "setprop net.dns1 " + dns},
			flushStep(chain),
			detachStep(chain),
			shell.Step{Name: StepDNSCreate, Command: fmt.Sprintf("iptables -t nat -N %s 2>/dev/null || true", chain)},
			shell.Step{Name: StepDNSUDP, Command: dnatCommand(chain, "udp", dns)},
			shell.Step{Name: StepDNSTCP, Command: dnatCommand(chain, "tcp", dns)},
			shell.Step{Name: StepDNSAttach, Command: fmt.Sprintf("iptables -t nat -A OUTPUT -j %s", chain)},
		)
	} else {
		// DHCP without an explicit DNS: drop any redirect left by a previous
		// profile so the lease's resolver is used again.
		steps = append(steps, flushStep(chain), detachStep(chain))
	}

	dns2 := p.SecondaryDNS()
	if dns2 == "" {
		dns2 = "''"
	}
	steps = append(steps, shell.Step{Name: StepDNS2, Command: "setprop net.dns2 " + dns2})

	return steps
}

func flushStep(chain string) shell.Step {
	return shell.Step{Name: StepDNSFlush, Command: fmt.Sprintf("iptables -t nat -F %s 2>/dev/null || true", chain)}
}

func detachStep(chain string) shell.Step {
	return shell.Step{Name: StepDNSDetach, Command: fmt.Sprintf("iptables -t nat -D OUTPUT -j %s 2>/dev/null || true", chain)}
}

func dnatCommand(chain, proto, dns string) string {
	return fmt.Sprintf("iptables -t nat -A %s -p %s --dport 53 -j DNAT --to-destination %s:53", chain, proto, dns)
}

// Preview renders a plan for dry-run output.
func Preview(steps []shell.Step) string {
	if len(steps) == 0 {
		return "No commands"
	}
	var sb strings.Builder
	for i, s := range steps {
		tag := "    "
		if s.Critical {
			tag = "[!] "
		}
		sb.WriteString(fmt.Sprintf("  %2d. %s%-10s %s\n", i+1, tag, s.Name, s.Command))
	}
	return sb.String()
}
