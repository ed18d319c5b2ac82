package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/starsdaisuki/stargate/pkg/cli"
	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current connection and matched profile",
	Long: `Probe the device and show its wireless connection: interface, SSID,
address, gateway, DNS, signal, link speed, and the profile it matches.

Examples:
  stargate status
  stargate status --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, st, err := newCoordinator(ctx, nil, nil)
		if err != nil {
			return err
		}
		if !c.Init(ctx) {
			return util.ErrNoPrivilege
		}
		snap := c.Snapshot()

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(snap)
		}

		name := "-"
		if snap.MatchedProfileID != "" {
			if p, err := st.Get(ctx, snap.MatchedProfileID); err == nil {
				name = p.Name
			}
		}
		printSnapshot(snap, name)
		return nil
	},
}

func printSnapshot(s model.Snapshot, profileName string) {
	if !s.Connected {
		fmt.Println(red("Disconnected") + " (no IPv4 address)")
		return
	}
	fmt.Printf("%s %s\n\n", bold("Connected"), cli.SignalBars(s.SignalStrength))

	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Printf("  %s %s\n", cli.DotPad(label, 14), value)
	}
	row("Interface", s.Interface)
	row("SSID", s.SSID)
	row("Address", fmt.Sprintf("%s/%d", s.IPAddress, s.PrefixLength))
	row("Netmask", s.SubnetMask)
	row("Gateway", s.Gateway)
	row("DNS", joinNonEmpty(s.DNS1, s.DNS2))
	if s.SignalDBm != 0 {
		row("Signal", fmt.Sprintf("%d%% (%d dBm)", s.SignalStrength, s.SignalDBm))
	}
	if s.LinkSpeed != 0 {
		row("Link speed", fmt.Sprintf("%d Mbps", s.LinkSpeed))
	}
	row("Profile", profileName)
}

func joinNonEmpty(vals ...string) string {
	out := ""
	for _, v := range vals {
		if v == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += v
	}
	return out
}

var pingCmd = &cobra.Command{
	Use:   "ping <host>",
	Short: "Test reachability of a host",
	Long: `Send three echo requests to host from an unprivileged shell and print
the average round-trip time.

Examples:
  stargate ping 192.168.50.3
  stargate ping example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, _, err := newCoordinator(ctx, nil, nil)
		if err != nil {
			return err
		}
		rtt, err := c.Prober().Ping(ctx, args[0])
		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"host":      args[0],
				"reachable": err == nil,
				"rtt":       rtt,
			})
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s avg %s\n", green("reachable"), args[0], rtt)
		return nil
	},
}
