package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/starsdaisuki/stargate/pkg/apply"
	"github.com/starsdaisuki/stargate/pkg/audit"
	"github.com/starsdaisuki/stargate/pkg/cli"
	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/store"
	"github.com/starsdaisuki/stargate/pkg/util"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Aliases: []string{"profiles"},
	Short:   "Manage stored profiles",
	Long: `Manage stored egress profiles.

Examples:
  stargate profile list
  stargate profile add --name side --gateway 192.168.50.3 --dns1 192.168.50.3
  stargate profile add --name home --dhcp
  stargate profile edit side --dns2 1.1.1.1
  stargate profile delete side`,
}

// profileFlags backs the add and edit flag sets.
type profileFlags struct {
	name, icon, color             string
	dhcp                          bool
	ip, gateway, mask, dns1, dns2 string
}

func (f *profileFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Display name")
	fs.StringVar(&f.icon, "icon", "", "Icon tag")
	fs.StringVar(&f.color, "color", "", "Color tag")
	fs.BoolVar(&f.dhcp, "dhcp", false, "Keep the DHCP lease gateway; only DNS is applied")
	fs.StringVar(&f.ip, "ip", "", "Expected local address (informational)")
	fs.StringVar(&f.gateway, "gateway", "", "Gateway IPv4 address")
	fs.StringVar(&f.mask, "mask", "", "Subnet mask (default 255.255.255.0)")
	fs.StringVar(&f.dns1, "dns1", "", "Primary DNS (default: the gateway)")
	fs.StringVar(&f.dns2, "dns2", "", "Secondary DNS")
}

// applyTo copies the flags the user set onto p.
func (f *profileFlags) applyTo(fs *pflag.FlagSet, p *model.Profile) {
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("name", &p.Name, f.name)
	set("icon", &p.Icon, f.icon)
	set("color", &p.Color, f.color)
	set("ip", &p.IPAddress, f.ip)
	set("gateway", &p.Gateway, f.gateway)
	set("mask", &p.SubnetMask, f.mask)
	set("dns1", &p.DNS1, f.dns1)
	set("dns2", &p.DNS2, f.dns2)
	if fs.Changed("dhcp") {
		p.UseDHCP = f.dhcp
	}
}

var (
	addFlags  profileFlags
	editFlags profileFlags
)

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		profiles, err := st.List(ctx)
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(profiles)
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles. Add one with 'stargate profile add'.")
			return nil
		}

		t := cli.NewTable("", "ID", "NAME", "MODE", "GATEWAY", "DNS", "LAST USED")
		for _, p := range profiles {
			marker := ""
			if p.IsActive {
				marker = green("*")
			}
			gw := p.Gateway
			if gw == "" {
				gw = "(lease)"
			}
			last := "-"
			if !p.LastUsed.IsZero() {
				last = p.LastUsed.Local().Format("2006-01-02 15:04")
			}
			t.Row(marker, shortID(p.ID), p.Name, p.Mode(), gw, joinNonEmpty(p.PrimaryDNS(), p.SecondaryDNS()), last)
		}
		t.Flush()
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <profile>",
	Short: "Show a profile and the commands a switch would run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		id, err := resolveProfileID(ctx, st, args[0])
		if err != nil {
			return err
		}
		p, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(p)
		}

		fmt.Printf("%s %s\n\n", bold(p.Name), cli.Dim(p.ID))
		row := func(label, value string) {
			if value == "" {
				value = "-"
			}
			fmt.Printf("  %s %s\n", cli.DotPad(label, 14), value)
		}
		row("Mode", p.Mode())
		row("Gateway", p.Gateway)
		row("Netmask", p.Mask())
		row("DNS", joinNonEmpty(p.PrimaryDNS(), p.SecondaryDNS()))
		row("Address", p.IPAddress)
		row("Active", fmt.Sprint(p.IsActive))

		fmt.Println("\nSwitch commands (interface resolved at switch time):")
		fmt.Print(apply.Preview(apply.Plan(p, "<iface>", firstNonEmpty(app.settings.DNSChain, apply.DefaultDNSChain))))
		return nil
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		p := &model.Profile{}
		addFlags.applyTo(cmd.Flags(), p)

		event := audit.NewEvent(currentUser(), "local", audit.OpProfileAdd).WithProfile("", p.Name)
		if err := st.Put(ctx, p); err != nil {
			logEvent(event.WithError(err))
			return err
		}
		logEvent(event.WithProfile(p.ID, p.Name).WithSuccess("profile added"))
		fmt.Printf("Added profile %s (%s)\n", bold(p.Name), p.ID)
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit <profile>",
	Short: "Change fields of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		id, err := resolveProfileID(ctx, st, args[0])
		if err != nil {
			return err
		}
		p, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		editFlags.applyTo(cmd.Flags(), p)

		event := audit.NewEvent(currentUser(), "local", audit.OpProfileEdit).WithProfile(p.ID, p.Name)
		if err := st.Put(ctx, p); err != nil {
			logEvent(event.WithError(err))
			return err
		}
		logEvent(event.WithSuccess("profile updated"))
		fmt.Printf("Updated profile %s\n", bold(p.Name))
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:     "delete <profile>",
	Aliases: []string{"rm"},
	Short:   "Delete a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		id, err := resolveProfileID(ctx, st, args[0])
		if err != nil {
			return err
		}
		event := audit.NewEvent(currentUser(), "local", audit.OpProfileDelete).WithProfile(id, "")
		if err := st.Delete(ctx, id); err != nil {
			logEvent(event.WithError(err))
			return err
		}
		logEvent(event.WithSuccess("profile deleted"))
		fmt.Printf("Deleted profile %s\n", id)
		return nil
	},
}

var profileClearActiveCmd = &cobra.Command{
	Use:   "clear-active",
	Short: "Forget which profile was last applied",
	Long: `Clear the active marker. Status then matches profiles by gateway only.
The device configuration is not changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		event := audit.NewEvent(currentUser(), "local", audit.OpProfileClear)
		if err := st.SetActive(ctx, ""); err != nil {
			logEvent(event.WithError(err))
			return err
		}
		logEvent(event.WithSuccess("active marker cleared"))
		fmt.Println("Active marker cleared.")
		return nil
	},
}

// resolveProfileID accepts an exact id, a unique id prefix, or a
// case-insensitive name.
func resolveProfileID(ctx context.Context, st store.Store, ref string) (string, error) {
	if _, err := st.Get(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, util.ErrNotFound) {
		return "", err
	}

	profiles, err := st.List(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, p := range profiles {
		if strings.EqualFold(p.Name, ref) {
			return p.ID, nil
		}
		if strings.HasPrefix(p.ID, ref) {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", util.NewNotFoundError("profile", ref)
	default:
		return "", fmt.Errorf("profile %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	addFlags.register(profileAddCmd.Flags())
	editFlags.register(profileEditCmd.Flags())
	_ = profileAddCmd.MarkFlagRequired("name")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileEditCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileClearActiveCmd)
}
