package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/starsdaisuki/stargate/pkg/apply"
	"github.com/starsdaisuki/stargate/pkg/audit"
	"github.com/starsdaisuki/stargate/pkg/cli"
	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/settings"
	"github.com/starsdaisuki/stargate/pkg/switcher"
	"github.com/starsdaisuki/stargate/pkg/util"
)

var switchDryRun bool

var switchCmd = &cobra.Command{
	Use:   "switch <profile>",
	Short: "Switch to a profile",
	Long: `Apply a profile: replace the default route in the interface table, set
the DNS properties, and redirect DNS through the nat chain. The gateway is
pinged afterwards to verify the switch.

The profile may be given by id or by name.

Examples:
  stargate switch side --dry-run
  stargate switch side`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, st, err := newCoordinator(ctx, nil, nil)
		if err != nil {
			return err
		}
		id, err := resolveProfileID(ctx, st, args[0])
		if err != nil {
			return err
		}

		if switchDryRun {
			p, iface, steps, err := c.DryRun(ctx, id)
			if err != nil {
				return err
			}
			logEvent(audit.NewEvent(currentUser(), targetHost(), audit.OpSwitch).
				WithProfile(p.ID, p.Name).WithInterface(iface).WithDryRun(true).WithSuccess("dry run"))
			if app.jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"profile_id": p.ID, "interface": iface, "steps": steps,
				})
			}
			fmt.Printf("Commands for %s on %s:\n\n", bold(p.Name), iface)
			fmt.Print(apply.Preview(steps))
			fmt.Println("\n" + yellow("DRY-RUN: No changes applied."))
			return nil
		}

		release, err := switcher.LockFile(filepath.Join(settings.Dir(), "switch.lock"))
		if err != nil {
			return err
		}
		defer release()

		out, accepted := c.Switch(ctx, id)
		if !accepted {
			return switcher.ErrSwitchLocked
		}
		if app.jsonOutput {
			if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
				return err
			}
		} else {
			printOutcome(out)
		}
		if !out.Success {
			return fmt.Errorf("switch failed: %w", util.ErrCommandFailed)
		}
		return nil
	},
}

func printOutcome(o model.SwitchOutcome) {
	for _, s := range o.Steps {
		status := cli.OK(!s.Failed())
		if !s.Ran {
			status = yellow("skipped")
		}
		fmt.Printf("  %s %s\n", cli.DotPad(s.Name, 14), status)
	}
	switch {
	case o.Success && o.Reachable:
		fmt.Println(green("✓ ") + o.Message)
	case o.Success:
		fmt.Println(yellow("! ") + o.Message)
	default:
		fmt.Println(red("✗ ") + o.Message)
	}
}

func logEvent(e *audit.Event) {
	if err := audit.Log(e); err != nil {
		util.Warnf("writing audit event: %v", err)
	}
}

func init() {
	switchCmd.Flags().BoolVar(&switchDryRun, "dry-run", false, "Print the commands without running them")
}
