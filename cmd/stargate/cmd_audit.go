package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/starsdaisuki/stargate/pkg/audit"
	"github.com/starsdaisuki/stargate/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	Long: `View the audit log of switches and profile changes.

Examples:
  stargate audit list
  stargate audit list --last 24h --failures
  stargate audit list --op switch --tail 20`,
}

var (
	auditProfile  string
	auditOp       string
	auditSince    string
	auditLimit    int
	auditTail     int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			ProfileID:   auditProfile,
			Operation:   auditOp,
			Limit:       auditLimit,
			Last:        auditTail,
			FailureOnly: auditFailures,
		}
		if auditSince != "" {
			d, err := time.ParseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditSince)
			}
			filter.StartTime = time.Now().Add(-d)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "HOST", "OPERATION", "PROFILE", "STATUS", "DETAIL")
		for _, e := range events {
			status := green("ok")
			switch {
			case e.DryRun:
				status = yellow("dry-run")
			case !e.Success:
				status = red("failed")
			case e.Operation == audit.OpSwitch && !e.Reachable:
				status = yellow("unverified")
			}
			name := e.ProfileName
			if name == "" {
				name = shortID(e.ProfileID)
			}
			detail := e.Message
			if e.Error != "" {
				detail = e.Error
			}
			t.Row(e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.User, e.Host, e.Operation, name, status, detail)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditProfile, "profile", "", "Filter by profile id")
	auditListCmd.Flags().StringVar(&auditOp, "op", "", "Filter by operation (switch, profile.add, ...)")
	auditListCmd.Flags().StringVar(&auditSince, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().IntVar(&auditTail, "tail", 0, "Show only the newest N events")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
