package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/starsdaisuki/stargate/pkg/apply"
	"github.com/starsdaisuki/stargate/pkg/cli"
	"github.com/starsdaisuki/stargate/pkg/diag"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Run read-only diagnostics",
	Long: `Check root access, the routing tables, the DNS properties, and the DNS
redirect chain. Nothing is changed on the device.

Examples:
  stargate diag
  stargate --transport ssh --ssh-host 10.0.0.7 diag`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := openChannel()
		if err != nil {
			return err
		}
		popts, err := probeOptions()
		if err != nil {
			return err
		}
		items := diag.RunWith(context.Background(), ch, diag.Options{
			Probe:    popts,
			DNSChain: firstNonEmpty(app.settings.DNSChain, apply.DefaultDNSChain),
		})

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(items)
		}
		for _, it := range items {
			fmt.Printf("%s %s\n", cli.DotPad(it.Title, 28), cli.OK(it.OK()))
			if it.Detail != "" && (app.verbose || !it.OK()) {
				for _, line := range strings.Split(it.Detail, "\n") {
					fmt.Println("    " + cli.Dim(line))
				}
			}
		}
		if n := diag.Failed(items); n > 0 {
			fmt.Printf("\n%s\n", yellow(fmt.Sprintf("%d of %d checks failed", n, len(items))))
		}
		return nil
	},
}
