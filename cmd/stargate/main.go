// Stargate - wireless egress profile switcher
//
// Switches a rooted device between gateway/DNS profiles by rewriting the
// interface route table, the system DNS properties, and an iptables DNS
// redirect chain in one root shell session.
//
// Examples:
//
//	stargate status                      # Current connection and matched profile
//	stargate profile add --name side --gateway 192.168.50.3
//	stargate switch side --dry-run       # Show the commands without running them
//	stargate switch side                 # Apply and verify
//	stargate --transport ssh --ssh-host 10.0.0.7 status
//	stargate watch --interval 5s --metrics-addr :9105
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/starsdaisuki/stargate/pkg/apply"
	"github.com/starsdaisuki/stargate/pkg/audit"
	"github.com/starsdaisuki/stargate/pkg/cli"
	"github.com/starsdaisuki/stargate/pkg/metrics"
	"github.com/starsdaisuki/stargate/pkg/probe"
	"github.com/starsdaisuki/stargate/pkg/settings"
	"github.com/starsdaisuki/stargate/pkg/shell"
	"github.com/starsdaisuki/stargate/pkg/store"
	"github.com/starsdaisuki/stargate/pkg/switcher"
	"github.com/starsdaisuki/stargate/pkg/util"
	"github.com/starsdaisuki/stargate/pkg/version"
)

// App holds global CLI state resolved once in PersistentPreRunE.
type App struct {
	// Global option flags
	verbose    bool
	logJSON    bool
	jsonOutput bool
	noColor    bool

	// Transport overrides
	transport string
	sshHost   string
	sshPort   int
	sshUser   string
	sshKey    string

	settings *settings.Settings
	closers  []io.Closer
}

var app = &App{}

func main() {
	err := rootCmd.Execute()
	app.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "stargate",
	Short:             "Wireless egress profile switcher",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Stargate switches a rooted device between egress profiles.

A profile names a gateway and DNS servers. Switching replaces the default
route in the interface's routing table, sets the system DNS properties, and
redirects DNS traffic through an iptables nat chain, all in one root shell.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case app.verbose:
			util.SetLogLevel("debug")
		default:
			util.SetLogLevel("warn")
		}
		if app.logJSON {
			util.SetJSONFormat()
		}
		if app.noColor {
			cli.SetColor(false)
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		auditLogger, err := audit.NewFileLogger(app.settings.GetAuditLog(), audit.RotationConfig{
			MaxSize:    app.settings.AuditMaxSize(),
			MaxBackups: app.settings.GetAuditMaxBackups(),
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
			app.closers = append(app.closers, auditLogger)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVar(&app.logJSON, "log-json", false, "Log in JSON format")
	flags.BoolVar(&app.jsonOutput, "json", false, "JSON output")
	flags.BoolVar(&app.noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&app.transport, "transport", "", "Command transport: local or ssh")
	flags.StringVar(&app.sshHost, "ssh-host", "", "Device address for the ssh transport")
	flags.IntVar(&app.sshPort, "ssh-port", 0, "SSH port")
	flags.StringVar(&app.sshUser, "ssh-user", "", "SSH user")
	flags.StringVar(&app.sshKey, "ssh-key", "", "SSH private key file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "profiles", Title: "Profile Management:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{statusCmd, switchCmd, pingCmd, watchCmd, diagCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	profileCmd.GroupID = "profiles"
	rootCmd.AddCommand(profileCmd)
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("stargate " + version.Info())
	},
}

// ============================================================================
// Wiring Helpers
// ============================================================================

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			util.Debugf("close: %v", err)
		}
	}
	a.closers = nil
}

// openStore opens the configured profile store.
func openStore(ctx context.Context) (store.Store, error) {
	s := app.settings
	st, err := store.Open(ctx, store.Config{
		Backend:       s.GetStoreBackend(),
		Path:          s.GetStorePath(),
		RedisAddr:     s.GetRedisAddr(),
		RedisDB:       s.RedisDB,
		RedisPassword: s.RedisPassword,
	})
	if err != nil {
		return nil, err
	}
	if c, ok := st.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}
	return st, nil
}

// transportName resolves the --transport flag against settings.
func transportName() string {
	if app.transport != "" {
		return app.transport
	}
	if app.sshHost != "" {
		return settings.TransportSSH
	}
	return app.settings.GetTransport()
}

// targetHost labels audit events with where commands ran.
func targetHost() string {
	if transportName() == settings.TransportSSH {
		return firstNonEmpty(app.sshHost, app.settings.SSHHost)
	}
	return "local"
}

// openChannel builds the command channel for the selected transport. SSH
// without a key file prompts for a password when stdin is a terminal.
func openChannel() (shell.Channel, error) {
	s := app.settings
	opts := shell.Options{SuBinary: s.GetSuBinary()}

	switch transportName() {
	case settings.TransportLocal:
		return shell.NewLocal(opts), nil
	case settings.TransportSSH:
		cfg := shell.SSHConfig{
			Host:           firstNonEmpty(app.sshHost, s.SSHHost),
			Port:           s.GetSSHPort(),
			User:           firstNonEmpty(app.sshUser, s.GetSSHUser()),
			KeyFile:        firstNonEmpty(app.sshKey, s.SSHKeyFile),
			KnownHostsFile: s.SSHKnownHosts,
		}
		if app.sshPort != 0 {
			cfg.Port = app.sshPort
		}
		if cfg.Host == "" {
			return nil, fmt.Errorf("ssh transport requires --ssh-host or 'stargate settings set ssh_host <addr>': %w", util.ErrInvalidConfig)
		}
		if cfg.KeyFile == "" {
			pw, err := readPassword(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
			if err != nil {
				return nil, err
			}
			cfg.Password = pw
		}
		t, err := shell.DialSSH(cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, t)
		return shell.New(t, opts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q: %w", transportName(), util.ErrInvalidConfig)
	}
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("ssh password required but stdin is not a terminal; set ssh_key_file")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

func probeOptions() (probe.Options, error) {
	opts := probe.Options{DefaultInterface: app.settings.Interface}
	if pat := app.settings.WirelessPattern; pat != "" {
		re, err := regexp.Compile(pat)
		if err != nil {
			return opts, fmt.Errorf("wireless_pattern %q: %w", pat, util.ErrInvalidConfig)
		}
		opts.WirelessPattern = re
	}
	return opts, nil
}

// newCoordinator wires channel, store, and options into a switch coordinator.
func newCoordinator(ctx context.Context, rep switcher.Reporter, m *metrics.Collector) (*switcher.Coordinator, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch, err := openChannel()
	if err != nil {
		return nil, nil, err
	}
	popts, err := probeOptions()
	if err != nil {
		return nil, nil, err
	}
	c := switcher.New(ch, st, switcher.Options{
		Probe: popts,
		Apply: apply.Options{
			DNSChain:    app.settings.DNSChain,
			SettleDelay: app.settings.ApplySettle(),
		},
		SettleDelay: app.settings.SwitchSettle(),
		User:        currentUser(),
		Host:        targetHost(),
		Reporter:    rep,
		Metrics:     m,
	})
	return c, st, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings, help, or version command.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Color helpers
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
