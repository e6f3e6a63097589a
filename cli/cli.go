// Package cli implements the campus-vpn command tree. The root command
// connects; subcommands manage gateways, the session cookie, stored state,
// and the connection history.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/config"
	"github.com/yllada/campus-vpn/history"
	"github.com/yllada/campus-vpn/keyring"
	"github.com/yllada/campus-vpn/login"
	"github.com/yllada/campus-vpn/session"
	"github.com/yllada/campus-vpn/vpn"
)

// Build information, set by main from ldflags.
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

// Global flags.
var (
	flagVerbose bool
	flagMode    string
	flagGateway string
	flagURL     string
	flagNoTUI   bool
)

// exitCode is set by commands that want a non-zero exit without an extra
// error line; main applies it after cobra finishes so deferred cleanup runs.
var exitCode = 0

var rootCmd = &cobra.Command{
	Use:   "campus-vpn [gateway]",
	Short: "Connect to the campus VPN through the browser login portal",
	Long: `campus-vpn signs in at the university's web portal (including MFA),
captures the gateway session cookie, and keeps an openconnect tunnel up
until you disconnect.

With no arguments it connects to the default gateway. Name a configured
gateway to connect elsewhere, or point --url at a gateway directly.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConnect,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.Flags().StringVarP(&flagMode, "mode", "m", "",
		"Login mode: auto (headless), visual, or manual")
	rootCmd.Flags().StringVarP(&flagGateway, "gateway", "g", "",
		"Configured gateway name (same as the positional argument)")
	rootCmd.Flags().StringVar(&flagURL, "url", "",
		"Connect to this gateway URL without a configured profile")
	rootCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false,
		"Line output instead of the full-screen status view")

	rootCmd.AddCommand(cookieCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command tree and returns the process exit code.
func Execute(version, built, commit string) int {
	appVersion, buildTime, commitSHA = version, built, commit
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}

// loadConfig reads the settings file and raises the log level when asked.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := common.GetLogger()
	if flagVerbose {
		logger.SetLevel(common.LevelDebug)
	} else {
		logger.SetLevel(cfg.Level())
	}
	return cfg, nil
}

// resolveGateway picks the gateway for this invocation: explicit name,
// ad-hoc URL, configured default, or the only configured profile.
func resolveGateway(cfg *config.Config, args []string) (*config.Gateway, error) {
	name := flagGateway
	if len(args) > 0 {
		name = args[0]
	}
	if flagURL != "" {
		if name != "" {
			return nil, common.WrapError(common.ErrInvalidConfig, "use either a gateway name or --url, not both")
		}
		return config.AdHocGateway(flagURL)
	}
	if name == "" {
		name = cfg.DefaultGateway
	}

	gm, err := config.NewGatewayManager()
	if err != nil {
		return nil, err
	}
	if name != "" {
		return gm.Get(name)
	}
	if cfg.GatewayURL != "" {
		return config.AdHocGateway(cfg.GatewayURL)
	}
	gateways := gm.List()
	if len(gateways) == 1 {
		return gateways[0], nil
	}
	if len(gateways) == 0 {
		return nil, common.WrapError(common.ErrInvalidConfig,
			"no gateway configured; add one with 'campus-vpn gateway add NAME URL'")
	}
	return nil, common.WrapError(common.ErrInvalidConfig,
		"several gateways configured; name one or set default_gateway")
}

// loginMode resolves the effective login mode from the flag or the config.
func loginMode(cfg *config.Config) (common.LoginMode, error) {
	if flagMode == "" {
		return cfg.Mode(), nil
	}
	return common.ParseLoginMode(flagMode)
}

// buildDriver wires the browser login driver for a gateway.
func buildDriver(cfg *config.Config, gw *config.Gateway, relay *session.PromptRelay) *login.Driver {
	profileDir, err := common.GetBrowserProfileDir()
	if err != nil {
		common.LogWarn("Browser profile dir: %v, logins will not be remembered", err)
		profileDir = ""
	}
	userAgent := cfg.UserAgent
	if gw.UserAgent != "" {
		userAgent = gw.UserAgent
	}

	return login.NewDriver(login.DriverConfig{
		GatewayURL:   gw.URL,
		CookieName:   gw.CookieName,
		CookieDomain: gw.CookieDomain,
		Username:     gw.Username,
		Browser: login.BrowserConfig{
			Binary:     cfg.Browser,
			UserAgent:  userAgent,
			ProfileDir: profileDir,
		},
		PollInterval:  cfg.LoginPollInterval.Std(),
		Timeout:       cfg.LoginTimeout.Std(),
		ManualTimeout: cfg.ManualLoginTimeout.Std(),
	}, relay)
}

// buildSession wires the coordinator with its collaborators for a gateway.
func buildSession(cfg *config.Config, gw *config.Gateway, mode common.LoginMode, relay *session.PromptRelay) *session.Coordinator {
	driver := buildDriver(cfg, gw, relay)

	supervisor := vpn.NewSupervisor(vpn.SupervisorConfig{
		GatewayURL:      gw.URL,
		CookieName:      gw.CookieName,
		Interface:       gw.Interface,
		Protocol:        gw.Protocol,
		Openconnect:     cfg.Openconnect,
		Escalation:      cfg.EscalationTool,
		MonitorInterval: cfg.MonitorInterval.Std(),
		Prompter:        relay,
	})

	return session.NewCoordinator(session.Config{
		Gateway:          gw.Name,
		Mode:             mode,
		CookieMaxAge:     cfg.CookieMaxAge.Std(),
		EstablishTimeout: cfg.EstablishTimeout.Std(),
		MaxRelogins:      cfg.MaxRelogin,
	}, driver, supervisor, keyring.NewCookieStore())
}

// historyPath is where the connection history database lives.
func historyPath() (string, error) {
	dataDir, err := common.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, common.HistoryFileName), nil
}

// openHistory opens the history store, returning nil when recording is
// disabled or the database cannot be opened. History is best effort.
func openHistory(cfg *config.Config) *history.Store {
	if !cfg.RecordHistory {
		return nil
	}
	path, err := historyPath()
	if err != nil {
		common.LogWarn("History disabled: %v", err)
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		common.LogWarn("History disabled: %v", err)
		return nil
	}
	return store
}
