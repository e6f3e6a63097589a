package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/config"
	"github.com/yllada/campus-vpn/history"
	"github.com/yllada/campus-vpn/keyring"
	"github.com/yllada/campus-vpn/session"
	"github.com/yllada/campus-vpn/tui"
)

var cookieCmd = &cobra.Command{
	Use:   "cookie [gateway]",
	Short: "Log in and print the session cookie without connecting",
	Long: `cookie runs the browser login alone and prints the resulting session
cookie as NAME=VALUE. Useful for driving openconnect by hand or from
scripts. The cookie is also saved for the next connect.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gw, err := resolveGateway(cfg, args)
		if err != nil {
			return err
		}
		mode, err := loginMode(cfg)
		if err != nil {
			return err
		}

		relay := session.NewPromptRelay()
		driver := buildDriver(cfg, gw, relay)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		go tui.ServePrompts(ctx, relay)

		cookie, err := driver.Run(ctx, mode)
		if errors.Is(err, common.ErrLoginCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := keyring.NewCookieStore().SaveCookie(gw.Name, cookie); err != nil {
			common.LogWarn("Saving cookie: %v", err)
		}
		fmt.Printf("%s=%s\n", cookie.Name, cookie.Value)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the browser profile and stored session cookies",
	Long: `clean wipes the dedicated browser profile (cached portal logins) and
drops the session cookies stored in the system keyring. The next connect
starts from a fresh sign-in.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := common.WipeBrowserProfile(); err != nil {
			return common.WrapError(err, "wiping browser profile")
		}
		fmt.Println("✓ Browser profile removed")

		store := keyring.NewCookieStore()
		names := gatewayNames(cfg)
		for _, name := range names {
			if err := store.PurgeCookie(name); err != nil {
				common.LogDebug("Purging cookie for %s: %v", name, err)
				continue
			}
			fmt.Printf("✓ Session cookie for %s removed\n", name)
		}
		if len(names) == 0 {
			fmt.Println("No gateways configured, no cookies to remove.")
		}
		return nil
	},
}

// gatewayNames collects every name a cookie may be stored under: the
// configured profiles plus the ad-hoc host from gateway_url.
func gatewayNames(cfg *config.Config) []string {
	var names []string
	if gm, err := config.NewGatewayManager(); err == nil {
		for _, gw := range gm.List() {
			names = append(names, gw.Name)
		}
	}
	if cfg.GatewayURL != "" {
		if gw, err := config.AdHocGateway(cfg.GatewayURL); err == nil {
			names = append(names, gw.Name)
		}
	}
	return names
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Manage gateway profiles",
}

var (
	flagGwURL       string
	flagGwUsername  string
	flagGwCookie    string
	flagGwInterface string
	flagGwProtocol  string
	flagGwUserAgent string
)

var gatewayAddCmd = &cobra.Command{
	Use:   "add NAME URL",
	Short: "Add a gateway profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gm, err := config.NewGatewayManager()
		if err != nil {
			return err
		}
		gw := &config.Gateway{
			Name:       args[0],
			URL:        args[1],
			Username:   flagGwUsername,
			CookieName: flagGwCookie,
			Interface:  flagGwInterface,
			Protocol:   flagGwProtocol,
			UserAgent:  flagGwUserAgent,
		}
		if err := gm.Add(gw); err != nil {
			return err
		}
		fmt.Printf("✓ Gateway %s added\n", gw.Name)
		return nil
	},
}

var gatewaySetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Change fields of a gateway profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gm, err := config.NewGatewayManager()
		if err != nil {
			return err
		}
		gw, err := gm.Get(args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("url") {
			gw.URL = flagGwURL
			// The cookie domain follows the URL unless set by hand.
			gw.CookieDomain = ""
		}
		if cmd.Flags().Changed("username") {
			gw.Username = flagGwUsername
		}
		if cmd.Flags().Changed("cookie-name") {
			gw.CookieName = flagGwCookie
		}
		if cmd.Flags().Changed("interface") {
			gw.Interface = flagGwInterface
		}
		if cmd.Flags().Changed("protocol") {
			gw.Protocol = flagGwProtocol
		}
		if cmd.Flags().Changed("user-agent") {
			gw.UserAgent = flagGwUserAgent
		}
		if err := gm.Update(gw); err != nil {
			return err
		}
		fmt.Printf("✓ Gateway %s updated\n", gw.Name)
		return nil
	},
}

var gatewayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured gateways",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gm, err := config.NewGatewayManager()
		if err != nil {
			return err
		}
		gateways := gm.List()
		if len(gateways) == 0 {
			fmt.Println("No gateways configured.")
			fmt.Println("Add one with: campus-vpn gateway add NAME URL")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tURL\tUSERNAME\tLAST USED")
		fmt.Fprintln(w, "----\t---\t--------\t---------")
		for _, gw := range gateways {
			name := gw.Name
			if gw.Name == cfg.DefaultGateway {
				name += " *"
			}
			username := gw.Username
			if username == "" {
				username = "-"
			}
			lastUsed := "never"
			if !gw.LastUsed.IsZero() {
				lastUsed = gw.LastUsed.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, gw.URL, username, lastUsed)
		}
		w.Flush()
		return nil
	},
}

var gatewayRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a gateway profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gm, err := config.NewGatewayManager()
		if err != nil {
			return err
		}
		if err := gm.Remove(args[0]); err != nil {
			return err
		}
		if err := keyring.NewCookieStore().PurgeCookie(args[0]); err != nil {
			common.LogDebug("Purging cookie for %s: %v", args[0], err)
		}
		fmt.Printf("✓ Gateway %s removed\n", args[0])
		return nil
	},
}

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent VPN sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		path, err := historyPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No sessions recorded yet.")
			return nil
		}
		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Recent(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No sessions recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tGATEWAY\tOUTCOME\tDURATION\tDETAIL")
		fmt.Fprintln(w, "----\t-------\t-------\t--------\t------")
		for _, rec := range records {
			outcome := rec.Outcome
			if outcome == "" {
				outcome = "open"
			}
			duration := "-"
			if d := rec.Duration(); d > 0 {
				duration = formatDuration(d)
			}
			detail := rec.Detail
			if detail == "" {
				detail = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.StartedAt.Local().Format("2006-01-02 15:04"),
				rec.Gateway, outcome, duration, detail)
		}
		w.Flush()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", common.AppName, appVersion)
		fmt.Printf("  built:  %s\n", buildTime)
		fmt.Printf("  commit: %s\n", commitSHA)
	},
}

func init() {
	cookieCmd.Flags().StringVarP(&flagMode, "mode", "m", "",
		"Login mode: auto (headless), visual, or manual")
	cookieCmd.Flags().StringVar(&flagURL, "url", "",
		"Log in against this gateway URL without a configured profile")

	gatewayAddCmd.Flags().StringVar(&flagGwUsername, "username", "",
		"Username prefilled into the login form")
	gatewayAddCmd.Flags().StringVar(&flagGwCookie, "cookie-name", "",
		"Session cookie name the gateway sets (default "+common.DefaultCookieName+")")
	gatewayAddCmd.Flags().StringVar(&flagGwInterface, "interface", "",
		"Tunnel interface name passed to openconnect")
	gatewayAddCmd.Flags().StringVar(&flagGwProtocol, "protocol", "",
		"openconnect protocol (default nc)")
	gatewayAddCmd.Flags().StringVar(&flagGwUserAgent, "user-agent", "",
		"Browser user agent for this gateway's identity provider")
	gatewaySetCmd.Flags().StringVar(&flagGwURL, "url", "",
		"Gateway address")
	gatewaySetCmd.Flags().StringVar(&flagGwUsername, "username", "",
		"Username prefilled into the login form")
	gatewaySetCmd.Flags().StringVar(&flagGwCookie, "cookie-name", "",
		"Session cookie name the gateway sets")
	gatewaySetCmd.Flags().StringVar(&flagGwInterface, "interface", "",
		"Tunnel interface name passed to openconnect")
	gatewaySetCmd.Flags().StringVar(&flagGwProtocol, "protocol", "",
		"openconnect protocol")
	gatewaySetCmd.Flags().StringVar(&flagGwUserAgent, "user-agent", "",
		"Browser user agent for this gateway's identity provider")
	gatewayCmd.AddCommand(gatewayAddCmd)
	gatewayCmd.AddCommand(gatewaySetCmd)
	gatewayCmd.AddCommand(gatewayListCmd)
	gatewayCmd.AddCommand(gatewayRemoveCmd)

	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20,
		"Show at most this many sessions")
}

// formatDuration renders a duration the way humans read uptimes.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
