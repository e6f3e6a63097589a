package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/config"
	"github.com/yllada/campus-vpn/history"
	"github.com/yllada/campus-vpn/instance"
	"github.com/yllada/campus-vpn/notify"
	"github.com/yllada/campus-vpn/session"
	"github.com/yllada/campus-vpn/tui"
)

// teardownGrace bounds how long the post-UI cleanup may take before the
// prompt is handed back with the tunnel possibly still dying.
const teardownGrace = 15 * time.Second

// runConnect is the root command: connect, stay attached, disconnect on
// interrupt or quit.
func runConnect(cmd *cobra.Command, args []string) error {
	lease, err := instance.Acquire()
	if err != nil {
		if errors.Is(err, common.ErrAlreadyRunning) {
			return fmt.Errorf("campus-vpn is already running; disconnect there first")
		}
		return err
	}
	defer lease.Release()

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
	coord := buildSession(cfg, gw, mode, relay)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if store := openHistory(cfg); store != nil {
		defer store.Close()
		if n, err := store.CloseInterrupted(ctx, time.Now()); err != nil {
			common.LogWarn("Closing interrupted history rows: %v", err)
		} else if n > 0 {
			common.LogDebug("Closed %d interrupted history rows", n)
		}
		if n, err := store.Prune(ctx, history.DefaultKeep); err != nil {
			common.LogWarn("Pruning history: %v", err)
		} else if n > 0 {
			common.LogDebug("Pruned %d old history rows", n)
		}
		events, unsubscribe := coord.Subscribe()
		defer unsubscribe()
		go history.NewRecorder(store, gw.Name).Run(ctx, events)
	}

	if cfg.ShowNotifications {
		events, unsubscribe := coord.Subscribe()
		defer unsubscribe()
		go notify.NewNotifier(gw.Name).Run(ctx, events)
	}

	markGatewayUsed(gw)

	// First interrupt asks the coordinator to tear down in order; a second
	// abandons the wait and lets the deferred cancel kill what remains.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		common.LogInfo("Interrupt received, disconnecting")
		if err := coord.Disconnect(); err != nil {
			cancel()
			return
		}
		<-sigCh
		common.LogWarn("Second interrupt, abandoning cleanup")
		cancel()
	}()

	if coord.AdoptExisting() {
		fmt.Println("A tunnel is already up; watching it instead of reconnecting.")
	} else if err := coord.Connect(); err != nil {
		return err
	}

	runUI := tui.Run
	if flagNoTUI {
		runUI = tui.RunPlain
	}
	if err := runUI(ctx, coord, relay, gw.Name); err != nil && ctx.Err() == nil {
		common.LogWarn("Terminal UI: %v", err)
	}

	// The UI can be quit while the session is still live. Do not hand the
	// prompt back until the tunnel is down.
	if st, _ := coord.State(); !st.Resting() {
		if err := coord.Disconnect(); err != nil && !errors.Is(err, common.ErrNotConnected) {
			common.LogWarn("Disconnect: %v", err)
		}
		waitCtx, waitCancel := context.WithTimeout(context.Background(), teardownGrace)
		defer waitCancel()
		if err := coord.Wait(waitCtx); err != nil {
			common.LogWarn("Teardown did not finish: %v", err)
		}
	}

	// Both UI paths have already shown the failure itself.
	if st, failure := coord.State(); st == common.StateFailed && failure != nil {
		if hint := guidance(failure.Code); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		exitCode = 1
	}
	return nil
}

// markGatewayUsed stamps the profile's last-used time. Ad-hoc gateways
// have no profile to stamp.
func markGatewayUsed(gw *config.Gateway) {
	gm, err := config.NewGatewayManager()
	if err != nil {
		return
	}
	if _, err := gm.Get(gw.Name); err != nil {
		return
	}
	if err := gm.MarkUsed(gw.Name); err != nil {
		common.LogDebug("Marking gateway used: %v", err)
	}
}

// guidance maps a failure code to a next step the user can try.
func guidance(code common.FailureCode) string {
	switch code {
	case common.FailBrowserLaunch:
		return "install Chromium or Chrome, or set 'browser' in the config to your binary"
	case common.FailSpawn:
		return "install openconnect (it must be on PATH or set in the config)"
	case common.FailLoginTimeout:
		return "the portal may need interaction; retry with --mode visual"
	case common.FailPageUnrecognized:
		return "the portal layout is not recognized; retry with --mode manual and sign in yourself"
	case common.FailLoginRejected:
		return "check the username in the gateway profile and your password"
	case common.FailCredentialRejected:
		return "the saved session is stale; run 'campus-vpn clean' and connect again"
	case common.FailEstablishTimeout:
		return "openconnect never brought the interface up; check the escalation password and the logs"
	default:
		return ""
	}
}
