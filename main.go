// Package main is the entry point for campus-vpn, a command-line client for
// university VPN gateways that authenticate through a web portal with MFA.
//
// It drives the portal login in a real browser, captures the session cookie,
// and hands it to openconnect, keeping the tunnel supervised until the user
// disconnects.
//
// Usage:
//
//	campus-vpn [gateway] [flags]
//	campus-vpn gateway add NAME URL
//	campus-vpn cookie
//
// Environment:
//
//	openconnect must be installed; the browser login needs a Chromium-based
//	browser on the system.
package main

import (
	"fmt"
	"os"

	"github.com/yllada/campus-vpn/cli"
	"github.com/yllada/campus-vpn/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	if err := common.InitLogger(common.LogConfig{
		Level:       common.LevelInfo,
		EnableFile:  true,
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	// os.Exit skips defers, so the logger is closed explicitly once the
	// command tree has finished and its own defers have run.
	code := cli.Execute(appVersion, buildTime, commitSHA)
	common.CloseLogger()
	os.Exit(code)
}
