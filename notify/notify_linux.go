//go:build linux

package notify

import (
	"os/exec"

	"github.com/godbus/dbus/v5"
	"github.com/yllada/campus-vpn/common"
)

// sendDesktop delivers a notification over the session bus, falling back to
// notify-send for setups where the bus is unreachable but a daemon still
// listens on the command line path.
func sendDesktop(summary, body, icon string, urgency Urgency) error {
	if err := sendDBus(summary, body, icon, urgency); err == nil {
		return nil
	} else {
		common.LogDebug("D-Bus notification: %v, trying notify-send", err)
	}
	return sendNotifySend(summary, body, icon, urgency)
}

func sendDBus(summary, body, icon string, urgency Urgency) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}
	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		common.AppName,        // app_name
		uint32(0),             // replaces_id
		icon,                  // app_icon
		summary,               // summary
		body,                  // body
		[]string{},            // actions
		map[string]dbus.Variant{
			"urgency":       dbus.MakeVariant(byte(urgency)),
			"desktop-entry": dbus.MakeVariant(common.AppID),
		},
		int32(5000), // expire_timeout ms
	)
	return call.Err
}

func sendNotifySend(summary, body, icon string, urgency Urgency) error {
	level := "normal"
	switch urgency {
	case UrgencyLow:
		level = "low"
	case UrgencyCritical:
		level = "critical"
	}
	return exec.Command("notify-send",
		"--app-name="+common.AppName,
		"--icon="+icon,
		"--urgency="+level,
		summary,
		body,
	).Run()
}
