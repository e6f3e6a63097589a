package vpn

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInterfaceUp_SysFS(t *testing.T) {
	orig := sysClassNet
	sysClassNet = t.TempDir()
	defer func() { sysClassNet = orig }()

	if InterfaceUp("campus0") {
		t.Error("missing interface should be down")
	}

	dir := filepath.Join(sysClassNet, "campus0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating interface dir: %v", err)
	}
	if !InterfaceUp("campus0") {
		t.Error("interface without operstate should count as up")
	}

	operstate := filepath.Join(dir, "operstate")
	if err := os.WriteFile(operstate, []byte("down\n"), 0o644); err != nil {
		t.Fatalf("writing operstate: %v", err)
	}
	if InterfaceUp("campus0") {
		t.Error("operstate down should be reported down")
	}

	if err := os.WriteFile(operstate, []byte("up\n"), 0o644); err != nil {
		t.Fatalf("writing operstate: %v", err)
	}
	if !InterfaceUp("campus0") {
		t.Error("operstate up should be reported up")
	}

	// Tunnel devices often report unknown while passing traffic.
	if err := os.WriteFile(operstate, []byte("unknown\n"), 0o644); err != nil {
		t.Fatalf("writing operstate: %v", err)
	}
	if !InterfaceUp("campus0") {
		t.Error("operstate unknown should be reported up")
	}
}
