package vpn

import "testing"

func TestOperstateUp(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{"up\n", true},
		{"down\n", false},
		{"unknown\n", true},
		{"dormant\n", true},
		{"  down  ", false},
		{"", true},
	}

	for _, tt := range tests {
		if got := operstateUp(tt.state); got != tt.want {
			t.Errorf("operstateUp(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

const ifconfigSample = `lo0: flags=8049<UP,LOOPBACK,RUNNING,MULTICAST> mtu 16384
	options=1203<RXCSUM,TXCSUM,TXSTATUS,SW_TIMESTAMP>
	inet 127.0.0.1 netmask 0xff000000
	inet6 ::1 prefixlen 128
en0: flags=8863<UP,BROADCAST,SMART,RUNNING,SIMPLEX,MULTICAST> mtu 1500
	inet 192.168.1.23 netmask 0xffffff00 broadcast 192.168.1.255
utun0: flags=8051<UP,POINTOPOINT,RUNNING,MULTICAST> mtu 2000
	inet6 fe80::1%utun0 prefixlen 64 scopeid 0x14
utun3: flags=8051<UP,POINTOPOINT,RUNNING,MULTICAST> mtu 1400
	inet 10.30.1.77 --> 10.30.1.77 netmask 0xffffffff
`

func TestParseIfconfig(t *testing.T) {
	tests := []struct {
		name  string
		iface string
		want  bool
	}{
		{"prefix match finds utun3", "utun", true},
		{"exact interface with inet", "utun3", true},
		{"interface without inet", "utun0", false},
		{"missing interface", "utun9", false},
		{"unrelated interface", "en0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseIfconfig(ifconfigSample, tt.iface); got != tt.want {
				t.Errorf("parseIfconfig(sample, %q) = %v, want %v", tt.iface, got, tt.want)
			}
		})
	}
}

func TestParseIfconfig_Empty(t *testing.T) {
	if parseIfconfig("", "utun") {
		t.Error("empty output should not report an interface")
	}
}

const netshSample = `
Admin State    State          Type             Interface Name
-------------------------------------------------------------------------
Enabled        Connected      Dedicated        Ethernet
Enabled        Disconnected   Dedicated        Wi-Fi
Enabled        Connected      Dedicated        OpenConnect VPN
`

const netshDisconnectedSample = `
Admin State    State          Type             Interface Name
-------------------------------------------------------------------------
Enabled        Disconnected   Dedicated        OpenConnect VPN
`

func TestParseNetsh(t *testing.T) {
	if !parseNetsh(netshSample, "OpenConnect VPN") {
		t.Error("connected adapter should be reported up")
	}
	if parseNetsh(netshDisconnectedSample, "OpenConnect VPN") {
		t.Error("disconnected adapter should be reported down")
	}
	if parseNetsh(netshSample, "WireGuard") {
		t.Error("missing adapter should be reported down")
	}
	if !parseNetsh(netshSample, "Ethernet") {
		t.Error("connected Ethernet adapter should be reported up")
	}
}

func TestDefaultInterfaceName(t *testing.T) {
	if DefaultInterfaceName() == "" {
		t.Error("DefaultInterfaceName() should never be empty")
	}
}
