package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/session"
)

type sent struct {
	summary string
	body    string
	icon    string
	urgency Urgency
}

func capturing() (*Notifier, *[]sent) {
	var got []sent
	n := NewNotifier("campus")
	n.send = func(summary, body, icon string, urgency Urgency) error {
		got = append(got, sent{summary, body, icon, urgency})
		return nil
	}
	return n, &got
}

func change(from, to common.SessionState) session.Event {
	return session.Event{From: from, To: to}
}

func TestObserve_ConnectAndDisconnect(t *testing.T) {
	n, got := capturing()

	n.Observe(change(common.StateIdle, common.StateLoggingIn))
	n.Observe(change(common.StateLoggingIn, common.StateStartingTunnel))
	n.Observe(change(common.StateStartingTunnel, common.StateConnected))
	n.Observe(change(common.StateConnected, common.StateDisconnecting))
	n.Observe(change(common.StateDisconnecting, common.StateIdle))

	if len(*got) != 2 {
		t.Fatalf("sent %d notifications, want 2 (connected, disconnected)", len(*got))
	}
	first, second := (*got)[0], (*got)[1]
	if first.summary != "VPN Connected" || !strings.Contains(first.body, "campus") {
		t.Errorf("first = %+v, want VPN Connected for campus", first)
	}
	if first.urgency != UrgencyLow {
		t.Errorf("connect urgency = %d, want low", first.urgency)
	}
	if second.summary != "VPN Disconnected" || second.urgency != UrgencyNormal {
		t.Errorf("second = %+v, want VPN Disconnected at normal urgency", second)
	}
}

func TestObserve_CancelledAttemptIsQuiet(t *testing.T) {
	n, got := capturing()

	n.Observe(change(common.StateIdle, common.StateLoggingIn))
	n.Observe(change(common.StateLoggingIn, common.StateDisconnecting))
	n.Observe(change(common.StateDisconnecting, common.StateIdle))

	if len(*got) != 0 {
		t.Errorf("sent %d notifications for a cancelled attempt, want 0", len(*got))
	}
}

func TestObserve_FailureIsCritical(t *testing.T) {
	n, got := capturing()

	n.Observe(change(common.StateIdle, common.StateLoggingIn))
	n.Observe(session.Event{
		From:    common.StateLoggingIn,
		To:      common.StateFailed,
		Failure: &common.Failure{Code: common.FailEstablishTimeout, Detail: "no campus0 interface after 30s"},
	})

	if len(*got) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(*got))
	}
	f := (*got)[0]
	if f.urgency != UrgencyCritical {
		t.Errorf("failure urgency = %d, want critical", f.urgency)
	}
	if !strings.Contains(f.body, string(common.FailEstablishTimeout)) {
		t.Errorf("failure body = %q, want the failure code in it", f.body)
	}
}

func TestObserve_SnapshotIgnored(t *testing.T) {
	n, got := capturing()

	n.Observe(change(common.StateConnected, common.StateConnected))

	if len(*got) != 0 {
		t.Errorf("sent %d notifications for a snapshot event, want 0", len(*got))
	}
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	n, got := capturing()
	events := make(chan session.Event, 2)
	events <- change(common.StateStartingTunnel, common.StateConnected)
	close(events)

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the event channel closed")
	}
	if len(*got) != 1 {
		t.Errorf("sent %d notifications, want 1", len(*got))
	}
}
