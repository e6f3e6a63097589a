package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/session"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SessionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if err := s.Begin(ctx, "s1", "campus", base); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.MarkConnected(ctx, "s1", base.Add(5*time.Second)); err != nil {
		t.Fatalf("MarkConnected failed: %v", err)
	}
	if err := s.Finish(ctx, "s1", "disconnected", "", base.Add(65*time.Second)); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.ID != "s1" || r.Gateway != "campus" || r.Outcome != "disconnected" {
		t.Errorf("record = %+v, want s1/campus/disconnected", r)
	}
	if !r.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, base)
	}
	if r.ConnectedAt == nil || r.EndedAt == nil {
		t.Fatalf("ConnectedAt/EndedAt = %v/%v, want both set", r.ConnectedAt, r.EndedAt)
	}
	if got := r.Duration(); got != time.Minute {
		t.Errorf("Duration = %v, want 1m", got)
	}
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := s.Begin(ctx, id, "campus", base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Begin(%s) failed: %v", id, err)
		}
	}

	records, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "new" || records[1].ID != "mid" {
		t.Errorf("Recent(2) = %v, want [new mid]", ids(records))
	}
}

func TestStore_CloseInterrupted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if err := s.Begin(ctx, "finished", "campus", base); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Finish(ctx, "finished", "disconnected", "", base.Add(time.Minute)); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if err := s.Begin(ctx, "dangling", "campus", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	n, err := s.CloseInterrupted(ctx, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("CloseInterrupted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("closed %d rows, want 1", n)
	}

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	for _, r := range records {
		switch r.ID {
		case "dangling":
			if r.Outcome != "interrupted" || r.EndedAt == nil {
				t.Errorf("dangling row = %+v, want interrupted and ended", r)
			}
		case "finished":
			if r.Outcome != "disconnected" {
				t.Errorf("finished row outcome = %q, must stay disconnected", r.Outcome)
			}
		}
	}
}

func TestStore_Prune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := s.Begin(ctx, id, "campus", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Begin(%s) failed: %v", id, err)
		}
	}

	deleted, err := s.Prune(ctx, 3)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("pruned %d rows, want 2", deleted)
	}

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if got := ids(records); len(got) != 3 || got[0] != "e" || got[2] != "c" {
		t.Errorf("after prune: %v, want [e d c]", got)
	}
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func change(from, to common.SessionState) session.Event {
	return session.Event{From: from, To: to}
}

func TestRecorder_RecordsFullSession(t *testing.T) {
	s := testStore(t)
	rec := NewRecorder(s, "campus")

	// The subscription snapshot must not open a row.
	rec.Observe(change(common.StateIdle, common.StateIdle))
	rec.Observe(change(common.StateIdle, common.StateLoggingIn))
	rec.Observe(change(common.StateLoggingIn, common.StateStartingTunnel))
	rec.Observe(change(common.StateStartingTunnel, common.StateConnected))
	rec.Observe(change(common.StateConnected, common.StateDisconnecting))
	rec.Observe(change(common.StateDisconnecting, common.StateIdle))

	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Gateway != "campus" || r.Outcome != "disconnected" {
		t.Errorf("record = %+v, want campus/disconnected", r)
	}
	if r.ConnectedAt == nil || r.EndedAt == nil {
		t.Errorf("ConnectedAt/EndedAt = %v/%v, want both set", r.ConnectedAt, r.EndedAt)
	}
}

func TestRecorder_FailureCarriesCode(t *testing.T) {
	s := testStore(t)
	rec := NewRecorder(s, "campus")

	rec.Observe(change(common.StateIdle, common.StateLoggingIn))
	rec.Observe(session.Event{
		From:    common.StateLoggingIn,
		To:      common.StateFailed,
		Failure: &common.Failure{Code: common.FailLoginTimeout, Detail: "no cookie after 3m"},
	})

	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Outcome != string(common.FailLoginTimeout) || r.Detail != "no cookie after 3m" {
		t.Errorf("outcome/detail = %q/%q, want login-timeout with detail", r.Outcome, r.Detail)
	}
	if r.ConnectedAt != nil {
		t.Error("a failed login must not carry a connected timestamp")
	}
}

func TestRecorder_CancelledBeforeUp(t *testing.T) {
	s := testStore(t)
	rec := NewRecorder(s, "campus")

	rec.Observe(change(common.StateIdle, common.StateLoggingIn))
	rec.Observe(change(common.StateLoggingIn, common.StateDisconnecting))
	rec.Observe(change(common.StateDisconnecting, common.StateIdle))

	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != "cancelled" {
		t.Errorf("records = %+v, want one cancelled session", records)
	}
}

func TestRecorder_AdoptedConnection(t *testing.T) {
	s := testStore(t)
	rec := NewRecorder(s, "campus")

	// An adopted tunnel jumps straight from Idle to Connected.
	rec.Observe(change(common.StateIdle, common.StateConnected))
	rec.Observe(change(common.StateConnected, common.StateDisconnecting))
	rec.Observe(change(common.StateDisconnecting, common.StateIdle))

	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Outcome != "disconnected" || records[0].ConnectedAt == nil {
		t.Errorf("record = %+v, want disconnected with connected timestamp", records[0])
	}
}

func TestRecorder_RunClosesOpenRowOnShutdown(t *testing.T) {
	s := testStore(t)
	rec := NewRecorder(s, "campus")

	events := make(chan session.Event, 4)
	events <- change(common.StateIdle, common.StateLoggingIn)
	close(events)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the event channel closed")
	}

	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != "interrupted" {
		t.Errorf("records = %+v, want one interrupted session", records)
	}
}
