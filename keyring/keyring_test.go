package keyring

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/yllada/campus-vpn/common"
)

// TestMain installs the in-memory keyring mock before the lazy backend
// probe runs, so tests never touch the real system keyring.
func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

func TestStoreGetDelete(t *testing.T) {
	if err := Store("test/alpha", "secret-value"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := Get("test/alpha")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "secret-value" {
		t.Errorf("Get() = %q, want the stored secret", got)
	}

	if err := Delete("test/alpha"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := Get("test/alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete = %v, want ErrNotFound", err)
	}
}

func TestStore_RejectsEmptyInput(t *testing.T) {
	if err := Store("", "secret"); err == nil {
		t.Error("Store() should reject an empty key")
	}
	if err := Store("test/key", ""); err == nil {
		t.Error("Store() should reject an empty secret")
	}
}

func TestDelete_MissingKeyIsNotAnError(t *testing.T) {
	if err := Delete("test/never-stored"); err != nil {
		t.Errorf("Delete() of missing key = %v, want nil", err)
	}
}

func TestExists(t *testing.T) {
	if Exists("test/ghost") {
		t.Error("Exists() should be false for a missing key")
	}

	if err := Store("test/present", "value"); err != nil {
		t.Fatal(err)
	}
	defer Delete("test/present")

	if !Exists("test/present") {
		t.Error("Exists() should be true after Store()")
	}
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := NewCookieStore()
	defer store.PurgeCookie("vpn.example.edu")

	cookie := &common.SessionCookie{
		Name:       "DSID",
		Value:      "0123456789abcdef",
		Domain:     "vpn.example.edu",
		ObtainedAt: time.Now().Truncate(time.Second),
	}

	if err := store.SaveCookie("vpn.example.edu", cookie); err != nil {
		t.Fatalf("SaveCookie() error = %v", err)
	}

	loaded, err := store.LoadCookie("vpn.example.edu")
	if err != nil {
		t.Fatalf("LoadCookie() error = %v", err)
	}

	if loaded.Name != cookie.Name || loaded.Value != cookie.Value || loaded.Domain != cookie.Domain {
		t.Errorf("LoadCookie() = %+v, want the saved cookie", loaded)
	}
	if !loaded.ObtainedAt.Equal(cookie.ObtainedAt) {
		t.Errorf("ObtainedAt = %v, want %v", loaded.ObtainedAt, cookie.ObtainedAt)
	}
}

func TestCookieStore_LoadMissing(t *testing.T) {
	store := NewCookieStore()

	_, err := store.LoadCookie("gateway-without-cookie")
	if !errors.Is(err, common.ErrCookieNotFound) {
		t.Errorf("LoadCookie() = %v, want ErrCookieNotFound", err)
	}
}

func TestCookieStore_PurgeThenLoad(t *testing.T) {
	store := NewCookieStore()

	cookie := &common.SessionCookie{
		Name:       "DSID",
		Value:      "to-be-purged",
		Domain:     "vpn.example.edu",
		ObtainedAt: time.Now(),
	}
	if err := store.SaveCookie("purge-me", cookie); err != nil {
		t.Fatal(err)
	}

	if err := store.PurgeCookie("purge-me"); err != nil {
		t.Fatalf("PurgeCookie() error = %v", err)
	}

	if _, err := store.LoadCookie("purge-me"); !errors.Is(err, common.ErrCookieNotFound) {
		t.Errorf("LoadCookie() after purge = %v, want ErrCookieNotFound", err)
	}

	// Purging again must stay quiet.
	if err := store.PurgeCookie("purge-me"); err != nil {
		t.Errorf("second PurgeCookie() = %v, want nil", err)
	}
}

func TestCookieStore_RejectsEmptyCookie(t *testing.T) {
	store := NewCookieStore()

	if err := store.SaveCookie("gw", nil); err == nil {
		t.Error("SaveCookie(nil) should fail")
	}
	if err := store.SaveCookie("gw", &common.SessionCookie{Name: "DSID"}); err == nil {
		t.Error("SaveCookie() with empty value should fail")
	}
}

func TestCookieStore_CorruptEntryIsDropped(t *testing.T) {
	if err := Store(cookieKey("corrupt-gw"), "{not json"); err != nil {
		t.Fatal(err)
	}

	store := NewCookieStore()
	if _, err := store.LoadCookie("corrupt-gw"); !errors.Is(err, common.ErrCookieNotFound) {
		t.Errorf("LoadCookie() of corrupt entry = %v, want ErrCookieNotFound", err)
	}

	// The corrupt entry should have been removed.
	if Exists(cookieKey("corrupt-gw")) {
		t.Error("corrupt cookie entry should be deleted on load")
	}
}

func TestCookieStore_GatewayKeyNormalization(t *testing.T) {
	store := NewCookieStore()
	defer store.PurgeCookie("mixed-case")

	cookie := &common.SessionCookie{Name: "DSID", Value: "v", Domain: "d", ObtainedAt: time.Now()}
	if err := store.SaveCookie("Mixed-Case", cookie); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LoadCookie("mixed-case"); err != nil {
		t.Errorf("LoadCookie() with different case = %v, want success", err)
	}
}
