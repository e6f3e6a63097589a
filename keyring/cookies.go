// Package keyring provides secure storage for session cookies.
// This file contains the CookieStore type, the keyring-backed
// implementation of common.CredentialStore.
package keyring

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/yllada/campus-vpn/common"
)

// CookieStore persists session cookies in the keyring, one entry per
// gateway. The cookie value is a credential: anyone holding it can open a
// tunnel without logging in, so entries never touch plain files.
type CookieStore struct{}

// NewCookieStore creates a keyring-backed cookie store.
func NewCookieStore() *CookieStore {
	return &CookieStore{}
}

// cookieKey namespaces cookie entries away from other stored secrets.
func cookieKey(gateway string) string {
	return "cookie/" + strings.ToLower(strings.TrimSpace(gateway))
}

// LoadCookie returns the stored session cookie for a gateway.
func (s *CookieStore) LoadCookie(gateway string) (*common.SessionCookie, error) {
	raw, err := Get(cookieKey(gateway))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.ErrCookieNotFound
		}
		return nil, common.WrapError(err, "failed to read session cookie")
	}

	var cookie common.SessionCookie
	if err := json.Unmarshal([]byte(raw), &cookie); err != nil {
		// A corrupt entry would fail on every run; drop it instead.
		Delete(cookieKey(gateway))
		return nil, common.ErrCookieNotFound
	}
	if cookie.Value == "" {
		return nil, common.ErrCookieNotFound
	}

	return &cookie, nil
}

// SaveCookie stores the session cookie for a gateway.
func (s *CookieStore) SaveCookie(gateway string, cookie *common.SessionCookie) error {
	if cookie == nil || cookie.Value == "" {
		return errors.New("refusing to store an empty session cookie")
	}

	data, err := json.Marshal(cookie)
	if err != nil {
		return common.WrapError(err, "failed to serialize session cookie")
	}

	return Store(cookieKey(gateway), string(data))
}

// PurgeCookie removes any stored cookie for a gateway.
func (s *CookieStore) PurgeCookie(gateway string) error {
	return Delete(cookieKey(gateway))
}
