package domain

import "fmt"

// Identity is who a request acts for: an authenticated user, an anonymous
// session, or both right after login.
type Identity struct {
	UserID     int64
	SessionKey string
}

func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

func (i Identity) Valid() bool {
	return i.UserID > 0 || i.SessionKey != ""
}

// Owner returns the identity a cart or order is keyed by; the user wins over the session.
func (i Identity) Owner() Identity {
	if i.Authenticated() {
		return Identity{UserID: i.UserID}
	}
	return Identity{SessionKey: i.SessionKey}
}

// Key is a stable string form used for cache keys and singleflight.
func (i Identity) Key() string {
	if i.Authenticated() {
		return fmt.Sprintf("user:%d", i.UserID)
	}
	return fmt.Sprintf("session:%s", i.SessionKey)
}
