package sessions

import "time"

// Session is a server-side record tied to one browser through a Binding.
// A session read after ExpiresAt behaves as absent; every successful read
// slides ExpiresAt forward by ExpiresIn.
type Session struct {
	ID        string            `json:"-"`
	Data      map[string]string `json:"data"`
	IsAuthed  bool              `json:"is_authed"`
	ExpiresIn int64             `json:"_expires_in"` // seconds
	ExpiresAt time.Time         `json:"_expires_at"`
}

// Binding is the caller's side channel (cookie-equivalent) carrying the
// session id and a locally cached copy of its expiry.
type Binding interface {
	SessionID() (string, bool)
	CachedExpiry() (time.Time, bool)
	Bind(id string, expiresAt time.Time)
	Clear()
}
