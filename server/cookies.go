package server

import (
	"net/http"
	"strconv"
	"time"
)

const (
	sessionCookieName = "session_id"
	expiryCookieName  = "session_expires_at"
)

// cookieBinding ties a session to the browser through two cookies: the
// session id and a cached copy of the expiry as a unix timestamp. Eloqua
// embeds the configure page in an iframe, so the cookies must be
// SameSite=None and therefore Secure.
type cookieBinding struct {
	w http.ResponseWriter
	r *http.Request
}

func newCookieBinding(w http.ResponseWriter, r *http.Request) *cookieBinding {
	return &cookieBinding{w: w, r: r}
}

func (b *cookieBinding) SessionID() (string, bool) {
	c, err := b.r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (b *cookieBinding) CachedExpiry() (time.Time, bool) {
	c, err := b.r.Cookie(expiryCookieName)
	if err != nil {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func (b *cookieBinding) Bind(id string, expiresAt time.Time) {
	b.set(sessionCookieName, id, expiresAt)
	b.set(expiryCookieName, strconv.FormatInt(expiresAt.Unix(), 10), expiresAt)
}

func (b *cookieBinding) Clear() {
	b.set(sessionCookieName, "", time.Unix(0, 0))
	b.set(expiryCookieName, "", time.Unix(0, 0))
}

func (b *cookieBinding) set(name, value string, expires time.Time) {
	http.SetCookie(b.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
