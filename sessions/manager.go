package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
)

const defaultTTL = time.Hour

// Manager creates, resolves and expires sessions against the document
// store. One active session per client: forcing a fresh session deletes
// the record the binding currently points at.
type Manager struct {
	store   store.Store
	ttl     time.Duration
	log     zerolog.Logger
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithNowFunc sets the clock (for expiry tests).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(s store.Store, log zerolog.Logger, options ...ManagerOption) *Manager {
	m := &Manager{
		store:   s,
		ttl:     defaultTTL,
		log:     log,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Insert stores a new session record that is not bound to any client.
// The install webhook uses this to stash install context for the OAuth
// callback, which looks the session up by the raw id inside the state
// token.
func (m *Manager) Insert(ctx context.Context, data map[string]string, isAuthed bool, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	if data == nil {
		data = map[string]string{}
	}
	sess := Session{
		Data:      data,
		IsAuthed:  isAuthed,
		ExpiresIn: int64(ttl / time.Second),
		ExpiresAt: m.nowFunc().Add(ttl),
	}
	id, err := m.store.Insert(ctx, store.Sessions, sess, ttl)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.Insert] store insert")
	}
	sess.ID = id
	return sess, nil
}

// Create forces a fresh session for the client behind b. Any session the
// binding currently points at is deleted first, then the new record is
// inserted with the default TTL and bound.
func (m *Manager) Create(ctx context.Context, b Binding, data map[string]string, isAuthed bool) (Session, error) {
	if id, ok := b.SessionID(); ok {
		if _, err := m.store.Delete(ctx, store.Sessions, id); err != nil {
			return Session{}, errors.Wrap(err, "[Manager.Create] delete existing session")
		}
		m.log.Debug().Str("session_id", id).Msg("deleted existing session")
	}

	sess, err := m.Insert(ctx, data, isAuthed, m.ttl)
	if err != nil {
		return Session{}, err
	}
	b.Bind(sess.ID, sess.ExpiresAt)
	return sess, nil
}

// Resolve loads the session bound to the client. It fails with
// ErrSessionNotFound when no id is bound, and with ErrSessionExpired when
// the binding's cached expiry has passed or the store no longer holds the
// record. On success the store record's expiry slides forward and the
// binding's cached expiry is re-stamped.
func (m *Manager) Resolve(ctx context.Context, b Binding) (Session, error) {
	id, ok := b.SessionID()
	if !ok {
		return Session{}, apperr.ErrSessionNotFound
	}

	if expiry, ok := b.CachedExpiry(); ok && !m.nowFunc().Before(expiry) {
		b.Clear()
		return Session{}, apperr.ErrSessionExpired
	}

	sess, err := m.Load(ctx, id)
	if apperr.Is(err, apperr.ErrSessionNotFound) {
		// An id was bound, so the record existed once: expired.
		b.Clear()
		return Session{}, apperr.ErrSessionExpired
	}
	if err != nil {
		return Session{}, err
	}

	b.Bind(sess.ID, sess.ExpiresAt)
	return sess, nil
}

// Load reads a session by raw id, sliding its expiry.
func (m *Manager) Load(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := m.store.Get(ctx, store.Sessions, id, &sess, true)
	if apperr.Is(err, apperr.ErrNotFound) {
		return Session{}, apperr.ErrSessionNotFound
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.Load] store get")
	}
	sess.ID = id
	sess.ExpiresAt = m.nowFunc().Add(time.Duration(sess.ExpiresIn) * time.Second)
	return sess, nil
}

// Put sets a key in the session's data and re-persists the whole record,
// re-stamping its expiry. Fails with ErrSessionExpired when the record
// expired between read and write. Last writer wins: no concurrency token
// guards concurrent Puts to the same session.
func (m *Manager) Put(ctx context.Context, sess *Session, key, value string) error {
	if sess.Data == nil {
		sess.Data = map[string]string{}
	}
	sess.Data[key] = value

	ttl := time.Duration(sess.ExpiresIn) * time.Second
	sess.ExpiresAt = m.nowFunc().Add(ttl)
	ok, err := m.store.Replace(ctx, store.Sessions, sess.ID, *sess, ttl)
	if err != nil {
		return errors.Wrap(err, "[Manager.Put] store replace")
	}
	if !ok {
		return apperr.ErrSessionExpired
	}
	return nil
}

// Delete removes a session record.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	return m.store.Delete(ctx, store.Sessions, id)
}
