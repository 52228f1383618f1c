// Package tokens owns the bearer token of one (app_id, install_id) pair.
// The token lives on the Installation record; the Manager caches it only
// for the duration of one request or flow.
package tokens

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// TokenStore is the slice of the installations repo the Manager needs.
type TokenStore interface {
	GetToken(ctx context.Context, appID, installID string) (*oauth2.Token, error)
	SetToken(ctx context.Context, appID, installID string, token *oauth2.Token) error
}

type Manager struct {
	store     TokenStore
	appID     string
	installID string
	token     *oauth2.Token
}

func NewManager(store TokenStore, appID, installID string) *Manager {
	return &Manager{store: store, appID: appID, installID: installID}
}

// Get lazily loads the token from the Installation record. Returns nil
// when no token has been stored for the installation.
func (m *Manager) Get(ctx context.Context) (*oauth2.Token, error) {
	if m.token != nil {
		return m.token, nil
	}
	token, err := m.store.GetToken(ctx, m.appID, m.installID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Get] load token")
	}
	m.token = token
	return m.token, nil
}

// Set persists the token to the Installation record and updates the local
// cache. Wired as the refresh hook of the outbound OAuth2 client, so a
// refresh performed deep inside an HTTP call transparently persists.
func (m *Manager) Set(ctx context.Context, token *oauth2.Token) error {
	if err := m.store.SetToken(ctx, m.appID, m.installID, token); err != nil {
		return errors.Wrap(err, "[Manager.Set] persist token")
	}
	m.token = token
	return nil
}
