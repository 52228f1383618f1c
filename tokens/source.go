package tokens

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Source returns a TokenSource for the installation's stored token that
// persists every refreshed token back to the Installation record. cfg
// must carry the token endpoint and client credentials; the oauth2
// package sends them as HTTP basic auth on refresh.
func (m *Manager) Source(ctx context.Context, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	token, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, errors.Errorf("[Manager.Source] no token stored for installation %q", m.installID)
	}
	persisting := &persistingSource{
		ctx:  ctx,
		mgr:  m,
		src:  cfg.TokenSource(ctx, token),
		last: token,
	}
	return oauth2.ReuseTokenSource(token, persisting), nil
}

type persistingSource struct {
	ctx  context.Context
	mgr  *Manager
	src  oauth2.TokenSource
	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || token.AccessToken != s.last.AccessToken {
		if err := s.mgr.Set(s.ctx, token); err != nil {
			return nil, err
		}
		s.last = token
	}
	return token, nil
}
