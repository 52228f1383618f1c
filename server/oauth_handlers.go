package server

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/isotammi/qondor-cloudapp/authstate"
	"github.com/isotammi/qondor-cloudapp/eloqua"
	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/tokens"
)

// OAuthCallbackHandler finishes the authorization-code flow started by
// the install webhook. The state parameter carries the install session
// id; the session in turn carries the install id and the Eloqua callback
// URL the browser is sent back to. An unknown or expired session is a
// 400, since the only way to retry is to restart the install.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := s.withHTTPClient(r.Context())
		query := r.URL.Query()

		state, err := authstate.Parse(query.Get("state"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid state")
			return
		}
		sess, err := s.sessions.Load(ctx, state.SessionID)
		if err != nil {
			s.log.Warn().Err(err).Msg("oauth callback: no session for state")
			writeError(w, http.StatusBadRequest, "Session expired")
			return
		}
		installID := sess.Data["install_id"]
		redirectURL := sess.Data["redirect_url"]

		cfg := s.oauthConfig()
		token, err := cfg.Exchange(ctx, query.Get("code"))
		if err != nil {
			s.log.Error().Err(err).Str("install_id", installID).Msg("oauth callback: code exchange failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		tm := tokens.NewManager(s.installs, s.config.GetClientID(), installID)
		if err := tm.Set(ctx, token); err != nil {
			s.log.Error().Err(err).Str("install_id", installID).Msg("oauth callback: could not persist token")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		hc := oauth2.NewClient(ctx, cfg.TokenSource(ctx, token))
		identity, err := eloqua.FetchIdentity(ctx, hc, s.config.GetIdentityEndpoint())
		if err != nil {
			s.log.Error().Err(err).Str("install_id", installID).Msg("oauth callback: identity fetch failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		err = s.installs.SetBaseURL(ctx, s.config.GetClientID(), installID, identity.URLs.Base)
		if err != nil {
			if apperr.Is(err, apperr.ErrInstallationNotFound) {
				// The install webhook wrote this record moments ago. If
				// it is gone the store is unhealthy, not the caller.
				s.log.Error().Str("install_id", installID).
					Msg("oauth callback: installation record vanished between install and callback")
			} else {
				s.log.Error().Err(err).Str("install_id", installID).Msg("oauth callback: could not save base url")
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if s.beforeRedirect != nil {
			if err := s.beforeRedirect(ctx, installID); err != nil {
				s.log.Error().Err(err).Str("install_id", installID).Msg("oauth callback: before-redirect hook failed")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}

		s.log.Info().Str("install_id", installID).Msg("oauth callback complete, returning to eloqua")
		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
	}
}

// eloquaClient builds a client against one installation's Eloqua REST
// base URL, with a token source that refreshes and re-persists the
// installation's OAuth token as needed.
func (s *Server) eloquaClient(ctx context.Context, installID string) (*eloqua.Client, error) {
	appID := s.config.GetClientID()
	inst, err := s.installs.Get(ctx, appID, installID)
	if err != nil {
		return nil, err
	}

	tm := tokens.NewManager(s.installs, appID, installID)
	source, err := tm.Source(ctx, s.oauthConfig())
	if err != nil {
		return nil, err
	}
	return eloqua.NewClient(oauth2.NewClient(ctx, source), inst.BaseURL, s.log), nil
}
