package server

import (
	"net/http"

	"github.com/isotammi/qondor-cloudapp/authstate"
	"github.com/isotammi/qondor-cloudapp/installations"
	"github.com/isotammi/qondor-cloudapp/reqfields"
)

// InstallHandler starts the installation flow. It records the
// installation's metadata, parks the install id and Eloqua's callback URL
// in a short-lived session, and bounces the installing user to the Eloqua
// authorize endpoint with the session id threaded through the OAuth
// state.
func (s *Server) InstallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		args := reqfields.Parse(r.URL.Query(), reqfields.App)

		sess, err := s.sessions.Insert(ctx, map[string]string{
			"install_id":   args["install_id"],
			"redirect_url": args["callback_url"],
		}, false, s.config.GetInstallSessionTTL())
		if err != nil {
			s.log.Error().Err(err).Msg("install: could not create session")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		err = s.installs.Upsert(ctx, installations.Installation{
			AppID:       args["app_id"],
			InstallID:   args["install_id"],
			Name:        s.config.GetFriendlyName(),
			SiteID:      args["site_id"],
			SiteName:    args["site_name"],
			UserID:      args["user_id"],
			UserName:    args["user_name"],
			UserCulture: args["user_culture"],
		})
		if err != nil {
			s.log.Error().Err(err).Str("install_id", args["install_id"]).Msg("install: could not save installation")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		state := authstate.New(sess.ID)
		s.log.Info().Str("install_id", args["install_id"]).Str("site_name", args["site_name"]).
			Msg("install started, redirecting to authorize endpoint")
		http.Redirect(w, r, s.oauthConfig().AuthCodeURL(state.String()), http.StatusFound)
	}
}

// UninstallHandler removes the installation record. Eloqua retries
// uninstall webhooks, so a second call for a gone installation is a 400
// rather than a success.
func (s *Server) UninstallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		appID, installID := query.Get("app_id"), query.Get("install_id")

		deleted, err := s.installs.Delete(r.Context(), appID, installID)
		if err != nil {
			s.log.Error().Err(err).Str("install_id", installID).Msg("uninstall failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !deleted {
			writeError(w, http.StatusBadRequest, "Unknown installation")
			return
		}
		s.log.Info().Str("install_id", installID).Msg("uninstalled")
		w.WriteHeader(http.StatusNoContent)
	}
}

// StatusHandler answers Eloqua's signed status poll.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
