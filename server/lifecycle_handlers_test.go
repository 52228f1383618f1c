package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/isotammi/qondor-cloudapp/authstate"
	"github.com/isotammi/qondor-cloudapp/installations"
	"github.com/isotammi/qondor-cloudapp/server"
	"github.com/isotammi/qondor-cloudapp/sessions"
)

func installParams() map[string]string {
	return map[string]string{
		"install_id":   "install-1",
		"app_id":       testClientID,
		"site_id":      "site-1",
		"site_name":    "Acme",
		"user_name":    "Kari Nordmann",
		"callback_url": "https://login.eloqua.com/Apps/Cloud/Admin/Catalog/Return",
	}
}

func TestInstall(t *testing.T) {
	cfg := testConfig{authorizeEndpoint: "https://login.eloqua.com/auth/oauth2/authorize"}

	t.Run("redirects to the authorize endpoint with a session in the state", func(t *testing.T) {
		srv, st := newTestServer(t, cfg)
		rec := doSigned(srv, http.MethodGet, server.RouteLifecycleInstall, installParams())
		require.Equal(t, http.StatusFound, rec.Code)

		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(location.String(), cfg.authorizeEndpoint))
		require.Equal(t, testClientID, location.Query().Get("client_id"))
		require.Equal(t, "https://"+testHost+server.RouteOAuthCallback, location.Query().Get("redirect_uri"))

		state, err := authstate.Parse(location.Query().Get("state"))
		require.NoError(t, err)

		sess, err := sessions.NewManager(st, zerolog.Nop()).Load(context.Background(), state.SessionID)
		require.NoError(t, err)
		require.Equal(t, "install-1", sess.Data["install_id"])
		require.Equal(t, installParams()["callback_url"], sess.Data["redirect_url"])
		require.False(t, sess.IsAuthed)
	})

	t.Run("records the installation", func(t *testing.T) {
		srv, st := newTestServer(t, cfg)
		rec := doSigned(srv, http.MethodGet, server.RouteLifecycleInstall, installParams())
		require.Equal(t, http.StatusFound, rec.Code)

		inst, err := installations.NewRepo(st, zerolog.Nop()).Get(context.Background(), testClientID, "install-1")
		require.NoError(t, err)
		require.Equal(t, "Acme", inst.SiteName)
		require.Equal(t, "Kari Nordmann", inst.UserName)
		require.NotEmpty(t, inst.Name)
	})

	t.Run("rejects missing arguments with a json error list", func(t *testing.T) {
		srv, _ := newTestServer(t, cfg)
		params := installParams()
		delete(params, "install_id")
		delete(params, "callback_url")
		rec := doSigned(srv, http.MethodGet, server.RouteLifecycleInstall, params)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Errors, 2)
		require.Equal(t, "Missing argument 'install_id'", body.Errors[0].Message)
		require.Equal(t, "Missing argument 'callback_url'", body.Errors[1].Message)
	})

	t.Run("rejects an unsigned request", func(t *testing.T) {
		srv, _ := newTestServer(t, cfg)
		req := httptest.NewRequest(http.MethodGet,
			"https://"+testHost+signedURL(server.RouteLifecycleInstall, installParams()), nil)
		// No signature added.
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a tampered install id", func(t *testing.T) {
		srv, _ := newTestServer(t, cfg)
		req := httptest.NewRequest(http.MethodGet,
			"https://"+testHost+signedURL(server.RouteLifecycleInstall, installParams()), nil)
		signRequest(req)
		query := req.URL.Query()
		query.Set("install_id", "someone-else")
		req.URL.RawQuery = query.Encode()

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUninstall(t *testing.T) {
	cfg := testConfig{}

	t.Run("removes the installation once", func(t *testing.T) {
		srv, st := newTestServer(t, cfg)
		repo := installations.NewRepo(st, zerolog.Nop())
		require.NoError(t, repo.Upsert(context.Background(), installations.Installation{
			AppID:     testClientID,
			InstallID: "install-1",
		}))

		params := map[string]string{"app_id": testClientID, "install_id": "install-1"}
		rec := doSigned(srv, http.MethodPost, server.RouteLifecycleUninstall, params)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doSigned(srv, http.MethodPost, server.RouteLifecycleUninstall, params)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStatus(t *testing.T) {
	t.Run("answers a signed poll", func(t *testing.T) {
		srv, _ := newTestServer(t, testConfig{})
		rec := doSigned(srv, http.MethodGet, server.RouteLifecycleStatus, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "OK", rec.Body.String())
	})

	t.Run("rejects an unsigned poll", func(t *testing.T) {
		srv, _ := newTestServer(t, testConfig{})
		req := httptest.NewRequest(http.MethodGet, "https://"+testHost+server.RouteLifecycleStatus, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
