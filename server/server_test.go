package server_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/isotammi/qondor-cloudapp/internal/config"
	"github.com/isotammi/qondor-cloudapp/server"
	"github.com/isotammi/qondor-cloudapp/signature"
	"github.com/isotammi/qondor-cloudapp/store/storefake"
)

const (
	testClientID = "consumer-key"
	testSecret   = "shh"
	testHost     = "qondor-app.example"
)

// testConfig satisfies config.Config with local stand-ins for the Eloqua
// and Qondor endpoints. Unset endpoints simply make the handler fail if a
// test unexpectedly reaches out.
type testConfig struct {
	config.EnvVars
	config.Store
	authorizeEndpoint string
	tokenEndpoint     string
	identityEndpoint  string
	qondorEndpoint    string
}

func (c testConfig) GetClientID() string          { return testClientID }
func (c testConfig) GetClientSecret() string      { return testSecret }
func (c testConfig) GetServerName() string        { return testHost }
func (c testConfig) GetAuthorizeEndpoint() string { return c.authorizeEndpoint }
func (c testConfig) GetTokenEndpoint() string     { return c.tokenEndpoint }
func (c testConfig) GetIdentityEndpoint() string  { return c.identityEndpoint }
func (c testConfig) GetQondorEndpoint() string    { return c.qondorEndpoint }
func (c testConfig) GetQondorKey() string         { return "key-123" }

func newTestServer(t *testing.T, cfg testConfig, options ...server.Option) (*server.Server, *storefake.Store) {
	t.Helper()
	st := storefake.New()
	return server.New(cfg, st, zerolog.Nop(), options...), st
}

// signedURL builds a request target carrying a fresh valid signature over
// the given path and params, the way Eloqua signs its webhook calls.
func signedURL(path string, params map[string]string) string {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set("oauth_consumer_key", testClientID)
	query.Set("oauth_nonce", uuid.New().String())
	query.Set("oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	query.Set("oauth_signature_method", "HMAC-SHA1")
	query.Set("oauth_version", "1.0")
	return path + "?" + query.Encode()
}

func signRequest(r *http.Request) {
	query := r.URL.Query()
	baseURL := "https://" + r.Host + r.URL.Path
	query.Set("oauth_signature", signature.Sign(r.Method, baseURL, query, testSecret))
	r.URL.RawQuery = query.Encode()
}

// doSigned sends a signed request through the server and returns the
// response.
func doSigned(srv *server.Server, method, path string, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "https://"+testHost+signedURL(path, params), nil)
	signRequest(req)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
