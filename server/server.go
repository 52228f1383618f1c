package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/isotammi/qondor-cloudapp/executions"
	"github.com/isotammi/qondor-cloudapp/installations"
	"github.com/isotammi/qondor-cloudapp/instances"
	"github.com/isotammi/qondor-cloudapp/internal/config"
	"github.com/isotammi/qondor-cloudapp/qondor"
	"github.com/isotammi/qondor-cloudapp/sessions"
	"github.com/isotammi/qondor-cloudapp/signature"
	"github.com/isotammi/qondor-cloudapp/store"
)

// BeforeRedirectHook runs after the OAuth callback has updated the
// installation and before the closing browser redirect, so specialized
// deployments can run extra steps against the freshly authorized
// installation.
type BeforeRedirectHook func(ctx context.Context, installID string) error

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string

	config     config.Config
	store      store.Store
	sessions   *sessions.Manager
	installs   *installations.Repo
	instances  *instances.Repo
	executions *executions.Repo
	validator  *signature.Validator
	qondor     *qondor.Client
	log        zerolog.Logger

	beforeRedirect BeforeRedirectHook
	httpClient     *http.Client
}

type Option func(*Server)

// WithBeforeRedirect installs the OAuth callback extension hook.
func WithBeforeRedirect(hook BeforeRedirectHook) Option {
	return func(s *Server) {
		s.beforeRedirect = hook
	}
}

// WithHTTPClient sets the client used for outbound calls to the Eloqua
// login endpoints (token exchange, identity). Tests point it at local
// stand-ins.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) {
		s.httpClient = hc
	}
}

func New(cfg config.Config, st store.Store, log zerolog.Logger, options ...Option) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		config:     cfg,
		store:      st,
		sessions:   sessions.NewManager(st, log, sessions.WithTTL(cfg.GetSessionTTL())),
		installs:   installations.NewRepo(st, log),
		instances:  instances.NewRepo(st, log),
		executions: executions.NewRepo(st, cfg.GetExecutionTTL()),
		validator: signature.NewValidator(
			cfg.GetClientID(), cfg.GetClientSecret(),
			signature.NewStoreReplayCache(st), log),
		qondor: qondor.NewClient(nil, cfg.GetQondorEndpoint(), cfg.GetQondorKey(), log),
		log:    log,
	}
	s.env = cfg.GetEnv()

	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// oauthConfig builds the OAuth2 client config for the Eloqua login
// endpoints. Client credentials go out as HTTP basic auth on token
// requests.
func (s *Server) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.config.GetClientID(),
		ClientSecret: s.config.GetClientSecret(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.config.GetAuthorizeEndpoint(),
			TokenURL:  s.config.GetTokenEndpoint(),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		RedirectURL: "https://" + s.config.GetServerName() + RouteOAuthCallback,
	}
}

// withHTTPClient routes oauth2 calls through the configured client.
func (s *Server) withHTTPClient(ctx context.Context) context.Context {
	if s.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	return ctx
}
