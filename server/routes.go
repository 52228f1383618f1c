package server

import "net/http"

// Route patterns. Lifecycle and OAuth routes are app-level; ops routes
// are service-level and carry the owning app and installation in the
// path, plus the action instance where one exists.
const (
	RouteLifecycleInstall   = "/eloqua/lifecycle/install"
	RouteLifecycleUninstall = "/eloqua/lifecycle/uninstall"
	RouteLifecycleStatus    = "/eloqua/lifecycle/status"
	RouteOAuthCallback      = "/eloqua/oauth/callback"
	RouteOpsCreate          = "/eloqua/ops/create/{app_id}/{install_id}"
	RouteOpsConfigure       = "/eloqua/ops/configure/{app_id}/{install_id}/{instance_id}"
	RouteOpsNotify          = "/eloqua/ops/notify/{app_id}/{install_id}/{instance_id}"
	RouteOpsDelete          = "/eloqua/ops/delete/{app_id}/{install_id}/{instance_id}"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteLifecycleInstall, ChainMiddleware(
		s.InstallHandler(),
		s.RequiredArgs("install_id", "callback_url", "app_id", "site_id"),
		s.ValidateSignature(),
	))
	s.RegisterRouteFunc("POST "+RouteLifecycleUninstall, ChainMiddleware(
		s.UninstallHandler(),
		s.RequiredArgs("install_id", "app_id"),
		s.ValidateSignature(),
	))
	s.RegisterRouteFunc("GET "+RouteLifecycleStatus, ChainMiddleware(
		s.StatusHandler(),
		s.ValidateSignature(),
	))

	s.RegisterRouteFunc("GET "+RouteOAuthCallback, s.OAuthCallbackHandler())

	s.RegisterRouteFunc("POST "+RouteOpsCreate, ChainMiddleware(
		s.CreateInstanceHandler(),
		s.RequiredArgs("instance_id"),
		s.ValidateSignature(),
	))
	s.RegisterRouteFunc("GET "+RouteOpsConfigure, ChainMiddleware(
		s.ConfigureFormHandler(),
		s.ValidateSignature(),
		s.NewAuthedSession(),
	))
	s.RegisterRouteFunc("POST "+RouteOpsConfigure, ChainMiddleware(
		s.ConfigureSaveHandler(),
		s.RequireAuthedSession(),
	))
	s.RegisterRouteFunc("POST "+RouteOpsNotify, ChainMiddleware(
		s.NotifyHandler(),
		s.RequiredArgs("instance_id", "execution_id"),
		s.ValidateSignature(),
	))
	s.RegisterRouteFunc("POST "+RouteOpsDelete, ChainMiddleware(
		s.DeleteInstanceHandler(),
		s.RequiredArgs("instance_id"),
		s.ValidateSignature(),
	))

	for _, route := range s.routes {
		s.log.Debug().Str("route", route).Msg("registered route")
	}
}

// ChainMiddleware wraps handler so that the middlewares run in the order
// given: the first middleware sees the request first.
func ChainMiddleware(handler http.HandlerFunc, middleware ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
