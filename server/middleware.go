package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/isotammi/qondor-cloudapp/sessions"
)

type contextKey string

const sessionContextKey contextKey = "session"

// sessionFromContext returns the session a middleware resolved for this
// request, if any.
func sessionFromContext(ctx context.Context) (sessions.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(sessions.Session)
	return sess, ok
}

// RequiredArgs rejects requests missing any of the listed query
// parameters with a 400 and a JSON error list, one entry per missing
// argument.
func (s *Server) RequiredArgs(keys ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			var errs []apiError
			for _, key := range keys {
				if query.Get(key) == "" {
					errs = append(errs, apiError{Message: fmt.Sprintf("Missing argument '%s'", key)})
				}
			}
			if len(errs) > 0 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Errors: errs})
				return
			}
			next(w, r)
		}
	}
}

// ValidateSignature rejects requests whose OAuth1 signature does not
// verify. The base URL is rebuilt as https regardless of what scheme the
// proxy terminated, since Eloqua signs against the public https URL. The
// rejection carries no cause; causes are only logged.
func (s *Server) ValidateSignature() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			baseURL := "https://" + r.Host + r.URL.Path
			if err := s.validator.Validate(r.Context(), r.Method, baseURL, r.URL.Query()); err != nil {
				s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected unsigned or invalid request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
}

// NewAuthedSession starts a fresh authenticated session bound to the
// caller's cookies, replacing any session the cookies already named. Used
// on the signed configure page load so the unsigned form post that
// follows can be trusted.
func (s *Server) NewAuthedSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			binding := newCookieBinding(w, r)
			sess, err := s.sessions.Create(r.Context(), binding, nil, true)
			if err != nil {
				s.log.Error().Err(err).Msg("could not create session")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAuthedSession resolves the caller's session from its cookies and
// rejects the request unless the session exists, is unexpired and was
// started by a signed request. Resolving slides the expiry forward. The
// rejection is a 400 session-expired, distinct from the 401 a signature
// failure produces, so the embedding page knows to reload rather than
// re-sign.
func (s *Server) RequireAuthedSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			binding := newCookieBinding(w, r)
			sess, err := s.sessions.Resolve(r.Context(), binding)
			if err != nil || !sess.IsAuthed {
				s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected request without authed session")
				writeError(w, http.StatusBadRequest, "Session expired")
				return
			}
			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next(w, r.WithContext(ctx))
		}
	}
}
