// Package authstate builds and parses the opaque state value round-tripped
// through Eloqua's authorization redirect. The value is
// "<session_id>.<random_token>": the session id half resolves the callback
// back to the install context stashed at install time, the random half is
// never stored and exists only to make the state unguessable.
package authstate

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type State struct {
	SessionID string
	Token     string
}

func New(sessionID string) State {
	return State{SessionID: sessionID, Token: uuid.New().String()}
}

func Parse(v string) (State, error) {
	sessionID, token, ok := strings.Cut(v, ".")
	if !ok {
		return State{}, errors.Errorf("[authstate.Parse] malformed state %q", v)
	}
	return State{SessionID: sessionID, Token: token}, nil
}

func (s State) String() string {
	return s.SessionID + "." + s.Token
}
