package auth

import (
	"net/http"

	"token-gateway/internal/token"
)

type OutcomeState int

const (
	StateUnauthenticated OutcomeState = iota
	StateAuthenticated
	StateRedirect
)

// Outcome is the resolver's per-request decision as a tagged value. The
// transport layer inspects it; redirects are data here, never control flow.
type Outcome struct {
	State  OutcomeState
	Claims *token.Claims

	// Redirect target, set only for StateRedirect.
	RedirectStatus int
	Location       string
}

func Authenticated(claims *token.Claims) Outcome {
	return Outcome{State: StateAuthenticated, Claims: claims}
}

func Unauthenticated() Outcome {
	return Outcome{State: StateUnauthenticated}
}

func RedirectRequired(location string) Outcome {
	return Outcome{
		State:          StateRedirect,
		RedirectStatus: http.StatusFound,
		Location:       location,
	}
}
