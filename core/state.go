package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	stateSessionSuffix = ".state"
	stateEntropyBytes  = 32
)

// StateValidator generates and verifies the opaque token binding a
// redirect to its callback (OIDC state, SAML RelayState, CSRF token).
// Tokens are single-use: a successful validation clears the stored value.
type StateValidator struct {
	clientName string
	parameter  string
}

// NewStateValidator builds a validator bound to a client. parameter is the
// request parameter carrying the token on callback, defaulting to "state".
func NewStateValidator(clientName, parameter string) *StateValidator {
	if parameter == "" {
		parameter = "state"
	}
	return &StateValidator{clientName: clientName, parameter: parameter}
}

// Parameter returns the callback parameter name carrying the token.
func (v *StateValidator) Parameter() string { return v.parameter }

func (v *StateValidator) sessionKey() string { return v.clientName + stateSessionSuffix }

// Generate creates a fresh random token and stores it in the session under
// a per-client key. When a live token already exists and the current
// request is not a primary navigation (a background probe racing a pending
// interactive login), the existing token is reused instead of clobbered.
func (v *StateValidator) Generate(web WebContext, store SessionStore) (string, error) {
	if existing, ok := store.Get(web, v.sessionKey()); ok {
		if token, _ := existing.(string); token != "" && !primaryNavigation(web) {
			return token, nil
		}
	}

	buf := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	store.Set(web, v.sessionKey(), token)
	return token, nil
}

// Validate compares the token returned on callback against the session
// copy. It fails closed: a missing session entry, a cleared token or any
// difference is rejected. On success the stored token is cleared so it
// cannot be replayed.
func (v *StateValidator) Validate(received string, web WebContext, store SessionStore) error {
	stored, ok := store.Get(web, v.sessionKey())
	if !ok {
		return NewError(KindStateMismatch, "no state token in session")
	}
	expected, _ := stored.(string)
	if expected == "" {
		return NewError(KindStateMismatch, "state token cleared")
	}
	if received == "" {
		return NewError(KindStateMismatch, "callback carried no state token")
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return NewError(KindStateMismatch, "state token mismatch")
	}

	store.Set(web, v.sessionKey(), nil)
	return nil
}

// primaryNavigation reports whether the request looks like a visible page
// navigation rather than a background XHR/fetch probe.
func primaryNavigation(web WebContext) bool {
	if strings.EqualFold(web.Header("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	if mode := web.Header("Sec-Fetch-Mode"); mode != "" && !strings.EqualFold(mode, "navigate") {
		return false
	}
	return true
}
