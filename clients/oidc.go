// Package clients ships concrete protocol clients for the authentication
// pipeline: OIDC and form login as indirect clients, bearer-token and
// HTTP Basic as direct clients, plus the password authenticator backends
// they share.
package clients

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"authgate/core"
)

const (
	nonceSessionSuffix = ".nonce"
	idTokenSecret      = "id_token"
	accessTokenSecret  = "access_token"
	defaultOIDCTimeout = 10 * time.Second
)

// OIDCConfig configures an OIDC indirect client.
type OIDCConfig struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string

	// CallbackURL is where the provider sends the browser back. The
	// client name must be resolvable from it by the callback logic.
	CallbackURL string

	// Scopes defaults to openid, profile, email.
	Scopes []string

	// Timeout bounds discovery and token-endpoint calls.
	Timeout time.Duration

	// Index, when set, binds the provider's sid claim to the local
	// session so back-channel logout can find it.
	Index core.SessionKeyIndex
}

type oidcRuntime struct {
	cfg      OIDCConfig
	logger   *slog.Logger
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier

	endSessionEndpoint string
}

// NewOIDCClient builds an indirect client against an OIDC provider.
// Endpoint discovery runs lazily inside the one-time client
// initialization, so constructing the client never touches the network.
func NewOIDCClient(cfg OIDCConfig, logger *slog.Logger) (*core.Client, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" || cfg.CallbackURL == "" {
		return nil, core.NewError(core.KindConfig, "oidc client requires name, issuer, client id and callback url")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOIDCTimeout
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &oidcRuntime{cfg: cfg, logger: logger}

	client := core.NewIndirectClient(cfg.Name,
		core.RedirectionBuilderFunc(rt.buildRedirect),
		core.ExtractorFunc(rt.extract),
		core.AuthenticatorFunc(rt.validate),
		core.WithInitializer(rt.discover),
		core.WithCallTimeout(cfg.Timeout),
		core.WithLogoutBuilder(core.LogoutBuilderFunc(rt.buildLogout)),
	)
	return client, nil
}

// discover resolves the provider metadata. Runs exactly once per client.
func (rt *oidcRuntime) discover(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, rt.cfg.Timeout)
	defer cancel()

	provider, err := oidc.NewProvider(dctx, rt.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("discover provider %s: %w", rt.cfg.Name, err)
	}

	endpoint := provider.Endpoint()
	if rt.cfg.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	rt.oauth = &oauth2.Config{
		ClientID:     rt.cfg.ClientID,
		ClientSecret: rt.cfg.ClientSecret,
		RedirectURL:  rt.cfg.CallbackURL,
		Endpoint:     endpoint,
		Scopes:       rt.cfg.Scopes,
	}
	rt.verifier = provider.Verifier(&oidc.Config{ClientID: rt.cfg.ClientID})

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err == nil {
		rt.endSessionEndpoint = extra.EndSessionEndpoint
	}
	return nil
}

func (rt *oidcRuntime) nonceKey() string { return rt.cfg.Name + nonceSessionSuffix }

func (rt *oidcRuntime) buildRedirect(web core.WebContext, store core.SessionStore, state string) (core.Action, error) {
	nonce, err := randomToken()
	if err != nil {
		return core.Action{}, err
	}
	store.Set(web, rt.nonceKey(), nonce)

	return core.Redirect(rt.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))), nil
}

// extract reads the authorization code from the callback. An explicit
// provider error with no code means the user cancelled: no credentials,
// not a failure.
func (rt *oidcRuntime) extract(web core.WebContext, store core.SessionStore) (*core.Credentials, error) {
	code := web.Param("code")
	if code == "" {
		if errParam := web.Param("error"); errParam != "" {
			rt.logger.Info("provider returned error", "client", rt.cfg.Name, "error", errParam)
		}
		return nil, nil
	}
	return core.TokenCredentials(code), nil
}

func (rt *oidcRuntime) validate(ctx context.Context, creds *core.Credentials, web core.WebContext, store core.SessionStore) error {
	tok, err := rt.oauth.Exchange(ctx, creds.Token)
	if err != nil {
		if ctx.Err() != nil {
			return core.WrapError(core.KindUpstreamTimeout, "token exchange timed out", err)
		}
		return core.WrapError(core.KindUpstreamUnavailable, "token exchange failed", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return core.NewError(core.KindValidation, "id_token missing in token response")
	}
	idToken, err := rt.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return core.WrapError(core.KindValidation, "id_token verification failed", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return core.WrapError(core.KindValidation, "id_token claims unreadable", err)
	}

	// Nonce is one-shot, like the state token.
	expectedNonce, _ := store.Get(web, rt.nonceKey())
	store.Set(web, rt.nonceKey(), nil)
	if expected, _ := expectedNonce.(string); expected != "" {
		if nonce, _ := claims["nonce"].(string); nonce != expected {
			return core.NewError(core.KindValidation, "nonce mismatch")
		}
	}

	profile := core.NewProfile(rt.cfg.Name)
	profile.SetID(idToken.Subject)
	for name, value := range claims {
		switch name {
		case "nonce", "aud", "azp", "at_hash", "c_hash":
		default:
			profile.SetAttribute(name, value)
		}
	}
	profile.SetSecret(idTokenSecret, rawIDToken)
	profile.SetSecret(accessTokenSecret, tok.AccessToken)
	if !idToken.Expiry.IsZero() {
		profile.SetExpiration(idToken.Expiry)
	}

	if rt.cfg.Index != nil {
		if sid, _ := claims["sid"].(string); sid != "" {
			if sessionID := store.ID(web, true); sessionID != "" {
				if err := rt.cfg.Index.Bind(ctx, sid, sessionID); err != nil {
					rt.logger.Warn("sid binding failed", "client", rt.cfg.Name, "error", err)
				}
			}
		}
	}

	creds.Profile = profile
	return nil
}

func (rt *oidcRuntime) buildLogout(web core.WebContext, store core.SessionStore, profile *core.UserProfile, targetURL string) (core.Action, bool) {
	if rt.endSessionEndpoint == "" {
		return core.Action{}, false
	}
	endSession, err := url.Parse(rt.endSessionEndpoint)
	if err != nil {
		return core.Action{}, false
	}
	q := endSession.Query()
	if hint := profile.Secret(idTokenSecret); hint != "" {
		q.Set("id_token_hint", hint)
	}
	if targetURL != "" {
		q.Set("post_logout_redirect_uri", targetURL)
	}
	endSession.RawQuery = q.Encode()
	return core.Redirect(endSession.String()), true
}

// BackChannelKeyExtractor verifies an OIDC back-channel logout token and
// returns the sid it names, for use with the adapter's back-channel
// handler. Verification runs against the provider's signing keys; an
// unverifiable or sid-less token yields "".
func BackChannelKeyExtractor(ctx context.Context, issuer, clientID string, logger *slog.Logger) (func(r *http.Request) string, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover provider for back-channel logout: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	if logger == nil {
		logger = slog.Default()
	}

	return func(r *http.Request) string {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		raw := r.PostFormValue("logout_token")
		if raw == "" {
			return ""
		}
		token, err := verifier.Verify(r.Context(), raw)
		if err != nil {
			logger.Warn("logout token rejected", "error", err)
			return ""
		}
		var claims struct {
			SID    string         `json:"sid"`
			Events map[string]any `json:"events"`
		}
		if err := token.Claims(&claims); err != nil {
			return ""
		}
		if _, ok := claims.Events["http://schemas.openid.net/event/backchannel-logout"]; !ok {
			return ""
		}
		return claims.SID
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
