package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"

	"authgate/core"
)

// BearerConfig configures a JWT bearer direct client.
type BearerConfig struct {
	Name   string
	Issuer string

	// HMACSecret validates HS256 tokens. Leave empty to use JWKSURL.
	HMACSecret []byte

	// JWKSURL serves the RS256 signing keys. The key set is fetched at
	// client initialization and cached for CacheTTL.
	JWKSURL string

	Audiences  []string
	CacheTTL   time.Duration
	HTTPClient *http.Client

	// HeaderName and Prefix locate the token, defaulting to
	// "Authorization" / "Bearer ".
	HeaderName string
	Prefix     string
}

type bearerRuntime struct {
	cfg    BearerConfig
	client *http.Client

	mu      sync.RWMutex
	keys    jose.JSONWebKeySet
	fetched time.Time
}

// NewBearerClient builds a stateless direct client validating JWT bearer
// tokens. It never touches the session store.
func NewBearerClient(cfg BearerConfig) (*core.Client, error) {
	if cfg.Name == "" {
		return nil, core.NewError(core.KindConfig, "bearer client requires a name")
	}
	if len(cfg.HMACSecret) == 0 && cfg.JWKSURL == "" {
		return nil, core.NewError(core.KindConfig, "bearer client requires an HMAC secret or a JWKS url")
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Authorization"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "Bearer "
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	rt := &bearerRuntime{cfg: cfg, client: cfg.HTTPClient}
	if rt.client == nil {
		rt.client = http.DefaultClient
	}

	opts := []core.ClientOption{}
	if cfg.JWKSURL != "" {
		opts = append(opts, core.WithInitializer(func(ctx context.Context) error {
			return rt.refreshKeys(ctx)
		}))
	}
	return core.NewDirectClient(cfg.Name,
		core.ExtractorFunc(rt.extract),
		core.AuthenticatorFunc(rt.validate),
		opts...,
	), nil
}

func (rt *bearerRuntime) extract(web core.WebContext, _ core.SessionStore) (*core.Credentials, error) {
	header := web.Header(rt.cfg.HeaderName)
	if header == "" || !strings.HasPrefix(header, rt.cfg.Prefix) {
		return nil, nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, rt.cfg.Prefix))
	if token == "" {
		return nil, nil
	}
	return core.TokenCredentials(token), nil
}

func (rt *bearerRuntime) validate(ctx context.Context, creds *core.Credentials, _ core.WebContext, _ core.SessionStore) error {
	parserOpts := []jwt.ParserOption{jwt.WithLeeway(30 * time.Second)}
	if rt.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(rt.cfg.Issuer))
	}
	if len(rt.cfg.HMACSecret) > 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	} else {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.NewParser(parserOpts...).ParseWithClaims(creds.Token, claims, func(token *jwt.Token) (any, error) {
		if len(rt.cfg.HMACSecret) > 0 {
			return rt.cfg.HMACSecret, nil
		}
		kid, _ := token.Header["kid"].(string)
		key := rt.findKey(kid)
		if key == nil {
			if err := rt.refreshKeys(ctx); err == nil {
				key = rt.findKey(kid)
			}
		}
		if key == nil {
			return nil, fmt.Errorf("signing key %q not found", kid)
		}
		return key.Key, nil
	})
	if err != nil {
		return core.WrapError(core.KindValidation, "bearer token rejected", err)
	}
	if !token.Valid {
		return core.NewError(core.KindValidation, "bearer token invalid")
	}
	if len(rt.cfg.Audiences) > 0 && !audienceAllowed(claims, rt.cfg.Audiences) {
		return core.NewError(core.KindValidation, "bearer token audience not accepted")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return core.NewError(core.KindValidation, "bearer token has no subject")
	}

	profile := core.NewProfile(rt.cfg.Name)
	profile.SetID(sub)
	for name, value := range claims {
		switch name {
		case "exp", "nbf", "iat", "aud":
		default:
			profile.SetAttribute(name, value)
		}
	}
	if roles, ok := claims["roles"].([]any); ok {
		for _, role := range roles {
			if r, ok := role.(string); ok {
				profile.AddRole(r)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		profile.SetExpiration(exp.Time)
	}

	creds.Profile = profile
	return nil
}

func (rt *bearerRuntime) findKey(kid string) *jose.JSONWebKey {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if time.Since(rt.fetched) > rt.cfg.CacheTTL {
		return nil
	}
	for i := range rt.keys.Keys {
		key := &rt.keys.Keys[i]
		if kid == "" || key.KeyID == kid {
			return key
		}
	}
	return nil
}

func (rt *bearerRuntime) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rt.cfg.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := rt.client.Do(req)
	if err != nil {
		return core.WrapError(core.KindUpstreamUnavailable, "jwks fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.NewError(core.KindUpstreamUnavailable, fmt.Sprintf("jwks fetch returned %d", resp.StatusCode))
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return core.WrapError(core.KindUpstreamUnavailable, "jwks unreadable", err)
	}

	rt.mu.Lock()
	rt.keys = set
	rt.fetched = time.Now()
	rt.mu.Unlock()
	return nil
}

func audienceAllowed(claims jwt.MapClaims, allowed []string) bool {
	auds, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, aud := range auds {
		for _, want := range allowed {
			if aud == want {
				return true
			}
		}
	}
	return false
}
