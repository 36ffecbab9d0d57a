package core

import (
	"context"
	"strings"
)

// ClientNameResolver locates the originating client of a callback request.
type ClientNameResolver interface {
	Resolve(web WebContext) string
}

// QueryClientNameResolver reads the client name from a query parameter,
// "client_name" by default.
type QueryClientNameResolver struct {
	Parameter string
}

// Resolve implements ClientNameResolver.
func (r QueryClientNameResolver) Resolve(web WebContext) string {
	parameter := r.Parameter
	if parameter == "" {
		parameter = "client_name"
	}
	return web.Param(parameter)
}

// PathClientNameResolver takes the client name from the last path segment
// of the callback URL, matching routes like /callback/{client}.
type PathClientNameResolver struct{}

// Resolve implements ClientNameResolver.
func (PathClientNameResolver) Resolve(web WebContext) string {
	full := web.FullURL()
	if i := strings.IndexAny(full, "?#"); i >= 0 {
		full = full[:i]
	}
	full = strings.TrimSuffix(full, "/")
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[i+1:]
	}
	return ""
}

// CallbackLogic handles the identity provider's return leg: state
// validation, credential extraction, authentication, profile persistence
// and replay of the originally requested URL.
type CallbackLogic struct {
	cfg      *Config
	resolver ClientNameResolver
}

// NewCallbackLogic builds the callback orchestrator. resolver may be nil,
// defaulting to the client_name query parameter.
func NewCallbackLogic(cfg *Config, resolver ClientNameResolver) *CallbackLogic {
	if resolver == nil {
		resolver = QueryClientNameResolver{}
	}
	return &CallbackLogic{cfg: cfg, resolver: resolver}
}

// Perform processes one callback request. State mismatches and validation
// failures surface as explicit 401 actions and never fall through to a
// success redirect; only configuration errors are returned as errors.
func (l *CallbackLogic) Perform(ctx context.Context, web WebContext, defaultURL string) (Action, error) {
	if err := l.cfg.validate(); err != nil {
		return Action{}, err
	}

	name := l.resolver.Resolve(web)
	if name == "" {
		return Action{}, NewError(KindConfig, "callback request carries no client name")
	}
	client, err := l.cfg.Clients.Find(name)
	if err != nil {
		return Action{}, err
	}
	if client.Kind() != Indirect {
		return Action{}, NewError(KindConfig, "callback invoked for a direct client")
	}

	log := l.cfg.logger()
	store := l.cfg.SessionStore

	creds, err := client.Credentials(ctx, web, store)
	if err != nil {
		if IsKind(err, KindConfig) {
			return Action{}, err
		}
		log.Warn("callback rejected",
			"client", client.Name(), "kind", KindOf(err).String(), "error", err)
		return Unauthorized(), nil
	}
	if creds == nil {
		// User cancelled at the provider: not an error, nothing persisted.
		log.Info("callback without credentials", "client", client.Name())
		return Redirect(defaultURL), nil
	}

	profile, err := client.Profile(ctx, creds, web, store)
	if err != nil {
		if IsKind(err, KindConfig) {
			return Action{}, err
		}
		log.Warn("profile creation failed", "client", client.Name(), "error", err)
		return Unauthorized(), nil
	}

	if l.cfg.RenewSession {
		store.Renew(web)
	}

	// Indirect results are always session-backed, under every policy.
	manager := NewProfileManager(web, store)
	manager.Save(true, profile, l.cfg.MultiProfile)

	log.Info("login completed", "client", client.Name(), "profile", profile.TypedID())
	return l.cfg.SavedRequests.Restore(web, store, defaultURL), nil
}
