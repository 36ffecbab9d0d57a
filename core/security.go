package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Authorizer checks the authenticated profiles against an access rule.
type Authorizer interface {
	Authorize(web WebContext, profiles map[string]*UserProfile) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(web WebContext, profiles map[string]*UserProfile) bool

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(web WebContext, profiles map[string]*UserProfile) bool {
	return f(web, profiles)
}

// RequireRole builds an authorizer passing when any profile holds role.
func RequireRole(role string) Authorizer {
	return AuthorizerFunc(func(_ WebContext, profiles map[string]*UserProfile) bool {
		for _, p := range profiles {
			if p.HasRole(role) {
				return true
			}
		}
		return false
	})
}

// Config bundles the collaborators shared by the three orchestrators.
// Everything is passed in explicitly; there is no global state.
type Config struct {
	Clients       *Clients
	Authorizers   map[string]Authorizer
	SessionStore  SessionStore
	Decision      ProfileStorageDecision
	SavedRequests SavedRequestHandler
	Logger        *slog.Logger

	// MultiProfile keeps profiles from several clients side by side in
	// the session instead of replacing on each login.
	MultiProfile bool

	// RenewSession rotates the session id after an indirect login.
	RenewSession bool
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) decision() ProfileStorageDecision {
	if c.Decision != nil {
		return c.Decision
	}
	return DefaultStorageDecision{}
}

func (c *Config) validate() error {
	if c.Clients == nil {
		return NewError(KindConfig, "no clients configured")
	}
	if c.SessionStore == nil {
		return NewError(KindConfig, "no session store configured")
	}
	return nil
}

// SecurityLogic enforces access on protected requests: pass through when a
// valid profile exists and the authorizers agree, otherwise start the
// login flow of the first applicable client.
type SecurityLogic struct {
	cfg *Config
}

// NewSecurityLogic builds the access enforcement orchestrator.
func NewSecurityLogic(cfg *Config) *SecurityLogic {
	return &SecurityLogic{cfg: cfg}
}

// Perform runs the access decision for one request. clientNames and
// authorizerNames are comma-separated; empty clientNames means every
// registered client. A returned error is always a configuration error and
// intentionally fatal; every authentication or authorization failure comes
// back as an Action.
func (l *SecurityLogic) Perform(ctx context.Context, web WebContext, clientNames, authorizerNames string) (Action, error) {
	if err := l.cfg.validate(); err != nil {
		return Action{}, err
	}
	clients, err := l.cfg.Clients.FindAll(clientNames)
	if err != nil {
		return Action{}, err
	}
	authorizers, err := l.resolveAuthorizers(authorizerNames)
	if err != nil {
		return Action{}, err
	}

	log := l.cfg.logger()
	decision := l.cfg.decision()
	manager := NewProfileManager(web, l.cfg.SessionStore)

	profiles := manager.All(decision.MustLoadFromSession(web, clients))

	if len(profiles) == 0 {
		for _, client := range clients {
			if client.Kind() != Direct {
				continue
			}
			creds, err := client.Credentials(ctx, web, l.cfg.SessionStore)
			if err != nil {
				if IsKind(err, KindConfig) {
					return Action{}, err
				}
				log.Warn("direct authentication failed",
					"client", client.Name(), "kind", KindOf(err).String(), "error", err)
				return Unauthorized(), nil
			}
			if creds == nil {
				continue
			}
			profile, err := client.Profile(ctx, creds, web, l.cfg.SessionStore)
			if err != nil {
				if IsKind(err, KindConfig) {
					return Action{}, err
				}
				log.Warn("direct profile creation failed", "client", client.Name(), "error", err)
				return Unauthorized(), nil
			}
			save := decision.MustSaveToSession(web, clients, client, profile)
			manager.Save(save, profile, l.cfg.MultiProfile)
			profiles = manager.All(false)
			break
		}
	}

	if len(profiles) > 0 {
		for name, authorizer := range authorizers {
			if !authorizer.Authorize(web, profiles) {
				log.Info("access denied", "authorizer", name)
				return Forbidden(), nil
			}
		}
		return Grant(), nil
	}

	for _, client := range clients {
		if client.Kind() != Indirect {
			continue
		}
		l.cfg.SavedRequests.Save(web, l.cfg.SessionStore)
		action, err := client.RedirectionAction(ctx, web, l.cfg.SessionStore)
		if err != nil {
			return Action{}, err
		}
		log.Info("starting login flow", "client", client.Name())
		return action, nil
	}

	log.Info("unauthenticated request denied")
	return Unauthorized(), nil
}

func (l *SecurityLogic) resolveAuthorizers(names string) (map[string]Authorizer, error) {
	out := make(map[string]Authorizer)
	if strings.TrimSpace(names) == "" {
		return out, nil
	}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		authorizer, ok := l.cfg.Authorizers[name]
		if !ok {
			return nil, NewError(KindConfig, fmt.Sprintf("unknown authorizer %s", name))
		}
		out[name] = authorizer
	}
	return out, nil
}
