package core

import (
	"context"
	"regexp"
)

// SessionStoreByID destroys a session addressed by its raw identifier,
// without the owning browser being involved. Shared-backend stores
// implement it to support back-channel logout.
type SessionStoreByID interface {
	DestroyByID(ctx context.Context, sessionID string) error
}

// SessionKeyIndex is the side index mapping an opaque protocol session key
// (CAS ticket, OIDC sid) to the local session id. The protocol collaborator
// maintains it; the pipeline only resolves and removes entries.
type SessionKeyIndex interface {
	Bind(ctx context.Context, key, sessionID string) error
	Resolve(ctx context.Context, key string) (string, bool)
	Remove(ctx context.Context, key string) error
}

// LogoutLogic invalidates local session state and, where a client's
// protocol supports it, propagates the logout to the provider.
type LogoutLogic struct {
	cfg *Config

	// DestroySession removes the whole session on logout instead of just
	// the profile entries.
	DestroySession bool

	// CentralLogout asks each client for a provider-side logout action.
	CentralLogout bool
}

// NewLogoutLogic builds the logout orchestrator.
func NewLogoutLogic(cfg *Config) *LogoutLogic {
	return &LogoutLogic{cfg: cfg, DestroySession: true}
}

// Perform runs a browser-initiated logout. requestedURL, when it matches
// urlPattern, wins over defaultURL as the post-logout target; an empty
// pattern only admits defaultURL.
func (l *LogoutLogic) Perform(ctx context.Context, web WebContext, defaultURL, requestedURL, urlPattern string) (Action, error) {
	if err := l.cfg.validate(); err != nil {
		return Action{}, err
	}

	log := l.cfg.logger()
	store := l.cfg.SessionStore
	manager := NewProfileManager(web, store)
	profiles := manager.All(true)

	manager.RemoveAll()
	if l.DestroySession {
		store.Destroy(web)
	}

	target := defaultURL
	if requestedURL != "" && urlPattern != "" {
		re, err := regexp.Compile(urlPattern)
		if err != nil {
			return Action{}, WrapError(KindConfig, "invalid logout url pattern", err)
		}
		if re.MatchString(requestedURL) {
			target = requestedURL
		}
	}

	if l.CentralLogout {
		for name, profile := range profiles {
			client, err := l.cfg.Clients.Find(name)
			if err != nil {
				continue
			}
			if action, ok := client.LogoutAction(web, store, profile, target); ok {
				log.Info("central logout", "client", name)
				return action, nil
			}
		}
	}

	log.Info("local logout", "profiles", len(profiles))
	if target == "" {
		return Status(204), nil
	}
	return Redirect(target), nil
}

// PerformBackChannel handles a server-to-server logout notification. The
// affected session is located through the side index by the opaque key the
// protocol layer verified, never by a session id supplied in the
// notification itself.
func (l *LogoutLogic) PerformBackChannel(ctx context.Context, index SessionKeyIndex, byID SessionStoreByID, sessionKey string) error {
	if index == nil || byID == nil {
		return NewError(KindConfig, "back-channel logout requires a session key index and an addressable store")
	}
	sessionID, ok := index.Resolve(ctx, sessionKey)
	if !ok {
		// Session already gone or never bound: logout is idempotent.
		return nil
	}
	if err := byID.DestroyByID(ctx, sessionID); err != nil {
		return err
	}
	if err := index.Remove(ctx, sessionKey); err != nil {
		return err
	}
	l.cfg.logger().Info("back-channel logout", "session", sessionID)
	return nil
}
