package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ClientKind tags the two temporal shapes of authentication.
type ClientKind int

const (
	// Indirect clients require a browser redirect to an external identity
	// provider and back.
	Indirect ClientKind = iota
	// Direct clients resolve authentication within a single request.
	Direct
)

func (k ClientKind) String() string {
	if k == Direct {
		return "direct"
	}
	return "indirect"
}

// RedirectionBuilder produces the provider-specific redirect for an
// indirect client, writing any required state into the session.
type RedirectionBuilder interface {
	Build(web WebContext, store SessionStore, state string) (Action, error)
}

// RedirectionBuilderFunc adapts a function to RedirectionBuilder.
type RedirectionBuilderFunc func(web WebContext, store SessionStore, state string) (Action, error)

// Build implements RedirectionBuilder.
func (f RedirectionBuilderFunc) Build(web WebContext, store SessionStore, state string) (Action, error) {
	return f(web, store, state)
}

// LogoutBuilder produces the provider-side logout action for a client, if
// the protocol supports one.
type LogoutBuilder interface {
	Build(web WebContext, store SessionStore, profile *UserProfile, targetURL string) (Action, bool)
}

// LogoutBuilderFunc adapts a function to LogoutBuilder.
type LogoutBuilderFunc func(web WebContext, store SessionStore, profile *UserProfile, targetURL string) (Action, bool)

// Build implements LogoutBuilder.
func (f LogoutBuilderFunc) Build(web WebContext, store SessionStore, profile *UserProfile, targetURL string) (Action, bool) {
	return f(web, store, profile, targetURL)
}

// Client composes an extractor, authenticator and profile creator — plus,
// for indirect clients, a redirection builder and state validator — into
// one immutable-after-init configuration value shared by all in-flight
// requests. Per-request data never lives on the Client.
type Client struct {
	name           string
	kind           ClientKind
	extractor      CredentialsExtractor
	authenticator  Authenticator
	profileCreator ProfileCreator
	authGenerators []AuthorizationGenerator
	redirect       RedirectionBuilder
	state          *StateValidator
	logout         LogoutBuilder
	callTimeout    time.Duration

	initOnce sync.Once
	initFn   func(ctx context.Context) error
	initErr  error
}

// ClientOption mutates a client during construction.
type ClientOption func(*Client)

// WithProfileCreator overrides the default profile creator.
func WithProfileCreator(pc ProfileCreator) ClientOption {
	return func(c *Client) { c.profileCreator = pc }
}

// WithAuthorizationGenerators appends authorization generators run after
// profile creation.
func WithAuthorizationGenerators(gens ...AuthorizationGenerator) ClientOption {
	return func(c *Client) { c.authGenerators = append(c.authGenerators, gens...) }
}

// WithLogoutBuilder sets the provider-side logout builder.
func WithLogoutBuilder(lb LogoutBuilder) ClientOption {
	return func(c *Client) { c.logout = lb }
}

// WithStateParameter changes the callback parameter carrying the state
// token (e.g. "RelayState" for SAML bindings).
func WithStateParameter(parameter string) ClientOption {
	return func(c *Client) { c.state = NewStateValidator(c.name, parameter) }
}

// WithCallTimeout bounds remote authenticator calls. Zero means no bound
// beyond the request's own context.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// WithInitializer registers a one-time initialization step (endpoint
// discovery, key fetch) run lazily before first use. It runs exactly once
// even under concurrent first-use; a failure is remembered and surfaced as
// a configuration error on every subsequent call.
func WithInitializer(fn func(ctx context.Context) error) ClientOption {
	return func(c *Client) { c.initFn = fn }
}

// NewIndirectClient builds a redirect-based client.
func NewIndirectClient(name string, redirect RedirectionBuilder, extractor CredentialsExtractor, authenticator Authenticator, opts ...ClientOption) *Client {
	c := &Client{
		name:          name,
		kind:          Indirect,
		extractor:     extractor,
		authenticator: authenticator,
		redirect:      redirect,
		state:         NewStateValidator(name, ""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDirectClient builds a single-pass stateless client.
func NewDirectClient(name string, extractor CredentialsExtractor, authenticator Authenticator, opts ...ClientOption) *Client {
	c := &Client{
		name:          name,
		kind:          Direct,
		extractor:     extractor,
		authenticator: authenticator,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string { return c.name }

// Kind returns the client kind tag.
func (c *Client) Kind() ClientKind { return c.kind }

// StateValidator returns the state-binding validator of an indirect
// client, nil for direct clients.
func (c *Client) StateValidator() *StateValidator { return c.state }

// Init runs the one-time initialization. Safe for concurrent first-use:
// one caller wins, the rest wait and observe the same outcome.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		if c.extractor == nil || c.authenticator == nil {
			c.initErr = NewError(KindConfig, fmt.Sprintf("client %s missing extractor or authenticator", c.name))
			return
		}
		if c.kind == Indirect && c.redirect == nil {
			c.initErr = NewError(KindConfig, fmt.Sprintf("indirect client %s missing redirection builder", c.name))
			return
		}
		if c.initFn != nil {
			if err := c.initFn(ctx); err != nil {
				c.initErr = WrapError(KindConfig, fmt.Sprintf("client %s initialization failed", c.name), err)
			}
		}
	})
	return c.initErr
}

// RedirectionAction builds the redirect starting the login round-trip,
// storing a fresh state token in the session.
func (c *Client) RedirectionAction(ctx context.Context, web WebContext, store SessionStore) (Action, error) {
	if err := c.Init(ctx); err != nil {
		return Action{}, err
	}
	if c.kind != Indirect {
		return Action{}, NewError(KindConfig, fmt.Sprintf("client %s is direct and cannot redirect", c.name))
	}
	state, err := c.state.Generate(web, store)
	if err != nil {
		return Action{}, err
	}
	return c.redirect.Build(web, store, state)
}

// Credentials runs the extraction step. For indirect clients the
// state-binding token is re-validated before anything else; a mismatch is
// rejected and no extraction happens. A (nil, nil) return means no
// credentials were present, which callers treat as "authentication not
// completed".
func (c *Client) Credentials(ctx context.Context, web WebContext, store SessionStore) (*Credentials, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	if c.kind == Indirect {
		if err := c.state.Validate(web.Param(c.state.Parameter()), web, store); err != nil {
			return nil, err
		}
	}

	creds, err := c.extractor.Extract(web, store)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, nil
	}

	vctx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	if err := c.authenticator.Validate(vctx, creds, web, store); err != nil {
		if vctx.Err() == context.DeadlineExceeded {
			return nil, WrapError(KindUpstreamTimeout, fmt.Sprintf("client %s validation timed out", c.name), err)
		}
		return nil, err
	}
	return creds, nil
}

// Profile turns validated credentials into a user profile and runs the
// authorization generators. The identifier must be set before the profile
// is returned.
func (c *Client) Profile(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) (*UserProfile, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	var profile *UserProfile
	var err error
	if c.profileCreator != nil {
		profile, err = c.profileCreator.Create(ctx, creds, web, store)
	} else {
		profile = creds.Profile
	}
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, NewError(KindValidation, fmt.Sprintf("client %s produced no profile", c.name))
	}
	if profile.ID() == "" {
		return nil, NewError(KindValidation, fmt.Sprintf("client %s produced a profile without identifier", c.name))
	}

	for _, gen := range c.authGenerators {
		profile, err = gen(web, profile)
		if err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// LogoutAction asks the client for a provider-side logout action.
func (c *Client) LogoutAction(web WebContext, store SessionStore, profile *UserProfile, targetURL string) (Action, bool) {
	if c.logout == nil {
		return Action{}, false
	}
	return c.logout.Build(web, store, profile, targetURL)
}

// Clients is the immutable registry resolving client names for the
// orchestrators.
type Clients struct {
	byName  map[string]*Client
	ordered []*Client
}

// NewClients builds a registry. Duplicate or empty names are rejected.
func NewClients(clients ...*Client) (*Clients, error) {
	reg := &Clients{byName: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		if c.name == "" {
			return nil, NewError(KindConfig, "client with empty name")
		}
		if _, dup := reg.byName[c.name]; dup {
			return nil, NewError(KindConfig, fmt.Sprintf("duplicate client name %s", c.name))
		}
		reg.byName[c.name] = c
		reg.ordered = append(reg.ordered, c)
	}
	return reg, nil
}

// Find resolves a client by name.
func (r *Clients) Find(name string) (*Client, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, NewError(KindConfig, fmt.Sprintf("unknown client %s", name))
	}
	return c, nil
}

// FindAll resolves a comma-separated list of client names, or every
// registered client when names is empty.
func (r *Clients) FindAll(names string) ([]*Client, error) {
	if strings.TrimSpace(names) == "" {
		return append([]*Client(nil), r.ordered...), nil
	}
	var out []*Client
	for _, name := range strings.Split(names, ",") {
		c, err := r.Find(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// All returns every registered client in registration order.
func (r *Clients) All() []*Client {
	return append([]*Client(nil), r.ordered...)
}
