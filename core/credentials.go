package core

import "context"

// CredentialsKind discriminates the payload carried by a Credentials value.
type CredentialsKind int

const (
	// CredentialsToken is an opaque bearer token or authorization code.
	CredentialsToken CredentialsKind = iota
	// CredentialsPassword is a username/password pair.
	CredentialsPassword
	// CredentialsTicket is a service ticket (CAS style).
	CredentialsTicket
	// CredentialsAssertion is a raw assertion payload (SAML style).
	CredentialsAssertion
)

// Credentials is the protocol-neutral envelope holding whatever a client
// extracted from the request, pending validation. Single-request lifetime.
type Credentials struct {
	Kind      CredentialsKind
	Token     string
	Username  string
	Password  string
	Ticket    string
	Assertion []byte

	// Profile is attached by the authenticator once validation succeeds.
	Profile *UserProfile
}

// TokenCredentials builds token credentials.
func TokenCredentials(token string) *Credentials {
	return &Credentials{Kind: CredentialsToken, Token: token}
}

// PasswordCredentials builds username/password credentials.
func PasswordCredentials(username, password string) *Credentials {
	return &Credentials{Kind: CredentialsPassword, Username: username, Password: password}
}

// TicketCredentials builds ticket credentials.
func TicketCredentials(ticket string) *Credentials {
	return &Credentials{Kind: CredentialsTicket, Ticket: ticket}
}

// CredentialsExtractor pulls raw credentials out of a request. A nil
// result with a nil error means no credentials were present, which the
// orchestrators treat as "authentication not completed", not a failure.
type CredentialsExtractor interface {
	Extract(web WebContext, store SessionStore) (*Credentials, error)
}

// ExtractorFunc adapts a function to the CredentialsExtractor interface.
type ExtractorFunc func(web WebContext, store SessionStore) (*Credentials, error)

// Extract implements CredentialsExtractor.
func (f ExtractorFunc) Extract(web WebContext, store SessionStore) (*Credentials, error) {
	return f(web, store)
}

// Authenticator validates credentials against the identity source,
// attaching or enriching the profile on the credentials. Remote
// authenticators must honour ctx for timeouts.
type Authenticator interface {
	Validate(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) error

// Validate implements Authenticator.
func (f AuthenticatorFunc) Validate(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) error {
	return f(ctx, creds, web, store)
}

// ProfileCreator turns validated credentials into a user profile. The
// default creator simply hands back the profile the authenticator attached.
type ProfileCreator interface {
	Create(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) (*UserProfile, error)
}

// ProfileCreatorFunc adapts a function to the ProfileCreator interface.
type ProfileCreatorFunc func(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) (*UserProfile, error)

// Create implements ProfileCreator.
func (f ProfileCreatorFunc) Create(ctx context.Context, creds *Credentials, web WebContext, store SessionStore) (*UserProfile, error) {
	return f(ctx, creds, web, store)
}

// AuthorizationGenerator post-processes a freshly created profile, deriving
// roles and permissions from its attributes.
type AuthorizationGenerator func(web WebContext, profile *UserProfile) (*UserProfile, error)
