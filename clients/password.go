package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/crypto/bcrypt"

	"authgate/core"
)

// NewMemoryPasswordAuthenticator validates username/password credentials
// against bcrypt hashes. users maps username to bcrypt hash.
func NewMemoryPasswordAuthenticator(clientName string, users map[string]string) core.Authenticator {
	return core.AuthenticatorFunc(func(_ context.Context, creds *core.Credentials, _ core.WebContext, _ core.SessionStore) error {
		if creds.Kind != core.CredentialsPassword {
			return core.NewError(core.KindValidation, "password credentials expected")
		}
		hash, ok := users[creds.Username]
		if !ok {
			// Burn a comparison so unknown users cost the same as bad
			// passwords.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B4P1Cp6mO7cWz156SJgaEZ3p6u3u"), []byte(creds.Password))
			return core.NewError(core.KindValidation, "unknown user or bad password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
			return core.NewError(core.KindValidation, "unknown user or bad password")
		}

		profile := core.NewProfile(clientName)
		profile.SetID(creds.Username)
		profile.SetAttribute("username", creds.Username)
		creds.Profile = profile
		return nil
	})
}

// LDAPConfig configures an LDAP bind authenticator.
type LDAPConfig struct {
	// URL in ldap:// or ldaps:// form.
	URL string

	// BindDN and BindPassword authenticate the service account used to
	// locate the user entry. Empty means anonymous search.
	BindDN       string
	BindPassword string

	BaseDN string

	// UserFilter locates the user entry; %s is replaced with the escaped
	// username. Defaults to "(uid=%s)".
	UserFilter string

	// Attributes are copied onto the profile after a successful bind.
	Attributes []string

	// InsecureSkipVerify disables TLS certificate checks for ldaps.
	InsecureSkipVerify bool
}

// NewLDAPAuthenticator validates username/password credentials by binding
// against an LDAP directory. Connection failures surface as upstream
// errors, rejected binds as validation failures.
func NewLDAPAuthenticator(clientName string, cfg LDAPConfig) core.Authenticator {
	filter := cfg.UserFilter
	if filter == "" {
		filter = "(uid=%s)"
	}

	return core.AuthenticatorFunc(func(ctx context.Context, creds *core.Credentials, _ core.WebContext, _ core.SessionStore) error {
		if creds.Kind != core.CredentialsPassword {
			return core.NewError(core.KindValidation, "password credentials expected")
		}
		if creds.Username == "" || creds.Password == "" {
			return core.NewError(core.KindValidation, "username and password required")
		}

		var opts []ldap.DialOpt
		if cfg.InsecureSkipVerify {
			opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
		}
		conn, err := ldap.DialURL(cfg.URL, opts...)
		if err != nil {
			return core.WrapError(core.KindUpstreamUnavailable, "ldap dial failed", err)
		}
		defer conn.Close()

		if deadline, ok := ctx.Deadline(); ok {
			conn.SetTimeout(time.Until(deadline))
		}

		if cfg.BindDN != "" {
			if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
				return core.WrapError(core.KindUpstreamUnavailable, "ldap service bind failed", err)
			}
		}

		search := ldap.NewSearchRequest(
			cfg.BaseDN,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
			fmt.Sprintf(filter, ldap.EscapeFilter(creds.Username)),
			append([]string{"dn"}, cfg.Attributes...),
			nil,
		)
		result, err := conn.Search(search)
		if err != nil {
			return core.WrapError(core.KindUpstreamUnavailable, "ldap search failed", err)
		}
		if len(result.Entries) != 1 {
			return core.NewError(core.KindValidation, "unknown user or bad password")
		}
		entry := result.Entries[0]

		if err := conn.Bind(entry.DN, creds.Password); err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
				return core.NewError(core.KindValidation, "unknown user or bad password")
			}
			return core.WrapError(core.KindUpstreamUnavailable, "ldap user bind failed", err)
		}

		profile := core.NewProfile(clientName)
		profile.SetID(creds.Username)
		profile.SetAttribute("dn", entry.DN)
		for _, name := range cfg.Attributes {
			if values := entry.GetAttributeValues(name); len(values) == 1 {
				profile.SetAttribute(name, values[0])
			} else if len(values) > 1 {
				profile.SetAttribute(name, values)
			}
		}
		creds.Profile = profile
		return nil
	})
}
