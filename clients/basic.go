package clients

import (
	"encoding/base64"
	"strings"

	"authgate/core"
)

// NewBasicAuthClient builds a direct client validating HTTP Basic
// credentials with the given authenticator (bcrypt table, LDAP bind).
func NewBasicAuthClient(name string, authenticator core.Authenticator) (*core.Client, error) {
	if name == "" {
		return nil, core.NewError(core.KindConfig, "basic auth client requires a name")
	}
	if authenticator == nil {
		return nil, core.NewError(core.KindConfig, "basic auth client requires an authenticator")
	}
	return core.NewDirectClient(name,
		core.ExtractorFunc(extractBasicAuth),
		authenticator,
	), nil
}

func extractBasicAuth(web core.WebContext, _ core.SessionStore) (*core.Credentials, error) {
	header := web.Header("Authorization")
	const prefix = "Basic "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return nil, core.WrapError(core.KindValidation, "malformed basic auth header", err)
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok || username == "" {
		return nil, core.NewError(core.KindValidation, "malformed basic auth credentials")
	}
	return core.PasswordCredentials(username, password), nil
}
