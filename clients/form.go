package clients

import (
	"net/http"
	"net/url"

	"authgate/core"
)

// FormConfig configures a form-login indirect client. The login page is
// application-owned; it must POST the username, password and the state
// token back to the callback URL.
type FormConfig struct {
	Name     string
	LoginURL string

	// UsernameParameter and PasswordParameter name the form fields,
	// defaulting to "username" and "password".
	UsernameParameter string
	PasswordParameter string
}

// NewFormClient builds an indirect client backed by an HTML login form.
// The state token doubles as the form's CSRF token.
func NewFormClient(cfg FormConfig, authenticator core.Authenticator) (*core.Client, error) {
	if cfg.Name == "" || cfg.LoginURL == "" {
		return nil, core.NewError(core.KindConfig, "form client requires a name and login url")
	}
	if authenticator == nil {
		return nil, core.NewError(core.KindConfig, "form client requires an authenticator")
	}
	if cfg.UsernameParameter == "" {
		cfg.UsernameParameter = "username"
	}
	if cfg.PasswordParameter == "" {
		cfg.PasswordParameter = "password"
	}

	redirect := core.RedirectionBuilderFunc(func(_ core.WebContext, _ core.SessionStore, state string) (core.Action, error) {
		login, err := url.Parse(cfg.LoginURL)
		if err != nil {
			return core.Action{}, core.WrapError(core.KindConfig, "invalid login url", err)
		}
		q := login.Query()
		q.Set("state", state)
		login.RawQuery = q.Encode()
		return core.Redirect(login.String()), nil
	})

	extractor := core.ExtractorFunc(func(web core.WebContext, _ core.SessionStore) (*core.Credentials, error) {
		if web.Method() != http.MethodPost {
			return nil, nil
		}
		username := web.Param(cfg.UsernameParameter)
		password := web.Param(cfg.PasswordParameter)
		if username == "" && password == "" {
			return nil, nil
		}
		if username == "" || password == "" {
			return nil, core.NewError(core.KindValidation, "username and password required")
		}
		return core.PasswordCredentials(username, password), nil
	})

	return core.NewIndirectClient(cfg.Name, redirect, extractor, authenticator), nil
}
