// Package webhttp adapts the authentication pipeline to net/http and chi:
// a WebContext over the request/response pair, cookie-carried session ids
// and the translation of pipeline Actions into real HTTP responses.
package webhttp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SessionCookieName carries the session id between requests.
const SessionCookieName = "authgate_session"

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

func (o CookieOptions) path() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

// Context is the net/http implementation of core.WebContext. One instance
// per request; it also transports the session id for the stores.
type Context struct {
	w       http.ResponseWriter
	r       *http.Request
	cookies CookieOptions

	sessionID string
	body      string
	bodyRead  bool
}

// NewContext wraps a request/response pair. The session id is picked up
// from the request cookie; stores rotate it through SetSessionID.
func NewContext(w http.ResponseWriter, r *http.Request, cookies CookieOptions) *Context {
	ctx := &Context{w: w, r: r, cookies: cookies}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		ctx.sessionID = cookie.Value
	}
	return ctx
}

// Method implements core.WebContext.
func (c *Context) Method() string { return c.r.Method }

// FullURL implements core.WebContext.
func (c *Context) FullURL() string {
	scheme := "http"
	if c.r.TLS != nil || strings.EqualFold(c.r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.r.Host + c.r.URL.RequestURI()
}

// Header implements core.WebContext.
func (c *Context) Header(name string) string { return c.r.Header.Get(name) }

// Param implements core.WebContext, covering both query and form values.
func (c *Context) Param(name string) string {
	if v := c.r.URL.Query().Get(name); v != "" {
		return v
	}
	if c.r.Method == http.MethodPost {
		if values, err := url.ParseQuery(c.Body()); err == nil {
			return values.Get(name)
		}
	}
	return ""
}

// Params implements core.WebContext.
func (c *Context) Params() map[string][]string {
	out := url.Values{}
	for name, values := range c.r.URL.Query() {
		out[name] = values
	}
	if c.r.Method == http.MethodPost {
		if values, err := url.ParseQuery(c.Body()); err == nil {
			for name, vs := range values {
				out[name] = append(out[name], vs...)
			}
		}
	}
	return out
}

// Body implements core.WebContext. The body is buffered on first read so
// extractors and saved-request handling can both see it.
func (c *Context) Body() string {
	if !c.bodyRead {
		c.bodyRead = true
		if c.r.Body != nil {
			data, err := io.ReadAll(c.r.Body)
			if err == nil {
				c.body = string(data)
			}
			c.r.Body.Close()
		}
	}
	return c.body
}

// SetResponseHeader implements core.WebContext.
func (c *Context) SetResponseHeader(name, value string) { c.w.Header().Set(name, value) }

// SetStatus implements core.WebContext.
func (c *Context) SetStatus(code int) { c.w.WriteHeader(code) }

// SessionID implements store.SessionIDAccessor.
func (c *Context) SessionID() string { return c.sessionID }

// SetSessionID implements store.SessionIDAccessor, writing or clearing the
// session cookie.
func (c *Context) SetSessionID(id string) {
	c.sessionID = id

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     c.cookies.path(),
		Domain:   c.cookies.Domain,
		HttpOnly: true,
		Secure:   c.cookies.Secure,
		SameSite: c.cookies.SameSite,
		MaxAge:   c.cookies.MaxAge,
	}
	if id == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(c.w, cookie)
}

// Context implements store.ContextProvider.
func (c *Context) Context() context.Context { return c.r.Context() }

// Request exposes the underlying request for adapter-level code.
func (c *Context) Request() *http.Request { return c.r }
