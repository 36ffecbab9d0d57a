package core

// WebContext gives uniform access to the current request and response,
// independent of the hosting web framework. One instance per request.
type WebContext interface {
	// Method returns the HTTP request method.
	Method() string

	// FullURL returns the complete requested URL including the query string.
	FullURL() string

	// Header returns the first value of a request header, or "".
	Header(name string) string

	// Param returns the first value of a query or form parameter, or "".
	Param(name string) string

	// Params returns all query and form parameters.
	Params() map[string][]string

	// Body returns the raw request body. Callers may invoke it repeatedly.
	Body() string

	// SetResponseHeader mutates the pending response.
	SetResponseHeader(name, value string)

	// SetStatus sets the pending response status code.
	SetStatus(code int)
}

// SessionStore is the per-user keyed store backing profile persistence and
// state binding. Implementations must behave identically whether the data
// lives in process memory or in a shared backend; the pipeline only assumes
// per-key last-write-wins semantics.
type SessionStore interface {
	// Get returns the value stored under key for the request's session.
	Get(ctx WebContext, key string) (any, bool)

	// Set stores value under key, creating the session lazily on first
	// write. A nil value removes the entry.
	Set(ctx WebContext, key string, value any)

	// ID returns the session identifier, creating the session when create
	// is true. Returns "" when no session exists and create is false.
	ID(ctx WebContext, create bool) string

	// Destroy terminates the request's session and all its entries.
	Destroy(ctx WebContext) bool

	// Renew replaces the session identifier while keeping the entries,
	// guarding against session fixation after login.
	Renew(ctx WebContext) bool
}
