package core

import "net/http"

// ActionKind discriminates the Action vocabulary handed back to the
// framework adapter.
type ActionKind int

const (
	// ActionGrant signals that access is granted and the wrapped handler
	// should run. It carries no HTTP response of its own.
	ActionGrant ActionKind = iota
	// ActionRedirect is an HTTP 302 to Location.
	ActionRedirect
	// ActionFormPost is a 200 response whose body is an auto-submitting
	// HTML form, used to replay saved POST requests.
	ActionFormPost
	// ActionOK is a plain 200 with an optional body.
	ActionOK
	// ActionStatus is a bare status code response.
	ActionStatus
)

// Action is the only result vocabulary the host framework must translate
// into a real HTTP response.
type Action struct {
	Kind     ActionKind
	Code     int
	Location string
	Content  string
}

// Redirect builds a 302 action to location.
func Redirect(location string) Action {
	return Action{Kind: ActionRedirect, Code: http.StatusFound, Location: location}
}

// FormPost builds a 200 action carrying an auto-submitting HTML form.
func FormPost(html string) Action {
	return Action{Kind: ActionFormPost, Code: http.StatusOK, Content: html}
}

// OK builds a 200 action with the given body.
func OK(body string) Action {
	return Action{Kind: ActionOK, Code: http.StatusOK, Content: body}
}

// Status builds a bare status action.
func Status(code int) Action {
	return Action{Kind: ActionStatus, Code: code}
}

// Unauthorized is the 401 action.
func Unauthorized() Action { return Status(http.StatusUnauthorized) }

// Forbidden is the 403 action.
func Forbidden() Action { return Status(http.StatusForbidden) }

// Grant signals that the request may proceed to the protected resource.
func Grant() Action { return Action{Kind: ActionGrant, Code: http.StatusOK} }

// IsGrant reports whether the action lets the request through.
func (a Action) IsGrant() bool { return a.Kind == ActionGrant }
