package core

import (
	"fmt"
	"html"
	"net/http"
	"strings"
)

// SavedRequestSessionKey holds the pending original request across the
// login round-trip.
const SavedRequestSessionKey = "authgate.saved_request"

// SavedRequest preserves the originally requested URL and, for POSTs, the
// form body so the request can be replayed after login.
type SavedRequest struct {
	URL    string              `json:"url"`
	Method string              `json:"method"`
	Form   map[string][]string `json:"form,omitempty"`
}

// SavedRequestHandler makes the post-login experience resume exactly where
// the user was. Entries are one-shot: restoring removes them.
type SavedRequestHandler struct{}

// Save stores the current request into the session: the full URL for a
// GET, the target URL plus form body for a POST.
func (SavedRequestHandler) Save(web WebContext, store SessionStore) {
	saved := &SavedRequest{URL: web.FullURL(), Method: web.Method()}
	if web.Method() == http.MethodPost {
		saved.Form = web.Params()
	}
	store.Set(web, SavedRequestSessionKey, saved)
}

// Restore pops the saved entry and builds the action resuming it: a
// redirect for a GET, an auto-submitting form for a POST, a redirect to
// defaultURL when nothing was saved. The entry is removed on read.
func (SavedRequestHandler) Restore(web WebContext, store SessionStore, defaultURL string) Action {
	raw, ok := store.Get(web, SavedRequestSessionKey)
	if !ok {
		return Redirect(defaultURL)
	}
	store.Set(web, SavedRequestSessionKey, nil)

	saved, ok := raw.(*SavedRequest)
	if !ok || saved == nil || saved.URL == "" {
		return Redirect(defaultURL)
	}
	if saved.Method == http.MethodPost {
		return FormPost(buildFormPostPage(saved.URL, saved.Form))
	}
	return Redirect(saved.URL)
}

// buildFormPostPage renders the page reconstituting a saved POST through
// an auto-submitting form.
func buildFormPostPage(target string, form map[string][]string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<body onload=\"document.forms[0].submit()\">\n")
	fmt.Fprintf(&b, "<form method=\"post\" action=\"%s\">\n", html.EscapeString(target))
	for name, values := range form {
		for _, value := range values {
			fmt.Fprintf(&b, "<input type=\"hidden\" name=\"%s\" value=\"%s\"/>\n",
				html.EscapeString(name), html.EscapeString(value))
		}
	}
	b.WriteString("<noscript><input type=\"submit\" value=\"Continue\"/></noscript>\n")
	b.WriteString("</form>\n</body>\n</html>\n")
	return b.String()
}
