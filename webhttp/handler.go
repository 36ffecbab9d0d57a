package webhttp

import (
	"log/slog"
	"net/http"

	"authgate/core"
)

// Adapter turns the pipeline orchestrators into HTTP handlers and
// middleware. One adapter per process.
type Adapter struct {
	Security *core.SecurityLogic
	Callback *core.CallbackLogic
	Logout   *core.LogoutLogic
	Cookies  CookieOptions
	Logger   *slog.Logger
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// WriteAction translates a pipeline Action into the HTTP response. Grant
// actions write nothing; the caller decides what runs next.
func WriteAction(w http.ResponseWriter, r *http.Request, action core.Action) {
	switch action.Kind {
	case core.ActionGrant:
	case core.ActionRedirect:
		http.Redirect(w, r, action.Location, action.Code)
	case core.ActionFormPost:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(action.Code)
		_, _ = w.Write([]byte(action.Content))
	case core.ActionOK:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(action.Content))
	default:
		w.WriteHeader(action.Code)
	}
}

// Secure wraps a handler with access enforcement for the given clients and
// authorizers (both comma-separated, empty clients meaning all).
// Configuration errors fail the request with a 500 and a log line; they
// indicate a broken deployment, not a user mistake.
func (a *Adapter) Secure(clients, authorizers string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			web := NewContext(w, r, a.Cookies)
			action, err := a.Security.Perform(r.Context(), web, clients, authorizers)
			if err != nil {
				a.logger().Error("security misconfiguration", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !action.IsGrant() {
				WriteAction(w, r, action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallbackHandler serves the identity provider's return URL.
func (a *Adapter) CallbackHandler(defaultURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web := NewContext(w, r, a.Cookies)
		action, err := a.Callback.Perform(r.Context(), web, defaultURL)
		if err != nil {
			a.logger().Error("callback misconfiguration", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		WriteAction(w, r, action)
	}
}

// LogoutHandler serves browser-initiated logout. The post-logout target
// may be supplied via the url parameter, admitted against urlPattern.
func (a *Adapter) LogoutHandler(defaultURL, urlPattern string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web := NewContext(w, r, a.Cookies)
		action, err := a.Logout.Perform(r.Context(), web, defaultURL, web.Param("url"), urlPattern)
		if err != nil {
			a.logger().Error("logout misconfiguration", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		WriteAction(w, r, action)
	}
}

// BackChannelLogoutHandler accepts server-to-server logout notifications.
// keyFromRequest performs the protocol-specific verification and returns
// the opaque session key; an empty key rejects the notification.
func (a *Adapter) BackChannelLogoutHandler(index core.SessionKeyIndex, byID core.SessionStoreByID, keyFromRequest func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := keyFromRequest(r)
		if key == "" {
			http.Error(w, "invalid logout notification", http.StatusBadRequest)
			return
		}
		if err := a.Logout.PerformBackChannel(r.Context(), index, byID, key); err != nil {
			a.logger().Error("back-channel logout failed", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
