package webhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/core"
	"authgate/store"
)

// ticketClient is an indirect client against a scripted provider that
// accepts a single known ticket.
func ticketClient(name, providerURL, goodTicket string) *core.Client {
	redirect := core.RedirectionBuilderFunc(func(_ core.WebContext, _ core.SessionStore, state string) (core.Action, error) {
		return core.Redirect(providerURL + "?state=" + url.QueryEscape(state)), nil
	})
	extractor := core.ExtractorFunc(func(web core.WebContext, _ core.SessionStore) (*core.Credentials, error) {
		if ticket := web.Param("ticket"); ticket != "" {
			return core.TicketCredentials(ticket), nil
		}
		return nil, nil
	})
	authenticator := core.AuthenticatorFunc(func(_ context.Context, creds *core.Credentials, _ core.WebContext, _ core.SessionStore) error {
		if creds.Ticket != goodTicket {
			return core.NewError(core.KindValidation, "bad ticket")
		}
		profile := core.NewProfile(name)
		profile.SetID("jdoe")
		creds.Profile = profile
		return nil
	})
	return core.NewIndirectClient(name, redirect, extractor, authenticator)
}

// tokenClient is a direct client mapping X-Token header values to ids.
func tokenClient(name string, tokens map[string]string) *core.Client {
	extractor := core.ExtractorFunc(func(web core.WebContext, _ core.SessionStore) (*core.Credentials, error) {
		if token := web.Header("X-Token"); token != "" {
			return core.TokenCredentials(token), nil
		}
		return nil, nil
	})
	authenticator := core.AuthenticatorFunc(func(_ context.Context, creds *core.Credentials, _ core.WebContext, _ core.SessionStore) error {
		id, ok := tokens[creds.Token]
		if !ok {
			return core.NewError(core.KindValidation, "unknown token")
		}
		profile := core.NewProfile(name)
		profile.SetID(id)
		creds.Profile = profile
		return nil
	})
	return core.NewDirectClient(name, extractor, authenticator)
}

func newAdapter(t *testing.T, clients ...*core.Client) (*Adapter, *store.MemoryStore) {
	t.Helper()
	registry, err := core.NewClients(clients...)
	require.NoError(t, err)
	sessions := store.NewMemoryStore(time.Hour)
	cfg := &core.Config{
		Clients:      registry,
		Authorizers:  map[string]core.Authorizer{"admin": core.RequireRole("admin")},
		SessionStore: sessions,
	}
	return &Adapter{
		Security: core.NewSecurityLogic(cfg),
		Callback: core.NewCallbackLogic(cfg, nil),
		Logout:   core.NewLogoutLogic(cfg),
	}, sessions
}

// carryCookies moves the session cookie of a previous response onto the
// next request, standing in for the browser.
func carryCookies(r *http.Request, from *httptest.ResponseRecorder) {
	for _, cookie := range from.Result().Cookies() {
		if cookie.MaxAge >= 0 {
			r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("protected"))
	})
}

func TestWriteAction(t *testing.T) {
	tests := []struct {
		name       string
		action     core.Action
		wantCode   int
		wantHeader string
	}{
		{"redirect", core.Redirect("/login"), http.StatusFound, "/login"},
		{"form post", core.FormPost("<form/>"), http.StatusOK, ""},
		{"ok", core.OK("hello"), http.StatusOK, ""},
		{"unauthorized", core.Unauthorized(), http.StatusUnauthorized, ""},
		{"forbidden", core.Forbidden(), http.StatusForbidden, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
			WriteAction(w, r, tc.action)
			assert.Equal(t, tc.wantCode, w.Code)
			if tc.wantHeader != "" {
				assert.Equal(t, tc.wantHeader, w.Header().Get("Location"))
			}
		})
	}

	// Grant leaves the response untouched for the wrapped handler.
	w := httptest.NewRecorder()
	WriteAction(w, httptest.NewRequest(http.MethodGet, "http://x/", nil), core.Grant())
	assert.Empty(t, w.Body.String())
}

func TestSecureFullLoginRoundTrip(t *testing.T) {
	adapter, _ := newAdapter(t, ticketClient("cas", "https://idp.example.com/login", "ST-1"))
	protected := adapter.Secure("cas", "")(okHandler())

	// Anonymous request: redirected to the provider, session cookie set.
	first := httptest.NewRecorder()
	protected.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "http://app.example.com/reports", nil))
	require.Equal(t, http.StatusFound, first.Code)

	location, err := url.Parse(first.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	// Provider sends the user back with a valid ticket.
	callback := httptest.NewRequest(http.MethodGet,
		"http://app.example.com/callback?client_name=cas&state="+url.QueryEscape(state)+"&ticket=ST-1", nil)
	carryCookies(callback, first)
	second := httptest.NewRecorder()
	adapter.CallbackHandler("/")(second, callback)
	require.Equal(t, http.StatusFound, second.Code)
	assert.Equal(t, "http://app.example.com/reports", second.Header().Get("Location"))

	// The retried request passes through to the protected handler.
	retry := httptest.NewRequest(http.MethodGet, "http://app.example.com/reports", nil)
	carryCookies(retry, first)
	third := httptest.NewRecorder()
	protected.ServeHTTP(third, retry)
	assert.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, "protected", third.Body.String())
}

func TestSecureForgedState(t *testing.T) {
	adapter, _ := newAdapter(t, ticketClient("cas", "https://idp.example.com/login", "ST-1"))
	protected := adapter.Secure("cas", "")(okHandler())

	first := httptest.NewRecorder()
	protected.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "http://app.example.com/reports", nil))
	require.Equal(t, http.StatusFound, first.Code)

	callback := httptest.NewRequest(http.MethodGet,
		"http://app.example.com/callback?client_name=cas&state=forged&ticket=ST-1", nil)
	carryCookies(callback, first)
	second := httptest.NewRecorder()
	adapter.CallbackHandler("/")(second, callback)
	assert.Equal(t, http.StatusUnauthorized, second.Code)
}

func TestSecureDirectToken(t *testing.T) {
	adapter, _ := newAdapter(t, tokenClient("api", map[string]string{"tok": "alice"}))
	protected := adapter.Secure("api", "")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "http://app.example.com/api", nil)
	r.Header.Set("X-Token", "tok")
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	r = httptest.NewRequest(http.MethodGet, "http://app.example.com/api", nil)
	r.Header.Set("X-Token", "wrong")
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://app.example.com/api", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecureMisconfigurationIs500(t *testing.T) {
	adapter, _ := newAdapter(t, tokenClient("api", nil))
	protected := adapter.Secure("ghost", "")(okHandler())

	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://app.example.com/api", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLogoutHandler(t *testing.T) {
	adapter, _ := newAdapter(t, ticketClient("cas", "https://idp", "ST-1"))
	handler := adapter.LogoutHandler("/bye", `^https://app\.example\.com/.*$`)

	r := httptest.NewRequest(http.MethodGet, "http://app.example.com/logout", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	handler(w, r)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/bye", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Less(t, cookies[len(cookies)-1].MaxAge, 0, "logout expires the session cookie")

	// A requested target matching the pattern wins over the default.
	r = httptest.NewRequest(http.MethodGet, "http://app.example.com/logout?url=https://app.example.com/done", nil)
	w = httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, "https://app.example.com/done", w.Header().Get("Location"))

	// One outside the pattern falls back.
	r = httptest.NewRequest(http.MethodGet, "http://app.example.com/logout?url=https://evil.example.org/", nil)
	w = httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, "/bye", w.Header().Get("Location"))
}

func TestBackChannelLogoutHandler(t *testing.T) {
	adapter, sessions := newAdapter(t, ticketClient("cas", "https://idp", "ST-1"))
	index := store.NewMemoryIndex()

	// Seed a live session and bind a protocol key to it.
	seed := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	web := NewContext(httptest.NewRecorder(), seed, CookieOptions{})
	sessions.Set(web, "k", "v")
	require.NoError(t, index.Bind(context.Background(), "sid-1", web.SessionID()))

	handler := adapter.BackChannelLogoutHandler(index, sessions, func(r *http.Request) string {
		return r.URL.Query().Get("sid")
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "http://app.example.com/logout/backchannel?sid=sid-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// The session is gone even though the cookie was never involved.
	stale := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	stale.AddCookie(&http.Cookie{Name: SessionCookieName, Value: web.SessionID()})
	_, ok := sessions.Get(NewContext(httptest.NewRecorder(), stale, CookieOptions{}), "k")
	assert.False(t, ok)

	// Unverifiable notifications are rejected.
	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "http://app.example.com/logout/backchannel", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
