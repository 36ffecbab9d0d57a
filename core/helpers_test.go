package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// fakeWeb is a scripted WebContext for pipeline tests.
type fakeWeb struct {
	method  string
	url     string
	headers map[string]string
	params  url.Values
	body    string

	status      int
	respHeaders map[string]string
}

func newFakeWeb(method, rawURL string) *fakeWeb {
	w := &fakeWeb{
		method:      method,
		url:         rawURL,
		headers:     make(map[string]string),
		params:      url.Values{},
		respHeaders: make(map[string]string),
	}
	if u, err := url.Parse(rawURL); err == nil {
		w.params = u.Query()
	}
	return w
}

func (w *fakeWeb) Method() string            { return w.method }
func (w *fakeWeb) FullURL() string           { return w.url }
func (w *fakeWeb) Header(name string) string { return w.headers[name] }
func (w *fakeWeb) Param(name string) string  { return w.params.Get(name) }
func (w *fakeWeb) Params() map[string][]string {
	out := map[string][]string{}
	for k, v := range w.params {
		out[k] = v
	}
	return out
}
func (w *fakeWeb) Body() string                         { return w.body }
func (w *fakeWeb) SetResponseHeader(name, value string) { w.respHeaders[name] = value }
func (w *fakeWeb) SetStatus(code int)                   { w.status = code }

// mapStore is a single-session SessionStore recording its traffic.
type mapStore struct {
	values    map[string]any
	id        string
	destroyed bool
	renewed   bool
	gets      int
	sets      int
}

func newMapStore() *mapStore {
	return &mapStore{values: make(map[string]any), id: "session-1"}
}

func (s *mapStore) Get(_ WebContext, key string) (any, bool) {
	s.gets++
	v, ok := s.values[key]
	return v, ok
}

func (s *mapStore) Set(_ WebContext, key string, value any) {
	s.sets++
	if value == nil {
		delete(s.values, key)
		return
	}
	s.values[key] = value
}

func (s *mapStore) ID(_ WebContext, create bool) string {
	if s.destroyed && !create {
		return ""
	}
	return s.id
}

func (s *mapStore) Destroy(_ WebContext) bool {
	s.destroyed = true
	s.values = make(map[string]any)
	return true
}

func (s *mapStore) Renew(_ WebContext) bool {
	s.renewed = true
	s.id = s.id + "r"
	return true
}

// testIndirectClient builds an indirect client against a scripted
// provider: the redirect goes to providerURL and the callback must carry
// ticket=goodTicket.
func testIndirectClient(name, providerURL, goodTicket string) *Client {
	redirect := RedirectionBuilderFunc(func(_ WebContext, _ SessionStore, state string) (Action, error) {
		return Redirect(providerURL + "?state=" + url.QueryEscape(state)), nil
	})
	extractor := ExtractorFunc(func(web WebContext, _ SessionStore) (*Credentials, error) {
		ticket := web.Param("ticket")
		if ticket == "" {
			return nil, nil
		}
		return TicketCredentials(ticket), nil
	})
	authenticator := AuthenticatorFunc(func(_ context.Context, creds *Credentials, _ WebContext, _ SessionStore) error {
		if creds.Ticket != goodTicket {
			return NewError(KindValidation, "bad ticket")
		}
		profile := NewProfile(name)
		profile.SetID("jdoe")
		profile.SetAttribute("ticket", creds.Ticket)
		creds.Profile = profile
		return nil
	})
	return NewIndirectClient(name, redirect, extractor, authenticator)
}

// testDirectClient builds a direct client mapping X-Token header values to
// profile ids via tokens.
func testDirectClient(name string, tokens map[string]string) *Client {
	extractor := ExtractorFunc(func(web WebContext, _ SessionStore) (*Credentials, error) {
		token := web.Header("X-Token")
		if token == "" {
			return nil, nil
		}
		return TokenCredentials(token), nil
	})
	authenticator := AuthenticatorFunc(func(_ context.Context, creds *Credentials, _ WebContext, _ SessionStore) error {
		id, ok := tokens[creds.Token]
		if !ok {
			return NewError(KindValidation, "unknown token")
		}
		profile := NewProfile(name)
		profile.SetID(id)
		creds.Profile = profile
		return nil
	})
	return NewDirectClient(name, extractor, authenticator)
}

func testConfig(store SessionStore, clients ...*Client) *Config {
	registry, err := NewClients(clients...)
	if err != nil {
		panic(fmt.Sprintf("test registry: %v", err))
	}
	return &Config{
		Clients:      registry,
		Authorizers:  map[string]Authorizer{},
		SessionStore: store,
	}
}

func stateFromRedirect(action Action) string {
	u, err := url.Parse(action.Location)
	if err != nil {
		return ""
	}
	return u.Query().Get("state")
}

func callbackWeb(clientName, state, ticket string) *fakeWeb {
	raw := "http://app.example.com/callback?client_name=" + clientName
	if state != "" {
		raw += "&state=" + url.QueryEscape(state)
	}
	if ticket != "" {
		raw += "&ticket=" + url.QueryEscape(ticket)
	}
	web := newFakeWeb("GET", raw)
	if !strings.Contains(raw, "client_name") {
		panic("callback web without client name")
	}
	return web
}
