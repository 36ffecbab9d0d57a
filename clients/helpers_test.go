package clients

import (
	"context"
	"net/url"

	"authgate/core"
)

// fakeWeb is a scripted core.WebContext for client tests.
type fakeWeb struct {
	method  string
	url     string
	headers map[string]string
	params  url.Values
}

func newFakeWeb(method, rawURL string) *fakeWeb {
	w := &fakeWeb{
		method:  method,
		url:     rawURL,
		headers: make(map[string]string),
		params:  url.Values{},
	}
	if u, err := url.Parse(rawURL); err == nil {
		w.params = u.Query()
	}
	return w
}

func (w *fakeWeb) Method() string                { return w.method }
func (w *fakeWeb) FullURL() string               { return w.url }
func (w *fakeWeb) Header(name string) string     { return w.headers[name] }
func (w *fakeWeb) Param(name string) string      { return w.params.Get(name) }
func (w *fakeWeb) Params() map[string][]string   { return w.params }
func (w *fakeWeb) Body() string                  { return "" }
func (w *fakeWeb) SetResponseHeader(_, _ string) {}
func (w *fakeWeb) SetStatus(int)                 {}

// mapStore is a single-session core.SessionStore.
type mapStore struct {
	values map[string]any
}

func newMapStore() *mapStore {
	return &mapStore{values: make(map[string]any)}
}

func (s *mapStore) Get(_ core.WebContext, key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *mapStore) Set(_ core.WebContext, key string, value any) {
	if value == nil {
		delete(s.values, key)
		return
	}
	s.values[key] = value
}

func (s *mapStore) ID(core.WebContext, bool) string { return "session-1" }
func (s *mapStore) Destroy(core.WebContext) bool    { return true }
func (s *mapStore) Renew(core.WebContext) bool      { return true }

// stateFor walks the redirect leg so a callback with a valid state token
// can be constructed.
func stateFor(client *core.Client, store core.SessionStore) (string, error) {
	action, err := client.RedirectionAction(context.Background(), newFakeWeb("GET", "http://app.example.com/p"), store)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(action.Location)
	if err != nil {
		return "", err
	}
	return u.Query().Get("state"), nil
}
