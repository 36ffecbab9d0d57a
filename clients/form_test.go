package clients

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/core"
)

func formClient(t *testing.T) *core.Client {
	t.Helper()
	authenticator := NewMemoryPasswordAuthenticator("form", bcryptUsers(t, map[string]string{"jdoe": "s3cret"}))
	client, err := NewFormClient(FormConfig{Name: "form", LoginURL: "https://app.example.com/login"}, authenticator)
	require.NoError(t, err)
	return client
}

func formCallbackWeb(state, username, password string) *fakeWeb {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if username != "" {
		q.Set("username", username)
	}
	if password != "" {
		q.Set("password", password)
	}
	return newFakeWeb("POST", "https://app.example.com/callback/form?"+q.Encode())
}

func TestFormRedirectCarriesState(t *testing.T) {
	client := formClient(t)
	store := newMapStore()

	action, err := client.RedirectionAction(context.Background(), newFakeWeb("GET", "https://app.example.com/p"), store)
	require.NoError(t, err)

	location, err := url.Parse(action.Location)
	require.NoError(t, err)
	assert.Equal(t, "/login", location.Path)

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, state, store.values["form.state"], "the login form gets the same token the session holds")
}

func TestFormLoginHappyPath(t *testing.T) {
	client := formClient(t)
	store := newMapStore()
	state, err := stateFor(client, store)
	require.NoError(t, err)

	web := formCallbackWeb(state, "jdoe", "s3cret")
	creds, err := client.Credentials(context.Background(), web, store)
	require.NoError(t, err)
	require.NotNil(t, creds)

	profile, err := client.Profile(context.Background(), creds, web, store)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", profile.ID())
}

func TestFormLoginBadPassword(t *testing.T) {
	client := formClient(t)
	store := newMapStore()
	state, err := stateFor(client, store)
	require.NoError(t, err)

	_, err = client.Credentials(context.Background(), formCallbackWeb(state, "jdoe", "wrong"), store)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestFormLoginMissingField(t *testing.T) {
	client := formClient(t)
	store := newMapStore()
	state, err := stateFor(client, store)
	require.NoError(t, err)

	_, err = client.Credentials(context.Background(), formCallbackWeb(state, "jdoe", ""), store)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestFormLoginEmptySubmission(t *testing.T) {
	client := formClient(t)
	store := newMapStore()
	state, err := stateFor(client, store)
	require.NoError(t, err)

	creds, err := client.Credentials(context.Background(), formCallbackWeb(state, "", ""), store)
	require.NoError(t, err)
	assert.Nil(t, creds, "an empty form means the login was not attempted")
}

func TestFormLoginGetIgnored(t *testing.T) {
	client := formClient(t)
	store := newMapStore()
	state, err := stateFor(client, store)
	require.NoError(t, err)

	web := newFakeWeb("GET", "https://app.example.com/callback/form?state="+url.QueryEscape(state))
	creds, err := client.Credentials(context.Background(), web, store)
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestFormConfigValidation(t *testing.T) {
	authenticator := NewMemoryPasswordAuthenticator("form", nil)

	_, err := NewFormClient(FormConfig{LoginURL: "https://x/login"}, authenticator)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfig))

	_, err = NewFormClient(FormConfig{Name: "form"}, authenticator)
	require.Error(t, err)

	_, err = NewFormClient(FormConfig{Name: "form", LoginURL: "https://x/login"}, nil)
	require.Error(t, err)
}
