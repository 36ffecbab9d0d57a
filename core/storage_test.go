package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStorageDecision(t *testing.T) {
	decision := DefaultStorageDecision{}
	web := newFakeWeb("GET", "http://app.example.com/p")
	direct := testDirectClient("api", nil)
	clients := []*Client{direct}
	profile := NewProfile("api")
	profile.SetID("a")

	assert.True(t, decision.MustLoadFromSession(web, clients))
	assert.False(t, decision.MustSaveToSession(web, clients, direct, profile))
}

func TestAlwaysSaveStorageDecision(t *testing.T) {
	decision := AlwaysSaveStorageDecision{}
	web := newFakeWeb("GET", "http://app.example.com/p")
	direct := testDirectClient("api", nil)

	assert.True(t, decision.MustLoadFromSession(web, nil))
	assert.True(t, decision.MustSaveToSession(web, nil, direct, nil))
}

func TestProfileManagerSaveAndGet(t *testing.T) {
	web := newFakeWeb("GET", "http://app.example.com/p")
	store := newMapStore()

	manager := NewProfileManager(web, store)
	profile := NewProfile("oidc")
	profile.SetID("jdoe")
	manager.Save(true, profile, false)

	// A fresh manager for the next request reads it back from the session.
	next := NewProfileManager(web, store)
	got := next.Get(true)
	require.NotNil(t, got)
	assert.Equal(t, "jdoe", got.ID())
}

func TestProfileManagerNoSessionWrite(t *testing.T) {
	web := newFakeWeb("GET", "http://app.example.com/p")
	store := newMapStore()

	manager := NewProfileManager(web, store)
	profile := NewProfile("api")
	profile.SetID("a")
	manager.Save(false, profile, false)

	// Held for this request only.
	assert.Equal(t, "a", manager.Get(false).ID())
	next := NewProfileManager(web, store)
	assert.Nil(t, next.Get(true))
}

func TestProfileManagerMultiProfile(t *testing.T) {
	web := newFakeWeb("GET", "http://app.example.com/p")
	store := newMapStore()

	first := NewProfile("oidc")
	first.SetID("jdoe")
	second := NewProfile("form")
	second.SetID("jdoe")

	manager := NewProfileManager(web, store)
	manager.Save(true, first, true)
	manager.Save(true, second, true)
	assert.Len(t, manager.All(true), 2)

	// Without multi-profile the second login replaces the first.
	manager = NewProfileManager(web, store)
	manager.Save(true, first, false)
	manager.Save(true, second, false)
	all := NewProfileManager(web, store).All(true)
	require.Len(t, all, 1)
	assert.Contains(t, all, "form")
}

func TestProfileManagerRemove(t *testing.T) {
	web := newFakeWeb("GET", "http://app.example.com/p")
	store := newMapStore()

	profile := NewProfile("oidc")
	profile.SetID("jdoe")
	NewProfileManager(web, store).Save(true, profile, false)

	manager := NewProfileManager(web, store)
	manager.Remove("oidc")
	assert.Nil(t, NewProfileManager(web, store).Get(true))
	_, held := store.values[ProfilesSessionKey]
	assert.False(t, held, "removing the last profile clears the session key")
}

func TestProfileManagerDropsExpired(t *testing.T) {
	web := newFakeWeb("GET", "http://app.example.com/p")
	store := newMapStore()

	live := NewProfile("oidc")
	live.SetID("live")
	stale := NewProfile("form")
	stale.SetID("stale")
	stale.SetExpiration(time.Now().Add(-time.Minute))

	manager := NewProfileManager(web, store)
	manager.Save(true, live, true)
	manager.Save(true, stale, true)

	all := NewProfileManager(web, store).All(true)
	require.Len(t, all, 1)
	assert.Contains(t, all, "oidc")
}

func TestProfileManagerIgnoresEmptyProfile(t *testing.T) {
	web := newFakeWeb("GET", "http://app.example.com/p")
	store := newMapStore()

	manager := NewProfileManager(web, store)
	manager.Save(true, nil, false)
	manager.Save(true, NewProfile("oidc"), false)
	assert.Nil(t, NewProfileManager(web, store).Get(true))
}
