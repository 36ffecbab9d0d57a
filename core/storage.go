package core

// ProfilesSessionKey is the single session key under which the profile map
// lives. Keeping all profiles under one key makes the write atomic against
// shared session backends that only guarantee per-key last-write-wins.
const ProfilesSessionKey = "authgate.profiles"

// ProfileStorageDecision decides, per request, whether authenticated
// identity is read from and written to the session. Implementations hold
// no mutable state.
type ProfileStorageDecision interface {
	// MustLoadFromSession reports whether existing profiles should be
	// looked up in the session for this request.
	MustLoadFromSession(web WebContext, clients []*Client) bool

	// MustSaveToSession reports whether the result of a direct client
	// authentication should be persisted into the session.
	MustSaveToSession(web WebContext, clients []*Client, direct *Client, profile *UserProfile) bool
}

// DefaultStorageDecision always loads from session and never persists a
// direct client's result: header/token auth stays stateless by default
// while indirect logins are always session-backed.
type DefaultStorageDecision struct{}

// MustLoadFromSession implements ProfileStorageDecision.
func (DefaultStorageDecision) MustLoadFromSession(WebContext, []*Client) bool { return true }

// MustSaveToSession implements ProfileStorageDecision.
func (DefaultStorageDecision) MustSaveToSession(WebContext, []*Client, *Client, *UserProfile) bool {
	return false
}

// AlwaysSaveStorageDecision persists direct and indirect results uniformly,
// for deployments mixing both kinds that must share identity across
// request types.
type AlwaysSaveStorageDecision struct{}

// MustLoadFromSession implements ProfileStorageDecision.
func (AlwaysSaveStorageDecision) MustLoadFromSession(WebContext, []*Client) bool { return true }

// MustSaveToSession implements ProfileStorageDecision.
func (AlwaysSaveStorageDecision) MustSaveToSession(WebContext, []*Client, *Client, *UserProfile) bool {
	return true
}

// ProfileManager is the per-request façade reading and writing user
// profiles to the session, keyed by client name. One manager per request.
type ProfileManager struct {
	web      WebContext
	store    SessionStore
	profiles map[string]*UserProfile
}

// NewProfileManager builds a manager for the current request.
func NewProfileManager(web WebContext, store SessionStore) *ProfileManager {
	return &ProfileManager{web: web, store: store}
}

func (m *ProfileManager) load(readFromSession bool) map[string]*UserProfile {
	if !readFromSession {
		if m.profiles == nil {
			m.profiles = make(map[string]*UserProfile)
		}
		return m.profiles
	}
	raw, ok := m.store.Get(m.web, ProfilesSessionKey)
	if !ok {
		if m.profiles == nil {
			m.profiles = make(map[string]*UserProfile)
		}
		return m.profiles
	}
	stored, ok := raw.(map[string]*UserProfile)
	if !ok {
		stored = make(map[string]*UserProfile)
	}
	if m.profiles == nil {
		m.profiles = make(map[string]*UserProfile, len(stored))
	}
	for name, p := range stored {
		if _, held := m.profiles[name]; !held {
			m.profiles[name] = p
		}
	}
	return m.profiles
}

// All returns the current profiles, merging session-held ones when
// readFromSession is true. Expired profiles are dropped.
func (m *ProfileManager) All(readFromSession bool) map[string]*UserProfile {
	profiles := m.load(readFromSession)
	out := make(map[string]*UserProfile, len(profiles))
	for name, p := range profiles {
		if p == nil || p.Expired() {
			continue
		}
		out[name] = p
	}
	return out
}

// Get returns the first non-expired profile, or nil.
func (m *ProfileManager) Get(readFromSession bool) *UserProfile {
	for _, p := range m.All(readFromSession) {
		return p
	}
	return nil
}

// Save records a profile under its client name. With multiProfile false
// any previously held profiles are dropped first (single active login).
// When saveToSession is true the whole map is written back under one key.
func (m *ProfileManager) Save(saveToSession bool, profile *UserProfile, multiProfile bool) {
	if profile == nil || profile.ID() == "" {
		return
	}
	profiles := m.load(saveToSession)
	if !multiProfile {
		for name := range profiles {
			delete(profiles, name)
		}
	}
	profiles[profile.ClientName()] = profile
	if saveToSession {
		m.store.Set(m.web, ProfilesSessionKey, profiles)
	}
}

// Remove drops the profile of one client. Writing the shrunk map back is
// equivalent to removing the entry.
func (m *ProfileManager) Remove(clientName string) {
	profiles := m.load(true)
	delete(profiles, clientName)
	if len(profiles) == 0 {
		m.store.Set(m.web, ProfilesSessionKey, nil)
		return
	}
	m.store.Set(m.web, ProfilesSessionKey, profiles)
}

// RemoveAll drops every stored profile.
func (m *ProfileManager) RemoveAll() {
	m.profiles = make(map[string]*UserProfile)
	m.store.Set(m.web, ProfilesSessionKey, nil)
}
