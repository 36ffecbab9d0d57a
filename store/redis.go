package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authgate/core"
)

const (
	sessionKeyPrefix = "authgate:session:"
	indexKeyPrefix   = "authgate:index:"
)

// RedisStore is a SessionStore over a shared Redis backend, one hash per
// session. Values are JSON-encoded, so profile secrets never reach the
// wire. Per-field writes are last-write-wins, which is all the pipeline
// assumes.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore builds a store whose sessions expire after ttl of
// inactivity.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encodeValue(value any) (string, error) {
	var kind string
	switch value.(type) {
	case string:
		kind = "string"
	case map[string]*core.UserProfile:
		kind = "profiles"
	case *core.SavedRequest:
		kind = "saved"
	default:
		return "", fmt.Errorf("unsupported session value type %T", value)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(envelope{Kind: kind, Data: data})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeValue(raw string) (any, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case "string":
		var s string
		err := json.Unmarshal(env.Data, &s)
		return s, err
	case "profiles":
		profiles := make(map[string]*core.UserProfile)
		err := json.Unmarshal(env.Data, &profiles)
		return profiles, err
	case "saved":
		saved := &core.SavedRequest{}
		err := json.Unmarshal(env.Data, saved)
		return saved, err
	}
	return nil, fmt.Errorf("unknown session value kind %q", env.Kind)
}

func (s *RedisStore) sessionKey(id string) string { return sessionKeyPrefix + id }

// ID implements core.SessionStore.
func (s *RedisStore) ID(web core.WebContext, create bool) string {
	acc := accessor(web)
	if acc == nil {
		return ""
	}
	ctx := requestContext(web)

	if id := acc.SessionID(); id != "" {
		if n, err := s.client.Exists(ctx, s.sessionKey(id)).Result(); err == nil && n > 0 {
			s.client.Expire(ctx, s.sessionKey(id), s.ttl)
			return id
		}
	}
	if !create {
		return ""
	}

	id := newSessionID()
	s.client.HSet(ctx, s.sessionKey(id), "created", fmt.Sprint(time.Now().Unix()))
	s.client.Expire(ctx, s.sessionKey(id), s.ttl)
	acc.SetSessionID(id)
	return id
}

// Get implements core.SessionStore.
func (s *RedisStore) Get(web core.WebContext, key string) (any, bool) {
	id := s.ID(web, false)
	if id == "" {
		return nil, false
	}
	ctx := requestContext(web)

	raw, err := s.client.HGet(ctx, s.sessionKey(id), key).Result()
	if err != nil {
		return nil, false
	}
	value, err := decodeValue(raw)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set implements core.SessionStore.
func (s *RedisStore) Set(web core.WebContext, key string, value any) {
	ctx := requestContext(web)
	if value == nil {
		if id := s.ID(web, false); id != "" {
			s.client.HDel(ctx, s.sessionKey(id), key)
		}
		return
	}

	id := s.ID(web, true)
	if id == "" {
		return
	}
	raw, err := encodeValue(value)
	if err != nil {
		return
	}
	s.client.HSet(ctx, s.sessionKey(id), key, raw)
	s.client.Expire(ctx, s.sessionKey(id), s.ttl)
}

// Destroy implements core.SessionStore.
func (s *RedisStore) Destroy(web core.WebContext) bool {
	acc := accessor(web)
	if acc == nil {
		return false
	}
	id := acc.SessionID()
	if id == "" {
		return false
	}
	s.client.Del(requestContext(web), s.sessionKey(id))
	acc.SetSessionID("")
	return true
}

// Renew implements core.SessionStore.
func (s *RedisStore) Renew(web core.WebContext) bool {
	acc := accessor(web)
	if acc == nil {
		return false
	}
	oldID := acc.SessionID()
	if oldID == "" {
		return false
	}
	ctx := requestContext(web)

	newID := newSessionID()
	if err := s.client.Rename(ctx, s.sessionKey(oldID), s.sessionKey(newID)).Err(); err != nil {
		return false
	}
	s.client.Expire(ctx, s.sessionKey(newID), s.ttl)
	acc.SetSessionID(newID)
	return true
}

// DestroyByID implements core.SessionStoreByID for back-channel logout.
func (s *RedisStore) DestroyByID(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// RedisIndex is a core.SessionKeyIndex over the same Redis backend,
// mapping protocol session keys to local session ids.
type RedisIndex struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisIndex builds an index whose entries expire after ttl.
func NewRedisIndex(client redis.UniversalClient, ttl time.Duration) *RedisIndex {
	return &RedisIndex{client: client, ttl: ttl}
}

// Bind implements core.SessionKeyIndex.
func (i *RedisIndex) Bind(ctx context.Context, key, sessionID string) error {
	return i.client.Set(ctx, indexKeyPrefix+key, sessionID, i.ttl).Err()
}

// Resolve implements core.SessionKeyIndex.
func (i *RedisIndex) Resolve(ctx context.Context, key string) (string, bool) {
	id, err := i.client.Get(ctx, indexKeyPrefix+key).Result()
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Remove implements core.SessionKeyIndex.
func (i *RedisIndex) Remove(ctx context.Context, key string) error {
	return i.client.Del(ctx, indexKeyPrefix+key).Err()
}
