// Package redisstore implements store.Store on Redis. Expiry is delegated
// to Redis key TTLs, so expired documents are unreadable without any
// eviction logic of our own.
package redisstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// envelope carries the original TTL next to the document so that a
// refreshing Get can re-extend the key to its full window.
type envelope struct {
	ExpiresIn int64           `json:"_expires_in,omitempty"`
	Doc       json.RawMessage `json:"doc"`
}

func key(collection, id string) string {
	return collection + ":" + id
}

func (s *Store) Insert(ctx context.Context, collection string, doc any, ttl time.Duration) (string, error) {
	id := uuid.New().String()
	payload, err := encode(doc, ttl)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, key(collection, id), payload, ttl).Err(); err != nil {
		return "", errors.Wrap(err, "[redisstore.Insert] set")
	}
	return id, nil
}

func (s *Store) Replace(ctx context.Context, collection, id string, doc any, ttl time.Duration) (bool, error) {
	payload, err := encode(doc, ttl)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetXX(ctx, key(collection, id), payload, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "[redisstore.Replace] setxx")
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, collection, id string, dest any, refresh bool) error {
	raw, err := s.client.Get(ctx, key(collection, id)).Bytes()
	if err == redis.Nil {
		return apperr.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "[redisstore.Get] get")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "[redisstore.Get] decode envelope")
	}
	if refresh && env.ExpiresIn > 0 {
		if err := s.client.Expire(ctx, key(collection, id), time.Duration(env.ExpiresIn)*time.Second).Err(); err != nil {
			return errors.Wrap(err, "[redisstore.Get] refresh expiry")
		}
	}
	if err := json.Unmarshal(env.Doc, dest); err != nil {
		return errors.Wrap(err, "[redisstore.Get] decode document")
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, collection string, match store.Fields, dest any) (string, error) {
	iter := s.client.Scan(ctx, 0, collection+":*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		raw, err := s.client.Get(ctx, k).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return "", errors.Wrap(err, "[redisstore.FindOne] get")
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return "", errors.Wrap(err, "[redisstore.FindOne] decode envelope")
		}
		if !matches(env.Doc, match) {
			continue
		}
		if err := json.Unmarshal(env.Doc, dest); err != nil {
			return "", errors.Wrap(err, "[redisstore.FindOne] decode document")
		}
		return strings.TrimPrefix(k, collection+":"), nil
	}
	if err := iter.Err(); err != nil {
		return "", errors.Wrap(err, "[redisstore.FindOne] scan")
	}
	return "", apperr.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	deleted, err := s.client.Del(ctx, key(collection, id)).Result()
	if err != nil {
		return false, errors.Wrap(err, "[redisstore.Delete] del")
	}
	return deleted > 0, nil
}

func encode(doc any, ttl time.Duration) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore] marshal document")
	}
	env := envelope{Doc: raw}
	if ttl > 0 {
		env.ExpiresIn = int64(ttl / time.Second)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore] marshal envelope")
	}
	return payload, nil
}

func matches(doc json.RawMessage, match store.Fields) bool {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return false
	}
	for k, want := range match {
		got, ok := m[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
