package signature

import (
	"context"
	"time"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
)

var _ ReplayCache = (*StoreReplayCache)(nil)

// StoreReplayCache keeps (nonce, timestamp) pairs in the replay
// collection of the document store. The check-then-insert sequence is not
// transactional: two concurrent requests with the same pair can both pass
// Seen before either Remembers. The external signer's nonce entropy keeps
// that window harmless.
type StoreReplayCache struct {
	store store.Store
}

type replayEntry struct {
	Nonce     string `json:"oauth_nonce"`
	Timestamp string `json:"oauth_timestamp"`
}

func NewStoreReplayCache(s store.Store) *StoreReplayCache {
	return &StoreReplayCache{store: s}
}

func (c *StoreReplayCache) Seen(ctx context.Context, nonce, timestamp string) (bool, error) {
	var entry replayEntry
	_, err := c.store.FindOne(ctx, store.Replay, store.Fields{
		"oauth_nonce":     nonce,
		"oauth_timestamp": timestamp,
	}, &entry)
	if apperr.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *StoreReplayCache) Remember(ctx context.Context, nonce, timestamp string, ttl time.Duration) error {
	_, err := c.store.Insert(ctx, store.Replay, replayEntry{
		Nonce:     nonce,
		Timestamp: timestamp,
	}, ttl)
	return err
}
