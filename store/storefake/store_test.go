package storefake_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/store"
	"github.com/isotammi/qondor-cloudapp/store/storefake"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("insert and get round trip", func(t *testing.T) {
		st := storefake.New()
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a", Count: 1}, store.NoTTL)
		require.NoError(t, err)

		var got doc
		require.NoError(t, st.Get(ctx, store.Sessions, id, &got, false))
		require.Equal(t, doc{Name: "a", Count: 1}, got)
	})

	t.Run("get of unknown id is ErrNotFound", func(t *testing.T) {
		st := storefake.New()
		var got doc
		err := st.Get(ctx, store.Sessions, "nope", &got, false)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("document expires after its ttl", func(t *testing.T) {
		now := time.Now()
		st := storefake.New(storefake.WithNowFunc(func() time.Time { return now }))
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a"}, time.Minute)
		require.NoError(t, err)

		now = now.Add(time.Minute + time.Second)
		var got doc
		err = st.Get(ctx, store.Sessions, id, &got, false)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("refreshing get slides the expiry", func(t *testing.T) {
		now := time.Now()
		st := storefake.New(storefake.WithNowFunc(func() time.Time { return now }))
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a"}, time.Minute)
		require.NoError(t, err)

		var got doc
		now = now.Add(50 * time.Second)
		require.NoError(t, st.Get(ctx, store.Sessions, id, &got, true))

		// Past the original window but inside the refreshed one.
		now = now.Add(50 * time.Second)
		require.NoError(t, st.Get(ctx, store.Sessions, id, &got, true))

		now = now.Add(time.Minute + time.Second)
		err = st.Get(ctx, store.Sessions, id, &got, true)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("non-refreshing get leaves the expiry alone", func(t *testing.T) {
		now := time.Now()
		st := storefake.New(storefake.WithNowFunc(func() time.Time { return now }))
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a"}, time.Minute)
		require.NoError(t, err)

		var got doc
		now = now.Add(50 * time.Second)
		require.NoError(t, st.Get(ctx, store.Sessions, id, &got, false))

		now = now.Add(20 * time.Second)
		err = st.Get(ctx, store.Sessions, id, &got, false)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("replace overwrites a live document", func(t *testing.T) {
		st := storefake.New()
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a"}, store.NoTTL)
		require.NoError(t, err)

		ok, err := st.Replace(ctx, store.Sessions, id, doc{Name: "b"}, store.NoTTL)
		require.NoError(t, err)
		require.True(t, ok)

		var got doc
		require.NoError(t, st.Get(ctx, store.Sessions, id, &got, false))
		require.Equal(t, "b", got.Name)
	})

	t.Run("replace of an expired document reports false", func(t *testing.T) {
		now := time.Now()
		st := storefake.New(storefake.WithNowFunc(func() time.Time { return now }))
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a"}, time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		ok, err := st.Replace(ctx, store.Sessions, id, doc{Name: "b"}, time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("find one matches string fields", func(t *testing.T) {
		st := storefake.New()
		_, err := st.Insert(ctx, store.Instances, doc{Name: "a"}, store.NoTTL)
		require.NoError(t, err)
		wantID, err := st.Insert(ctx, store.Instances, doc{Name: "b"}, store.NoTTL)
		require.NoError(t, err)

		var got doc
		id, err := st.FindOne(ctx, store.Instances, store.Fields{"name": "b"}, &got)
		require.NoError(t, err)
		require.Equal(t, wantID, id)
		require.Equal(t, "b", got.Name)

		_, err = st.FindOne(ctx, store.Instances, store.Fields{"name": "c"}, &got)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("find one skips expired documents", func(t *testing.T) {
		now := time.Now()
		st := storefake.New(storefake.WithNowFunc(func() time.Time { return now }))
		_, err := st.Insert(ctx, store.Replay, doc{Name: "a"}, time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		var got doc
		_, err = st.FindOne(ctx, store.Replay, store.Fields{"name": "a"}, &got)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("delete reports whether anything was removed", func(t *testing.T) {
		st := storefake.New()
		id, err := st.Insert(ctx, store.Sessions, doc{Name: "a"}, store.NoTTL)
		require.NoError(t, err)

		deleted, err := st.Delete(ctx, store.Sessions, id)
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = st.Delete(ctx, store.Sessions, id)
		require.NoError(t, err)
		require.False(t, deleted)
	})
}
