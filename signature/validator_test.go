package signature_test

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
	"github.com/isotammi/qondor-cloudapp/signature"
	"github.com/isotammi/qondor-cloudapp/store/storefake"
)

const (
	testClientID = "consumer-key"
	testSecret   = "shh"
	testBaseURL  = "https://test.example/endpoint"
)

func signedQuery(t *testing.T, now time.Time, nonce string, params map[string]string) url.Values {
	t.Helper()
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set("oauth_consumer_key", testClientID)
	query.Set("oauth_nonce", nonce)
	query.Set("oauth_timestamp", strconv.FormatInt(now.Unix(), 10))
	query.Set("oauth_signature_method", "HMAC-SHA1")
	query.Set("oauth_version", "1.0")
	query.Set("oauth_signature", signature.Sign("GET", testBaseURL, query, testSecret))
	return query
}

func newValidator(t *testing.T, now func() time.Time) *signature.Validator {
	t.Helper()
	replay := signature.NewStoreReplayCache(storefake.New())
	return signature.NewValidator(testClientID, testSecret, replay, zerolog.Nop(), signature.WithNowFunc(now))
}

func TestValidate(t *testing.T) {
	now := time.Now()
	nowFunc := func() time.Time { return now }
	ctx := context.Background()

	t.Run("accepts a correctly signed request", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now, "nonce-1", map[string]string{"foo": "bar", "x": "1"})
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, query))
	})

	t.Run("rejects a replayed nonce and timestamp", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now, "nonce-1", map[string]string{"foo": "bar"})
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, query))

		err := v.Validate(ctx, "GET", testBaseURL, query)
		require.ErrorIs(t, err, apperr.ErrSignatureRejected)
	})

	t.Run("accepts the same nonce with a different timestamp", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		first := signedQuery(t, now, "nonce-1", nil)
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, first))

		second := signedQuery(t, now.Add(time.Second), "nonce-1", nil)
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, second))
	})

	t.Run("rejects a stale timestamp", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now.Add(-signature.MaxTimestampAge-time.Second), "nonce-1", nil)
		err := v.Validate(ctx, "GET", testBaseURL, query)
		require.ErrorIs(t, err, apperr.ErrSignatureRejected)
	})

	t.Run("accepts a timestamp just inside the window", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now.Add(-signature.MaxTimestampAge+time.Second), "nonce-1", nil)
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, query))
	})

	t.Run("accepts a timestamp ahead of the clock", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now.Add(time.Hour), "nonce-1", nil)
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, query))
	})

	t.Run("rejects an unknown consumer key", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now, "nonce-1", nil)
		query.Set("oauth_consumer_key", "someone-else")
		err := v.Validate(ctx, "GET", testBaseURL, query)
		require.ErrorIs(t, err, apperr.ErrSignatureRejected)
	})

	t.Run("rejects a tampered parameter", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now, "nonce-1", map[string]string{"install_id": "abc"})
		query.Set("install_id", "xyz")
		err := v.Validate(ctx, "GET", testBaseURL, query)
		require.ErrorIs(t, err, apperr.ErrSignatureRejected)
	})

	t.Run("rejects a missing signature", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now, "nonce-1", nil)
		query.Del("oauth_signature")
		err := v.Validate(ctx, "GET", testBaseURL, query)
		require.ErrorIs(t, err, apperr.ErrSignatureRejected)
	})

	t.Run("rejects a wrong method", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		query := signedQuery(t, now, "nonce-1", nil)
		err := v.Validate(ctx, "POST", testBaseURL, query)
		require.ErrorIs(t, err, apperr.ErrSignatureRejected)
	})

	t.Run("failed validation does not poison the replay cache", func(t *testing.T) {
		v := newValidator(t, nowFunc)
		tampered := signedQuery(t, now, "nonce-1", map[string]string{"install_id": "abc"})
		tampered.Set("install_id", "xyz")
		require.ErrorIs(t, v.Validate(ctx, "GET", testBaseURL, tampered), apperr.ErrSignatureRejected)

		legit := signedQuery(t, now, "nonce-1", map[string]string{"install_id": "abc"})
		require.NoError(t, v.Validate(ctx, "GET", testBaseURL, legit))
	})
}

func TestSign(t *testing.T) {
	t.Run("is insensitive to parameter insertion order", func(t *testing.T) {
		a := url.Values{}
		a.Set("b", "2")
		a.Set("a", "1")
		b := url.Values{}
		b.Set("a", "1")
		b.Set("b", "2")
		require.Equal(t, signature.Sign("GET", testBaseURL, a, testSecret),
			signature.Sign("GET", testBaseURL, b, testSecret))
	})

	t.Run("excludes oauth_signature from the message", func(t *testing.T) {
		a := url.Values{"a": {"1"}}
		b := url.Values{"a": {"1"}, "oauth_signature": {"anything"}}
		require.Equal(t, signature.Sign("GET", testBaseURL, a, testSecret),
			signature.Sign("GET", testBaseURL, b, testSecret))
	})

	t.Run("distinguishes values needing percent encoding", func(t *testing.T) {
		a := url.Values{"cb": {"https://host/a?x=1"}}
		b := url.Values{"cb": {"https://host/a?x=2"}}
		require.NotEqual(t, signature.Sign("GET", testBaseURL, a, testSecret),
			signature.Sign("GET", testBaseURL, b, testSecret))
	})

	t.Run("depends on the secret", func(t *testing.T) {
		q := url.Values{"a": {"1"}}
		require.NotEqual(t, signature.Sign("GET", testBaseURL, q, "shh"),
			signature.Sign("GET", testBaseURL, q, "hush"))
	})
}

func TestReplayCacheExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	st := storefake.New(storefake.WithNowFunc(clock))
	cache := signature.NewStoreReplayCache(st)
	ctx := context.Background()

	ts := fmt.Sprintf("%d", now.Unix())
	require.NoError(t, cache.Remember(ctx, "nonce-1", ts, signature.MaxTimestampAge))

	seen, err := cache.Seen(ctx, "nonce-1", ts)
	require.NoError(t, err)
	require.True(t, seen)

	now = now.Add(signature.MaxTimestampAge + time.Second)
	seen, err = cache.Seen(ctx, "nonce-1", ts)
	require.NoError(t, err)
	require.False(t, seen)
}
