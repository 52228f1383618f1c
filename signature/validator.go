// Package signature validates the OAuth1-style HMAC-SHA1 signatures that
// Eloqua attaches to every AppCloud call. The canonicalization must match
// Eloqua's signer byte for byte:
//
//	message = METHOD & percent(baseURL) & percent(sorted query params)
//
// where the base URL carries no query string, the parameter list omits
// oauth_signature, each value is percent-encoded (space as %20, slash as
// %2F), pairs are sorted by key and joined with &, and the joined string
// is percent-encoded once more. The HMAC key is the client secret with a
// trailing &.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/isotammi/qondor-cloudapp/internal/apperr"
)

// MaxTimestampAge is the staleness window for oauth_timestamp, and the
// TTL of replay-cache entries. Only staleness is checked; a timestamp
// ahead of our clock passes.
const MaxTimestampAge = 5 * time.Minute

// ReplayCache records (nonce, timestamp) pairs of accepted requests so a
// second request carrying the same pair is rejected while the entry
// lives.
type ReplayCache interface {
	Seen(ctx context.Context, nonce, timestamp string) (bool, error)
	Remember(ctx context.Context, nonce, timestamp string, ttl time.Duration) error
}

type Validator struct {
	clientID     string
	clientSecret string
	replay       ReplayCache
	log          zerolog.Logger
	nowFunc      func() time.Time
}

type ValidatorOption func(*Validator)

// WithNowFunc sets the clock (for staleness tests).
func WithNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowFunc = now
	}
}

func NewValidator(clientID, clientSecret string, replay ReplayCache, log zerolog.Logger, options ...ValidatorOption) *Validator {
	v := &Validator{
		clientID:     clientID,
		clientSecret: clientSecret,
		replay:       replay,
		log:          log,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate decides ACCEPT or REJECT for one inbound request. baseURL is
// the request URL without its query string. On acceptance, and only then,
// the (nonce, timestamp) pair is written to the replay cache; a request
// that fails a later check must not poison the cache for a legitimate
// retry. All rejection causes surface as apperr.ErrSignatureRejected and
// are only distinguished in the log.
func (v *Validator) Validate(ctx context.Context, method, baseURL string, query url.Values) error {
	nonce := query.Get("oauth_nonce")
	timestamp := query.Get("oauth_timestamp")

	if query.Get("oauth_consumer_key") != v.clientID {
		v.log.Warn().Msg("signature validation failed: invalid consumer key")
		return apperr.ErrSignatureRejected
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		v.log.Warn().Str("oauth_timestamp", timestamp).Msg("signature validation failed: unparseable timestamp")
		return apperr.ErrSignatureRejected
	}
	if v.nowFunc().Unix()-ts > int64(MaxTimestampAge/time.Second) {
		v.log.Warn().Int64("oauth_timestamp", ts).Msg("signature validation failed: stale timestamp")
		return apperr.ErrSignatureRejected
	}

	seen, err := v.replay.Seen(ctx, nonce, timestamp)
	if err != nil {
		return apperr.Wrapf(err, "[Validate] replay lookup")
	}
	if seen {
		v.log.Warn().Str("oauth_nonce", nonce).Msg("signature validation failed: nonce replay")
		return apperr.ErrSignatureRejected
	}

	expected := Sign(method, baseURL, query, v.clientSecret)
	if !hmac.Equal([]byte(expected), []byte(query.Get("oauth_signature"))) {
		v.log.Warn().Msg("signature validation failed: signature mismatch")
		return apperr.ErrSignatureRejected
	}

	if err := v.replay.Remember(ctx, nonce, timestamp, MaxTimestampAge); err != nil {
		return apperr.Wrapf(err, "[Validate] replay insert")
	}
	return nil
}

// Sign computes the base64 HMAC-SHA1 signature Eloqua's signer would
// produce over the request. Exported so tests can act as the signer.
func Sign(method, baseURL string, query url.Values, clientSecret string) string {
	message := method + "&" + percentEncode(baseURL) + "&" + percentEncode(sortedQueryString(query))

	mac := hmac.New(sha1.New, []byte(clientSecret+"&"))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// sortedQueryString joins all parameters except oauth_signature as k=v
// with percent-encoded values, sorted by key.
func sortedQueryString(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "oauth_signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+percentEncode(query.Get(k)))
	}
	return strings.Join(pairs, "&")
}

// percentEncode is RFC 3986 encoding with nothing but the unreserved set
// left bare: space becomes %20 (never +) and slash becomes %2F.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
