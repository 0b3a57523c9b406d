package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aivisio/platform/pkg/httpclient"
)

// Header names used by the provider's webhook deliveries.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// ErrInvalidSignature covers any verification failure: missing headers,
// undecodable key material, or no matching signature token. Callers
// must reject the delivery without touching any state.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SecretFetcher obtains the shared signing secret from the provider.
type SecretFetcher interface {
	GetWebhookSecret(ctx context.Context) (string, error)
}

// Verifier authenticates inbound webhook deliveries with the provider's
// HMAC-SHA256 scheme. The signing secret is fetched once and cached.
type Verifier struct {
	fetcher SecretFetcher

	mu  sync.Mutex
	key []byte
}

func NewVerifier(fetcher SecretFetcher) *Verifier {
	return &Verifier{fetcher: fetcher}
}

// Verify checks the delivery against every supplied signature token.
// The signed content is the literal bytes received; re-serializing the
// body would break verification on whitespace or key order.
func (v *Verifier) Verify(ctx context.Context, headers http.Header, rawBody []byte) error {
	id := headers.Get(HeaderID)
	timestamp := headers.Get(HeaderTimestamp)
	signatures := headers.Get(HeaderSignature)
	if id == "" || timestamp == "" || signatures == "" {
		return ErrInvalidSignature
	}

	key, err := v.signingKey(ctx)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Multiple space-separated "version,signature" tokens support
	// secret rotation; any match accepts the delivery.
	for _, token := range strings.Fields(signatures) {
		parts := strings.SplitN(token, ",", 2)
		if len(parts) != 2 {
			continue
		}
		if hmac.Equal([]byte(parts[1]), []byte(computed)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *Verifier) signingKey(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key != nil {
		return v.key, nil
	}

	// The fetch happens once per process; a transient provider hiccup
	// here would otherwise reject a valid delivery.
	var secret string
	err := httpclient.Retry(ctx, 3, 200*time.Millisecond, func() error {
		fetched, fetchErr := v.fetcher.GetWebhookSecret(ctx)
		if fetchErr != nil {
			return fetchErr
		}
		secret = fetched
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch webhook secret: %w", err)
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	v.key = key
	return key, nil
}

// decodeSecret extracts the key material from a "whsec_<base64>" secret.
func decodeSecret(secret string) ([]byte, error) {
	parts := strings.SplitN(secret, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidSignature
	}
	key, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return key, nil
}
