package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrTokenUnavailable = errors.New("access token unavailable")

const defaultTokenTTLSeconds = 3599

// TokenCache caches the Daraja OAuth bearer token until shortly before its
// expiry. Refreshes are serialized so concurrent initiations do not stampede
// the token endpoint.
type TokenCache struct {
	consumerKey    string
	consumerSecret string
	tokenURL       string
	safetyMargin   time.Duration
	client         *http.Client
	now            func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewTokenCache(consumerKey, consumerSecret, baseURL string, safetyMargin time.Duration, client *http.Client, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		tokenURL:       strings.TrimRight(baseURL, "/") + "/oauth/v1/generate?grant_type=client_credentials",
		safetyMargin:   safetyMargin,
		client:         client,
		now:            now,
	}
}

func (c *TokenCache) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-c.safetyMargin)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token endpoint returned status=%d", ErrTokenUnavailable, resp.StatusCode)
	}

	// Daraja serializes expires_in as a string.
	var payload struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("%w: no access token in response", ErrTokenUnavailable)
	}

	ttl, err := payload.ExpiresIn.Int64()
	if err != nil || ttl <= 0 {
		ttl = defaultTokenTTLSeconds
	}

	c.token = payload.AccessToken
	c.expiry = c.now().Add(time.Duration(ttl) * time.Second)

	return c.token, nil
}
