package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNoAPIKey is returned when no weather API key is available.
var ErrNoAPIKey = errors.New("weather: api key not available")

// KeySource supplies the provider API key.
type KeySource interface {
	Key(ctx context.Context) (string, error)
}

// StaticKey is a key known at startup.
type StaticKey string

func (k StaticKey) Key(context.Context) (string, error) {
	if k == "" {
		return "", ErrNoAPIKey
	}
	return string(k), nil
}

// RemoteKey retrieves the key once from an endpoint answering
// {"api_key": "..."}. Failures are not cached.
type RemoteKey struct {
	http *http.Client
	url  string

	group singleflight.Group
	mu    sync.RWMutex
	key   string
}

func NewRemoteKey(httpClient *http.Client, url string) *RemoteKey {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteKey{http: httpClient, url: url}
}

func (r *RemoteKey) Key(ctx context.Context) (string, error) {
	r.mu.RLock()
	key := r.key
	r.mu.RUnlock()
	if key != "" {
		return key, nil
	}

	v, err, _ := r.group.Do("key", func() (any, error) {
		k, err := r.fetch(ctx)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.key = k
		r.mu.Unlock()
		return k, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *RemoteKey) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request weather api key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: unexpected status %s", ErrNoAPIKey, resp.Status)
	}

	var payload struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode weather api key: %w", err)
	}
	if payload.APIKey == "" {
		return "", ErrNoAPIKey
	}
	return payload.APIKey, nil
}
