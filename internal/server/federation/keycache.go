package federation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"
)

// DefaultKeyTTL is how long a fetched key set is trusted before refetching.
const DefaultKeyTTL = time.Hour

const (
	maxJWKSBytes = 1 << 20
	fetchTimeout = 10 * time.Second
)

var ErrKeyNotFound = errors.New("key id not found in key set")

// KeyCache holds a provider's public key set keyed by key id. A stale or
// empty cache is refreshed by exactly one fetch no matter how many callers
// ask at once.
type KeyCache struct {
	url    string
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	keys      jwk.Set
	fetchedAt time.Time

	group singleflight.Group
}

func NewKeyCache(url string, client *http.Client) *KeyCache {
	if client == nil {
		client = newHTTPClient()
	}
	return &KeyCache{url: url, client: client, ttl: DefaultKeyTTL, now: time.Now}
}

// Key returns the raw public key for kid.
func (c *KeyCache) Key(ctx context.Context, kid string) (any, error) {
	set, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export key %s: %w", kid, err)
	}
	return raw, nil
}

// FetchedAt reports when the cached set was last loaded.
func (c *KeyCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

func (c *KeyCache) current(ctx context.Context) (jwk.Set, error) {
	if set, ok := c.fresh(); ok {
		return set, nil
	}

	// The shared fetch outlives any single caller; each caller still gives
	// up on its own context.
	ch := c.group.DoChan(c.url, func() (any, error) {
		if set, ok := c.fresh(); ok {
			return set, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		set, err := c.fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = set
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	}
}

func (c *KeyCache) fresh() (jwk.Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.keys, true
}

func (c *KeyCache) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch key set: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse key set: %w", err)
	}
	return set, nil
}
