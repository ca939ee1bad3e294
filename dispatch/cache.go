// Response cache with in-flight coalescing.
//
// Fingerprint = capability + canonicalized arguments. At most one remote
// call per fingerprint is in flight at any time; concurrent identical
// requests share the single outcome. Only read capabilities are eligible:
// writes always execute because identical arguments can still mean distinct
// intended side effects.

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/richinex/tabula/model"
)

// cacheEntry is a resolved response with its expiry.
type cacheEntry struct {
	payload json.RawMessage
	expiry  time.Time
}

// responseCache deduplicates and coalesces read calls.
type responseCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry

	flight singleflight.Group
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// fingerprint canonicalizes a request into its cache key. Map keys are
// sorted so argument ordering never splits the cache.
func fingerprint(capability model.Capability, arguments map[string]any) string {
	var b strings.Builder
	b.WriteString(string(capability))
	b.WriteByte('|')
	writeCanonical(&b, arguments)
	return b.String()
}

func writeCanonical(b *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonical(b, v[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

// getOrCall returns a live cached payload for key, or runs call exactly
// once across concurrent identical requests and caches its result. The
// second return reports whether this caller was served without executing
// the remote call (a TTL hit, or joining another caller's in-flight call);
// the caller that actually executed is never counted as a hit.
func (c *responseCache) getOrCall(_ context.Context, key string, call func() (json.RawMessage, error)) (json.RawMessage, bool, error) {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Now().Before(entry.expiry) {
		c.mu.Unlock()
		return entry.payload, true, nil
	}
	c.mu.Unlock()

	executed := false
	payload, err, _ := c.flight.Do(key, func() (any, error) {
		executed = true
		result, err := call()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{payload: result, expiry: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload.(json.RawMessage), !executed, nil
}
