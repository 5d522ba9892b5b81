package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/michaelbrown/cadforge/internal/observability"
)

// DefaultCacheSize is used when a non-positive size is requested.
const DefaultCacheSize = 256

// CachingValidator memoises verdicts of an inner Validator. Validation is a
// pure function of profile and source, so cached verdicts never go stale.
type CachingValidator struct {
	inner *Validator
	cache *lru.Cache[string, Verdict]
}

// NewCachingValidator wraps v with an LRU of the given size.
func NewCachingValidator(v *Validator, size int) (*CachingValidator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Verdict](size)
	if err != nil {
		return nil, fmt.Errorf("creating verdict cache: %w", err)
	}
	return &CachingValidator{inner: v, cache: cache}, nil
}

// Profile returns the inner validator's profile.
func (c *CachingValidator) Profile() Profile {
	return c.inner.Profile()
}

// Validate returns a cached verdict when one exists. The returned verdict
// is always a private copy.
func (c *CachingValidator) Validate(src Source) Verdict {
	key := cacheKey(c.inner.profile.Name, src)
	if v, ok := c.cache.Get(key); ok {
		observability.ValidationCacheHits.Inc()
		return v.Clone()
	}
	v := c.inner.Validate(src)
	c.cache.Add(key, v.Clone())
	return v
}

// Len returns the number of cached verdicts.
func (c *CachingValidator) Len() int {
	return c.cache.Len()
}

func cacheKey(profile string, src Source) string {
	sum := sha256.Sum256([]byte(src))
	return profile + ":" + hex.EncodeToString(sum[:])
}
