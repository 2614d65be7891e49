package country

import (
	"sync"
	"sync/atomic"
)

// ukVariants are names the reference table does not carry that still mean
// the United Kingdom. Keys are Normalize'd.
var ukVariants = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, n := range []string{
		"uk", "gb", "britain", "great britain",
		"england", "scotland", "wales", "northern ireland",
		"cymru", "alba",
		"united kingdom of great britain and northern ireland",
	} {
		m[n] = struct{}{}
	}
	return m
}()

const ukISO3 = "GBR"

// Cache memoizes name to ISO3 resolution, including misses. It is safe for
// concurrent use and may be shared across profiling runs. Entries are never
// evicted; concurrent first lookups of one name compute the same answer, so
// whichever write lands last is equivalent.
type Cache struct {
	ref *Reference

	mu      sync.RWMutex
	entries map[string]*string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache returns an empty cache over ref; nil selects DefaultReference.
func NewCache(ref *Reference) *Cache {
	if ref == nil {
		ref = DefaultReference()
	}
	return &Cache{ref: ref, entries: make(map[string]*string)}
}

// Lookup returns the ISO3 code for a raw country string.
func (c *Cache) Lookup(raw string) (string, bool) {
	c.mu.RLock()
	v, ok := c.entries[raw]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		if v == nil {
			return "", false
		}
		return *v, true
	}

	c.misses.Add(1)
	v = c.resolve(raw)

	c.mu.Lock()
	c.entries[raw] = v
	c.mu.Unlock()

	if v == nil {
		return "", false
	}
	return *v, true
}

func (c *Cache) resolve(raw string) *string {
	if ct, ok := c.ref.Find(raw); ok {
		iso := ct.ISO3
		return &iso
	}
	if _, ok := ukVariants[Normalize(raw)]; ok {
		iso := ukISO3
		return &iso
	}
	return nil
}

// Region returns the continent code of an ISO3 code.
func (c *Cache) Region(iso3 string) (string, bool) {
	ct, ok := c.ref.ByISO3(iso3)
	if !ok || ct.Region == "" {
		return "", false
	}
	return ct.Region, true
}

// Stats reports cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len reports the number of memoized names.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
