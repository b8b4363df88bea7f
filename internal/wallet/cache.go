package wallet

import (
	"sync"
	"time"
)

// DefaultKeypairTTL bounds how long a decrypted keypair may be served from
// memory before forcing a fresh decrypt.
const DefaultKeypairTTL = 10 * time.Minute

// DefaultSweepInterval is how often the background sweep scans for expired
// entries. Expiry is also checked lazily on every lookup, so the sweep only
// bounds memory, not staleness.
const DefaultSweepInterval = 1 * time.Minute

type cacheEntry struct {
	keypair   *Keypair
	expiresAt time.Time
}

// KeypairCache holds decrypted keypairs keyed by wallet address with an
// absolute per-entry expiry. Entries are immutable after insert; the only
// mutations are insert, expiry eviction and the explicit Clear security
// action. Never persisted.
type KeypairCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewKeypairCache creates a cache and starts its background sweeper.
func NewKeypairCache(ttl, sweepInterval time.Duration) *KeypairCache {
	if ttl <= 0 {
		ttl = DefaultKeypairTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &KeypairCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}

	go c.sweepLoop(sweepInterval)
	return c
}

// Get returns the cached keypair for an address. Expired entries are
// evicted on access and reported as a miss.
func (c *KeypairCache) Get(address string) (*Keypair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[address]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, address)
		return nil, false
	}
	return e.keypair, true
}

// Put inserts a keypair with a fresh TTL.
func (c *KeypairCache) Put(address string, kp *Keypair) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[address] = cacheEntry{
		keypair:   kp,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Evict removes a single address, e.g. after its wallet is deleted.
func (c *KeypairCache) Evict(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, address)
}

// Clear drops every cached keypair. Security action: subsequent signing
// requires re-decryption.
func (c *KeypairCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of cached entries, expired ones included until the
// next sweep or access.
func (c *KeypairCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper.
func (c *KeypairCache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// sweepLoop periodically removes expired entries.
func (c *KeypairCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts all entries past their expiry.
func (c *KeypairCache) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for addr, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, addr)
		}
	}
}
