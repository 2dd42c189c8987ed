// Package ratelimit provides per-scope token-bucket admission control for
// the mutating endpoints. Scope keys are client IPs for public traffic and
// API key prefixes for authenticated traffic, with distinct configured
// rates per operation tier.
//
// The limiter is an explicitly owned component, not a singleton, and is a
// single-process approximation: it does not coordinate across instances.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Op identifies a rate-limited operation tier.
type Op string

const (
	OpPublicCreate Op = "public-create"
	OpAuthedCreate Op = "authed-create"
	OpClaim        Op = "claim"
	OpBurn         Op = "burn"
)

// Limit configures one operation tier's bucket: sustained tokens per second
// and burst capacity.
type Limit struct {
	Rate  float64
	Burst int
}

// Config holds the limiter's externally supplied policy.
type Config struct {
	// Limits maps operation tiers to bucket parameters. Operations without
	// an entry are admitted unconditionally.
	Limits map[Op]Limit

	// MaxEntries bounds the number of tracked scope keys so many distinct
	// IPs cannot grow memory without bound. When a shard is full, its
	// longest-idle entry is evicted; active scopes keep exact bucket
	// behavior.
	MaxEntries int

	// IdleTTL is how long an untouched scope entry survives before the
	// opportunistic sweep drops it. The sweep runs per shard, whenever
	// that shard admits a new scope key; idle entries in a shard that sees
	// no new scopes persist until the shard fills, where the cap eviction
	// takes over.
	IdleTTL time.Duration
}

// DefaultConfig returns production defaults: public creates stricter than
// claims, claims stricter than authenticated creates.
func DefaultConfig() Config {
	return Config{
		Limits: map[Op]Limit{
			OpPublicCreate: {Rate: 0.1, Burst: 5},
			OpAuthedCreate: {Rate: 1.0, Burst: 30},
			OpClaim:        {Rate: 0.5, Burst: 10},
			OpBurn:         {Rate: 1.0, Burst: 20},
		},
		MaxEntries: 16384,
		IdleTTL:    15 * time.Minute,
	}
}

const shardCount = 16

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
}

// Limiter admits or rejects requests per scope key. Buckets are created
// lazily on first observation of a scope and refill continuously.
type Limiter struct {
	cfg         Config
	perShardCap int
	shards      [shardCount]*shard
}

// New creates a limiter with the given config.
func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}

	l := &Limiter{cfg: cfg, perShardCap: (cfg.MaxEntries + shardCount - 1) / shardCount}
	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*bucketEntry)}
	}
	return l
}

// Allow consumes one token from the bucket for (op, scope), reporting
// whether the request is admitted.
func (l *Limiter) Allow(op Op, scope string) bool {
	return l.allowAt(time.Now(), op, scope)
}

func (l *Limiter) allowAt(now time.Time, op Op, scope string) bool {
	limit, ok := l.cfg.Limits[op]
	if !ok {
		return true
	}

	key := string(op) + ":" + scope
	sh := l.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry := sh.entries[key]
	if entry == nil {
		l.evictLocked(sh, now)
		entry = &bucketEntry{lim: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
		sh.entries[key] = entry
	}
	entry.lastSeen = now

	return entry.lim.AllowN(now, 1)
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// evictLocked drops idle entries, and if the shard is still at capacity,
// the longest-idle one. Caller holds the shard lock.
func (l *Limiter) evictLocked(sh *shard, now time.Time) {
	for key, entry := range sh.entries {
		if now.Sub(entry.lastSeen) > l.cfg.IdleTTL {
			delete(sh.entries, key)
		}
	}

	if len(sh.entries) < l.perShardCap {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, entry := range sh.entries {
		if oldestKey == "" || entry.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = entry.lastSeen
		}
	}
	if oldestKey != "" {
		delete(sh.entries, oldestKey)
	}
}

// entryCount reports tracked scope entries, for tests.
func (l *Limiter) entryCount() int {
	var n int
	for _, sh := range l.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
