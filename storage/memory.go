// Package storage implements the server-side secret store: backends that
// persist secret records and destroy them on claim, burn, or expiry.
//
// Backends are created from location URIs by StoreFactory. All backends
// implement claim and burn as single atomic conditional deletes; the
// in-memory backend serializes per shard, the Postgres backend delegates to
// a one-statement DELETE .. RETURNING evaluated under the engine's own
// isolation.
package storage

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

const memoryShardCount = 32

type memoryRecord struct {
	envelope  json.RawMessage
	claimHash interfaces.ClaimHash
	owner     interfaces.OwnerKey
	createdAt time.Time
	expiresAt time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	records map[interfaces.SecretID]*memoryRecord
}

// MemoryStore is an in-process secret store. Records are sharded by id so
// concurrent claims against different secrets never contend on one lock,
// while claims against the same id serialize on its shard and therefore
// observe the conditional delete atomically.
type MemoryStore struct {
	shards [memoryShardCount]*memoryShard
	log    *slog.Logger
}

// NewMemoryStore creates an empty in-memory secret store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	s := &MemoryStore{log: log}
	for i := range s.shards {
		s.shards[i] = &memoryShard{records: make(map[interfaces.SecretID]*memoryRecord)}
	}
	return s
}

func (s *MemoryStore) shardFor(id interfaces.SecretID) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%memoryShardCount]
}

// Create persists a new record and returns its id and absolute expiry.
func (s *MemoryStore) Create(ctx context.Context, env json.RawMessage, claimHash interfaces.ClaimHash, ttlSeconds int64, owner interfaces.OwnerKey) (interfaces.SecretID, time.Time, error) {
	ttl, err := interfaces.ValidateTTL(ttlSeconds)
	if err != nil {
		return "", time.Time{}, err
	}

	id := interfaces.SecretID(uuid.NewString())
	now := time.Now()
	rec := &memoryRecord{
		envelope:  append(json.RawMessage(nil), env...),
		claimHash: claimHash,
		owner:     owner,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}

	shard := s.shardFor(id)
	shard.mu.Lock()
	shard.records[id] = rec
	shard.mu.Unlock()

	s.log.Debug("Stored secret record",
		slog.String("id", id.String()),
		slog.Int("envelopeBytes", len(env)))

	return id, rec.expiresAt, nil
}

// Claim removes and returns the record iff the id exists, the token's hash
// matches, and the record is unexpired at now. Everything else is
// ErrSecretNotFound, with no distinction between the causes.
func (s *MemoryStore) Claim(ctx context.Context, id interfaces.SecretID, claimToken []byte, now time.Time) (json.RawMessage, time.Time, error) {
	hash := interfaces.NewClaimHash(claimToken)

	shard := s.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[id]
	if !ok || !rec.claimHash.Equal(hash) || !rec.expiresAt.After(now) {
		return nil, time.Time{}, interfaces.ErrSecretNotFound
	}

	delete(shard.records, id)
	return rec.envelope, rec.expiresAt, nil
}

// Burn deletes the record iff both id and owner match.
func (s *MemoryStore) Burn(ctx context.Context, id interfaces.SecretID, owner interfaces.OwnerKey) error {
	shard := s.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[id]
	if !ok || rec.owner != owner {
		return interfaces.ErrSecretNotFound
	}

	delete(shard.records, id)
	return nil
}

// OwnerUsage sums the owner's active records across all shards.
func (s *MemoryStore) OwnerUsage(ctx context.Context, owner interfaces.OwnerKey, now time.Time) (interfaces.OwnerUsage, error) {
	var usage interfaces.OwnerUsage
	for _, shard := range s.shards {
		shard.mu.Lock()
		for _, rec := range shard.records {
			if rec.owner == owner && rec.expiresAt.After(now) {
				usage.ActiveSecrets++
				usage.ActiveBytes += int64(len(rec.envelope))
			}
		}
		shard.mu.Unlock()
	}
	return usage, nil
}

// DeleteExpired removes all records with expires_at <= now.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	for _, shard := range s.shards {
		shard.mu.Lock()
		for id, rec := range shard.records {
			if !rec.expiresAt.After(now) {
				delete(shard.records, id)
				deleted++
			}
		}
		shard.mu.Unlock()
	}
	return deleted, nil
}

// Available always reports true for the in-memory backend.
func (s *MemoryStore) Available(ctx context.Context) bool { return true }

// Name returns the backend identifier.
func (s *MemoryStore) Name() string { return "memory" }

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() {}
