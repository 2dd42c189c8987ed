package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TTL bounds for stored secrets, in seconds. Callers that omit the TTL get
// DefaultTTLSeconds.
const (
	MinTTLSeconds     = 1
	MaxTTLSeconds     = 31536000 // one year
	DefaultTTLSeconds = 86400
)

// ErrBackendUnavailable indicates the storage backend cannot be reached.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// ErrInvalidStoreURI indicates a store location URI could not be parsed or
// names an unsupported scheme.
var ErrInvalidStoreURI = errors.New("invalid store URI")

// ValidateTTL normalizes a requested TTL. Zero means "unspecified" and maps
// to the default; anything outside [MinTTLSeconds, MaxTTLSeconds] is a
// validation error.
func ValidateTTL(seconds int64) (time.Duration, error) {
	if seconds == 0 {
		return DefaultTTLSeconds * time.Second, nil
	}
	if seconds < MinTTLSeconds || seconds > MaxTTLSeconds {
		return 0, fmt.Errorf("%w: ttl_seconds must be in [%d, %d]", ErrValidation, MinTTLSeconds, MaxTTLSeconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// SecretStore owns persisted secret records. A record is Active from Create
// until exactly one of claim, burn or expiry cleanup destroys it; every
// terminal state is represented by the record's absence.
//
// Claim and Burn MUST be single atomic conditional deletes evaluated under
// the backend's own isolation. A read-then-delete split would let two
// concurrent claimants both observe "exists and matches", breaking the
// one-time-claim guarantee.
type SecretStore interface {
	// Create persists a new record and returns its fresh, unpredictable id
	// together with the absolute expiry. ttlSeconds is normalized via
	// ValidateTTL. The envelope is stored as an opaque blob and returned
	// byte-identical on claim.
	Create(ctx context.Context, env json.RawMessage, claimHash ClaimHash, ttlSeconds int64, owner OwnerKey) (SecretID, time.Time, error)

	// Claim atomically removes and returns the record iff id matches, the
	// hash of claimToken matches the stored claim hash, and the record is
	// not expired at now. Exactly one of any number of concurrent claims
	// can succeed; all other outcomes are ErrSecretNotFound.
	Claim(ctx context.Context, id SecretID, claimToken []byte, now time.Time) (json.RawMessage, time.Time, error)

	// Burn atomically deletes the record iff both id and owner match.
	// Mismatched ownership and a nonexistent id are both ErrSecretNotFound.
	Burn(ctx context.Context, id SecretID, owner OwnerKey) error

	// OwnerUsage counts the owner's active (non-expired) records and their
	// summed envelope bytes, for quota admission.
	OwnerUsage(ctx context.Context, owner OwnerKey, now time.Time) (OwnerUsage, error)

	// DeleteExpired removes records with expires_at <= now and reports how
	// many were deleted. Purely storage hygiene: Claim independently
	// enforces expiry, so failures here must never block serving.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	// Name returns a short identifier for logs and metrics.
	Name() string

	// Close releases backend resources.
	Close()
}
