// Package interfaces defines the core types and contracts shared across the
// secret sharing backend. It provides the boundary between components without
// implementation details: identifier types, policy tiers, and the sentinel
// errors every layer maps onto.
package interfaces

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// SecretID is an opaque, server-generated identifier for a stored secret.
// It is unpredictable (UUIDv4 at creation) and permanently unresolvable once
// the record is claimed, burned, or cleaned up.
type SecretID string

// String returns the identifier as a plain string.
func (id SecretID) String() string { return string(id) }

// OwnerKey is a policy-only tag identifying who created a secret. It is used
// for quota accounting and burn authorization, never as a credential: an
// owner key carries no decryption capability and is not treated as a secret.
//
// Formats: "ip:<addr>" for anonymous creators, "key:<prefix>" for
// authenticated creators.
type OwnerKey string

// OwnerKeyForIP builds the owner key for an anonymous creator.
func OwnerKeyForIP(ip string) OwnerKey { return OwnerKey("ip:" + ip) }

// OwnerKeyForAPIKey builds the owner key for an authenticated creator,
// tagged with the API key prefix.
func OwnerKeyForAPIKey(prefix string) OwnerKey { return OwnerKey("key:" + prefix) }

// ClaimHash is the SHA-256 digest of a claim token. It is the only
// claim-related value the server ever stores; possession of the preimage
// (the claim token) authorizes exactly one retrieval.
type ClaimHash [32]byte

// NewClaimHash computes the claim hash for a claim token.
func NewClaimHash(claimToken []byte) ClaimHash {
	return ClaimHash(sha256.Sum256(claimToken))
}

// NewClaimHashFromString decodes a base64url (unpadded) claim hash.
func NewClaimHashFromString(s string) (ClaimHash, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ClaimHash{}, fmt.Errorf("invalid claim hash encoding: %w", err)
	}
	if len(raw) != 32 {
		return ClaimHash{}, errors.New("invalid claim hash length: must decode to 32 bytes")
	}

	var h ClaimHash
	copy(h[:], raw)
	return h, nil
}

// String returns the base64url (unpadded) representation.
func (h ClaimHash) String() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Bytes returns the raw 32-byte digest.
func (h ClaimHash) Bytes() []byte { return h[:] }

// Equal compares two claim hashes.
func (h ClaimHash) Equal(other ClaimHash) bool {
	return bytes.Equal(h[:], other[:])
}

// Tier is the policy bucket a request falls into. Tiers determine quota
// caps and rate limits; they have no cryptographic meaning.
type Tier int

const (
	// TierPublic applies to anonymous (IP-keyed) requests.
	TierPublic Tier = iota
	// TierAuthenticated applies to API-key authenticated requests.
	TierAuthenticated
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TierLimits holds the externally configured quota caps for one tier.
type TierLimits struct {
	// MaxActiveSecrets caps the number of simultaneously active secrets
	// per owner.
	MaxActiveSecrets int

	// MaxActiveBytes caps the summed envelope bytes of an owner's active
	// secrets.
	MaxActiveBytes int64
}

// OwnerUsage reports an owner's current active footprint.
type OwnerUsage struct {
	ActiveSecrets int
	ActiveBytes   int64
}

// Sentinel errors shared across the system. The HTTP layer maps these onto
// status codes; see the httpserver package.
var (
	// ErrInvalidEnvelope indicates envelope validation failed before any
	// cryptographic operation ran.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrDecryptionFailed indicates AEAD authentication failed. Wrong key,
	// wrong passphrase and ciphertext tampering are deliberately
	// indistinguishable at this layer.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSecretNotFound covers every way a claim or burn target can be
	// absent: never existed, expired, already claimed, wrong token, or not
	// owned by the caller. The causes are deliberately unified so an
	// unauthenticated caller cannot enumerate record state.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrUnauthorized covers missing, malformed, unknown and revoked
	// credentials uniformly.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates token-bucket admission failed. Transient;
	// the caller may retry after backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrQuotaExceeded is the base error wrapped by QuotaExceededError.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrValidation indicates a malformed request shape.
	ErrValidation = errors.New("invalid request")
)

// QuotaKind distinguishes which cap a create request tripped.
type QuotaKind int

const (
	// QuotaSecretCount means the owner is at the active-secret-count cap.
	QuotaSecretCount QuotaKind = iota
	// QuotaBytes means admitting the envelope would exceed the byte cap.
	QuotaBytes
)

// String returns the quota kind name.
func (k QuotaKind) String() string {
	switch k {
	case QuotaSecretCount:
		return "secret-count"
	case QuotaBytes:
		return "bytes"
	default:
		return fmt.Sprintf("quota(%d)", int(k))
	}
}

// QuotaExceededError reports which quota cap rejected a create request.
type QuotaExceededError struct {
	Kind QuotaKind
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.Kind)
}

// Unwrap lets errors.Is match ErrQuotaExceeded.
func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
