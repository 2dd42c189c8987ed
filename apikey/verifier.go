// Package apikey verifies bearer API keys against stored keyed-hash
// records. The verifier never stores or compares raw secrets: each record
// holds HMAC-SHA256(pepper, prefix || ":" || secret), and verification is a
// constant-time digest comparison.
//
// Key records are provisioned by an external administrative surface; this
// package only reads them, through a KeyStore backend (JSON file or Vault
// KV v2, selected by URI).
package apikey

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// Record is one stored API key: the public prefix used for lookup, the
// peppered digest of the full credential, and lifecycle metadata. Scopes
// are stored but not enforced by this service.
type Record struct {
	Prefix    string     `json:"prefix"`
	Digest    []byte     `json:"digest"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Scopes    []string   `json:"scopes,omitempty"`
}

// Identity is the authenticated result of a successful verification.
type Identity struct {
	Prefix   string
	OwnerKey interfaces.OwnerKey
	Scopes   []string
}

// KeyStore looks up key records by prefix. A missing prefix is reported as
// (nil, nil); errors are reserved for backend failures.
type KeyStore interface {
	Lookup(ctx context.Context, prefix string) (*Record, error)
}

// Verifier validates presented credentials of the form "<prefix>.<secret>".
type Verifier struct {
	pepper []byte
	store  KeyStore
	log    *slog.Logger
}

// NewVerifier creates a verifier. The pepper is a server-side secret; with
// an empty pepper every verification fails.
func NewVerifier(pepper []byte, store KeyStore, log *slog.Logger) *Verifier {
	return &Verifier{pepper: pepper, store: store, log: log}
}

// ComputeDigest derives the stored digest for a credential. Shared with the
// administrative tooling that mints keys.
func ComputeDigest(pepper []byte, prefix, secret string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(prefix))
	mac.Write([]byte(":"))
	mac.Write([]byte(secret))
	return mac.Sum(nil)
}

// Verify checks a presented credential and returns the authenticated
// identity. Every failure mode (malformed credential, unknown prefix,
// revoked key, digest mismatch, missing pepper, backend failure) yields
// the same ErrUnauthorized, carrying no distinguishing signal.
func (v *Verifier) Verify(ctx context.Context, presented string) (*Identity, error) {
	if len(v.pepper) == 0 {
		v.log.Warn("API key verification attempted without a configured pepper")
		return nil, interfaces.ErrUnauthorized
	}

	prefix, secret, ok := strings.Cut(presented, ".")
	if !ok || prefix == "" || secret == "" {
		return nil, interfaces.ErrUnauthorized
	}

	rec, err := v.store.Lookup(ctx, prefix)
	if err != nil {
		v.log.Warn("API key store lookup failed", "err", err)
		return nil, interfaces.ErrUnauthorized
	}
	if rec == nil || rec.RevokedAt != nil {
		return nil, interfaces.ErrUnauthorized
	}

	digest := ComputeDigest(v.pepper, prefix, secret)
	if !hmac.Equal(digest, rec.Digest) {
		return nil, interfaces.ErrUnauthorized
	}

	return &Identity{
		Prefix:   rec.Prefix,
		OwnerKey: interfaces.OwnerKeyForAPIKey(rec.Prefix),
		Scopes:   rec.Scopes,
	}, nil
}

// ParseBearer extracts the credential from an Authorization header value.
func ParseBearer(header string) (string, error) {
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return "", fmt.Errorf("%w: missing bearer credential", interfaces.ErrUnauthorized)
	}
	return strings.TrimSpace(strings.TrimPrefix(header, scheme)), nil
}
