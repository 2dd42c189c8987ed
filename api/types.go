// Package api defines the JSON shapes of the HTTP surface and the share
// link format. Servers and clients share these types.
package api

import (
	"encoding/json"
	"time"
)

// Paths of the HTTP surface.
const (
	PublicCreatePath = "/api/public/secrets"
	AuthedCreatePath = "/api/authed/secrets"
	ClaimPathFmt     = "/api/public/secrets/%s/claim"
	BurnPathFmt      = "/api/authed/secrets/%s/burn"
)

// CreateSecretRequest is the body of both create endpoints. The envelope is
// opaque to the server beyond structural validation; the claim hash is the
// only claim-related value the server will ever hold.
type CreateSecretRequest struct {
	Envelope  json.RawMessage `json:"envelope"`
	ClaimHash string          `json:"claim_hash"`

	// TTLSeconds bounds the secret's lifetime. Zero means the server
	// default.
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

// CreateSecretResponse acknowledges a stored secret. ShareURL has no
// fragment: the URL key exists only client-side, and the creator appends
// the "#v1.<key>" fragment locally before sharing.
type CreateSecretResponse struct {
	ID        string    `json:"id"`
	ShareURL  string    `json:"share_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClaimSecretRequest presents the claim token, base64url unpadded.
type ClaimSecretRequest struct {
	Claim string `json:"claim"`
}

// ClaimSecretResponse returns the envelope byte-identical to creation.
type ClaimSecretResponse struct {
	Envelope  json.RawMessage `json:"envelope"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// BurnSecretResponse acknowledges an owner-scoped destroy.
type BurnSecretResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse carries a terse, non-identifying error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
