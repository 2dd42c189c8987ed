// Package envelope implements the client-side envelope cryptography for the
// secret sharing protocol: key derivation, AEAD seal/open, claim token
// derivation, and strict envelope (de)serialization.
//
// The server never sees decryption material. The only secret a recipient
// needs is the 32-byte URL key carried in a share link fragment; the claim
// token proving link possession is derived from the URL key alone and is
// deliberately independent of decryption secrecy.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// Protocol constants. Validation requires exact matches; changing any of
// these invalidates all existing envelopes.
const (
	// Version is the supported protocol version.
	Version = 1

	// Suite identifies the cipher suite of this protocol version.
	Suite = "secret:v1"

	// AlgAES256GCM names the only supported AEAD algorithm.
	AlgAES256GCM = "aes-256-gcm"

	// HashSHA256 names the only supported expansion hash.
	HashSHA256 = "SHA-256"

	// KDFNone marks envelopes sealed without a passphrase.
	KDFNone = "none"

	// KDFPBKDF2SHA256 marks envelopes whose input key material mixes in a
	// passphrase stretched with PBKDF2-HMAC-SHA256.
	KDFPBKDF2SHA256 = "pbkdf2-sha256"

	// LabelEnc and LabelClaim are the HKDF domain separation labels for
	// the encryption key and the claim token respectively.
	LabelEnc   = "secret:v1:enc"
	LabelClaim = "secret:v1:claim"

	// URLKeySize is the size of the URL key, the sole decryption-enabling
	// secret.
	URLKeySize = 32

	// ClaimTokenSize is the size of the derived claim token.
	ClaimTokenSize = 32

	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12

	// ExpandSaltSize is the HKDF expansion salt size.
	ExpandSaltSize = 32

	// KeySize is the derived key length for both KDF outputs.
	KeySize = 32

	// TagSize is the GCM authentication tag length; ciphertext fields
	// shorter than this cannot be valid.
	TagSize = 16

	// MinPBKDF2SaltSize and MinPBKDF2Iterations bound acceptable PBKDF2
	// parameters. DefaultPBKDF2Iterations is used on create.
	MinPBKDF2SaltSize       = 16
	MinPBKDF2Iterations     = 300000
	DefaultPBKDF2Iterations = 600000
	DefaultPBKDF2SaltSize   = 16
)

// aad is the fixed associated data bound into every AEAD seal.
var aad = []byte("secret:v1:envelope")

// Bytes is a byte slice encoded as unpadded base64url in JSON. Malformed
// encodings fail the whole envelope parse.
type Bytes []byte

// MarshalJSON encodes as unpadded base64url.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

// UnmarshalJSON decodes unpadded base64url, failing closed on anything else.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("malformed base64url: %w", err)
	}
	*b = raw
	return nil
}

// Envelope is the versioned, self-describing ciphertext container. It is
// immutable once constructed; the server persists it as an opaque blob and
// returns identical bytes on claim.
type Envelope struct {
	Version int         `json:"version"`
	Suite   string      `json:"suite"`
	Enc     EncBlock    `json:"enc"`
	KDF     KDFBlock    `json:"kdf"`
	Expand  ExpandBlock `json:"expand"`

	// Hint is advisory display metadata. It MUST NOT influence any
	// cryptographic computation or authorization decision.
	Hint *Hint `json:"hint,omitempty"`
}

// EncBlock holds the AEAD parameters and output.
type EncBlock struct {
	Algorithm  string `json:"alg"`
	Nonce      Bytes  `json:"nonce"`
	Ciphertext Bytes  `json:"ct"` // ciphertext || tag
}

// KDFBlock describes how the input key material was built. With name
// "none" the remaining fields are absent; with "pbkdf2-sha256" they carry
// the passphrase stretching parameters.
type KDFBlock struct {
	Name       string `json:"name"`
	Salt       Bytes  `json:"salt,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Length     int    `json:"len,omitempty"`
}

// ExpandBlock describes the HKDF expansion step.
type ExpandBlock struct {
	Hash       string `json:"hash"`
	Salt       Bytes  `json:"salt"`
	EncLabel   string `json:"enc_label"`
	ClaimLabel string `json:"claim_label"`
	Length     int    `json:"len"`
}

// Hint carries optional display metadata for the recipient.
type Hint struct {
	Type     string `json:"type,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Validate rejects any envelope that does not match the fixed protocol
// constants exactly, before any cryptographic operation runs. Unrecognized
// JSON fields are tolerated for forward compatibility but are never used.
func Validate(env *Envelope) error {
	if env == nil {
		return fmt.Errorf("%w: missing envelope", interfaces.ErrInvalidEnvelope)
	}
	if env.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", interfaces.ErrInvalidEnvelope, env.Version)
	}
	if env.Suite != Suite {
		return fmt.Errorf("%w: unsupported suite %q", interfaces.ErrInvalidEnvelope, env.Suite)
	}

	if env.Enc.Algorithm != AlgAES256GCM {
		return fmt.Errorf("%w: unsupported algorithm %q", interfaces.ErrInvalidEnvelope, env.Enc.Algorithm)
	}
	if len(env.Enc.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes", interfaces.ErrInvalidEnvelope, NonceSize)
	}
	if len(env.Enc.Ciphertext) < TagSize {
		return fmt.Errorf("%w: ciphertext shorter than tag", interfaces.ErrInvalidEnvelope)
	}

	switch env.KDF.Name {
	case KDFNone:
	case KDFPBKDF2SHA256:
		if len(env.KDF.Salt) < MinPBKDF2SaltSize {
			return fmt.Errorf("%w: pbkdf2 salt must be at least %d bytes", interfaces.ErrInvalidEnvelope, MinPBKDF2SaltSize)
		}
		if env.KDF.Iterations < MinPBKDF2Iterations {
			return fmt.Errorf("%w: pbkdf2 iterations must be at least %d", interfaces.ErrInvalidEnvelope, MinPBKDF2Iterations)
		}
		if env.KDF.Length != KeySize {
			return fmt.Errorf("%w: pbkdf2 output length must be %d", interfaces.ErrInvalidEnvelope, KeySize)
		}
	default:
		return fmt.Errorf("%w: unknown kdf %q", interfaces.ErrInvalidEnvelope, env.KDF.Name)
	}

	if env.Expand.Hash != HashSHA256 {
		return fmt.Errorf("%w: unsupported expansion hash %q", interfaces.ErrInvalidEnvelope, env.Expand.Hash)
	}
	if len(env.Expand.Salt) != ExpandSaltSize {
		return fmt.Errorf("%w: expansion salt must be %d bytes", interfaces.ErrInvalidEnvelope, ExpandSaltSize)
	}
	if env.Expand.EncLabel != LabelEnc {
		return fmt.Errorf("%w: unexpected enc label %q", interfaces.ErrInvalidEnvelope, env.Expand.EncLabel)
	}
	if env.Expand.ClaimLabel != LabelClaim {
		return fmt.Errorf("%w: unexpected claim label %q", interfaces.ErrInvalidEnvelope, env.Expand.ClaimLabel)
	}
	if env.Expand.Length != KeySize {
		return fmt.Errorf("%w: expansion length must be %d", interfaces.ErrInvalidEnvelope, KeySize)
	}

	return nil
}

// Marshal serializes an envelope to its canonical JSON form.
func Marshal(env *Envelope) (json.RawMessage, error) {
	if err := Validate(env); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidEnvelope, err)
	}
	return raw, nil
}

// Parse deserializes and validates an envelope. Any structural failure,
// including malformed base64url, fails closed as ErrInvalidEnvelope.
func Parse(raw json.RawMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidEnvelope, err)
	}
	if err := Validate(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
