package envelope

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveClaimToken derives the bearer claim token from the URL key alone:
// HKDF-SHA-256(url_key, salt="", info=LabelClaim, 32).
//
// The token is deliberately a pure function of the URL key, never of the
// passphrase-mixed input key material or the envelope's expansion salt, so
// it is computable before the envelope is fetched and proves link
// possession without carrying any decryption capability.
func DeriveClaimToken(urlKey []byte) ([]byte, error) {
	if len(urlKey) != URLKeySize {
		return nil, fmt.Errorf("url key must be %d bytes, got %d", URLKeySize, len(urlKey))
	}
	return expand(urlKey, nil, LabelClaim, ClaimTokenSize)
}

// expand runs one HKDF-SHA-256 extract-and-expand.
func expand(ikm, salt []byte, label string, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, []byte(label))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.New("hkdf expansion failed")
	}
	return out, nil
}
