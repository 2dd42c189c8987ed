package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// Secret is the result of sealing a plaintext. The envelope and claim hash
// go to the server; the URL key goes into the share link fragment and never
// to the server; the claim token authorizes the one retrieval.
type Secret struct {
	Envelope   *Envelope
	URLKey     []byte
	ClaimToken []byte
	ClaimHash  interfaces.ClaimHash
}

// Create seals plaintext into a fresh envelope.
//
// A random 32-byte URL key is generated. Without a passphrase the input key
// material is the URL key itself; with a passphrase it is
// SHA-256(url_key || PBKDF2-HMAC-SHA256(passphrase, salt, iters, 32)).
// The encryption key is expanded with HKDF-SHA-256 under LabelEnc and a
// fresh 32-byte salt, and the plaintext is sealed with AES-256-GCM under a
// fresh nonce and the fixed associated data.
func Create(plaintext []byte, passphrase string) (*Secret, error) {
	urlKey := make([]byte, URLKeySize)
	if _, err := io.ReadFull(rand.Reader, urlKey); err != nil {
		return nil, fmt.Errorf("failed to generate url key: %w", err)
	}

	kdfBlock := KDFBlock{Name: KDFNone}
	ikm := urlKey
	if passphrase != "" {
		salt := make([]byte, DefaultPBKDF2SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate pbkdf2 salt: %w", err)
		}
		kdfBlock = KDFBlock{
			Name:       KDFPBKDF2SHA256,
			Salt:       salt,
			Iterations: DefaultPBKDF2Iterations,
			Length:     KeySize,
		}
		ikm = mixPassphrase(urlKey, passphrase, kdfBlock)
	}

	expandSalt := make([]byte, ExpandSaltSize)
	if _, err := io.ReadFull(rand.Reader, expandSalt); err != nil {
		return nil, fmt.Errorf("failed to generate expansion salt: %w", err)
	}

	encKey, err := expand(ikm, expandSalt, LabelEnc, KeySize)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newAEAD(encKey)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	env := &Envelope{
		Version: Version,
		Suite:   Suite,
		Enc: EncBlock{
			Algorithm:  AlgAES256GCM,
			Nonce:      nonce,
			Ciphertext: ciphertext,
		},
		KDF: kdfBlock,
		Expand: ExpandBlock{
			Hash:       HashSHA256,
			Salt:       expandSalt,
			EncLabel:   LabelEnc,
			ClaimLabel: LabelClaim,
			Length:     KeySize,
		},
	}

	claimToken, err := DeriveClaimToken(urlKey)
	if err != nil {
		return nil, err
	}

	return &Secret{
		Envelope:   env,
		URLKey:     urlKey,
		ClaimToken: claimToken,
		ClaimHash:  interfaces.NewClaimHash(claimToken),
	}, nil
}

// Decrypt opens an envelope with the URL key and optional passphrase. The
// input key material is recomputed from the KDF parameters embedded in the
// envelope, never from local assumptions.
//
// Every authentication failure (wrong key, wrong passphrase, tampered
// ciphertext) is reported uniformly as ErrDecryptionFailed so this layer
// cannot be used as an oracle to distinguish causes.
func Decrypt(env *Envelope, urlKey []byte, passphrase string) ([]byte, error) {
	if err := Validate(env); err != nil {
		return nil, err
	}
	if len(urlKey) != URLKeySize {
		return nil, interfaces.ErrDecryptionFailed
	}

	ikm := urlKey
	if env.KDF.Name == KDFPBKDF2SHA256 {
		ikm = mixPassphrase(urlKey, passphrase, env.KDF)
	}

	encKey, err := expand(ikm, env.Expand.Salt, LabelEnc, KeySize)
	if err != nil {
		return nil, interfaces.ErrDecryptionFailed
	}

	aead, err := newAEAD(encKey)
	if err != nil {
		return nil, interfaces.ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, env.Enc.Nonce, env.Enc.Ciphertext, aad)
	if err != nil {
		return nil, interfaces.ErrDecryptionFailed
	}
	// An empty plaintext opens to a nil slice; callers get the same bytes
	// they sealed.
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// mixPassphrase stretches the passphrase with the block's PBKDF2 parameters
// and binds it to the URL key: SHA-256(url_key || pass_key).
func mixPassphrase(urlKey []byte, passphrase string, kdf KDFBlock) []byte {
	passKey := pbkdf2.Key([]byte(passphrase), kdf.Salt, kdf.Iterations, KeySize, sha256.New)
	h := sha256.New()
	h.Write(urlKey)
	h.Write(passKey)
	return h.Sum(nil)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
