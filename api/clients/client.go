// Package clients provides a Go client for the secret sharing API.
//
// The client performs all cryptography locally: plaintext is sealed before
// anything is sent, and claimed envelopes are decrypted after retrieval.
// The server only ever sees sealed envelopes and claim hashes.
package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hushlink/secret-sharing-backend/api"
	"github.com/hushlink/secret-sharing-backend/envelope"
	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// SecretClient talks to a secret sharing server. The zero value is not
// usable; use NewSecretClient.
type SecretClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSecretClient creates a client for the given server base URL. An API
// key of the form "<prefix>.<secret>" switches creates to the
// authenticated endpoint; leave it empty for anonymous use.
func NewSecretClient(baseURL, apiKey string, timeout ...time.Duration) *SecretClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &SecretClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// CreatedSecret is the result of sealing and storing a plaintext.
type CreatedSecret struct {
	// ID is the server-assigned identifier, needed for Burn.
	ID string

	// ShareLink is the complete link to hand to the recipient, fragment
	// included. It is assembled locally; the fragment never reaches the
	// server.
	ShareLink string

	// ExpiresAt is the server-assigned absolute expiry.
	ExpiresAt time.Time
}

// Share seals plaintext and stores the envelope, returning the full share
// link. The passphrase is optional; when set, the recipient needs both the
// link and the passphrase to decrypt.
func (c *SecretClient) Share(ctx context.Context, plaintext []byte, passphrase string, ttlSeconds int64) (*CreatedSecret, error) {
	sec, err := envelope.Create(plaintext, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret: %w", err)
	}

	raw, err := envelope.Marshal(sec.Envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	path := api.PublicCreatePath
	if c.apiKey != "" {
		path = api.AuthedCreatePath
	}

	var created api.CreateSecretResponse
	err = c.post(ctx, path, api.CreateSecretRequest{
		Envelope:   raw,
		ClaimHash:  sec.ClaimHash.String(),
		TTLSeconds: ttlSeconds,
	}, &created)
	if err != nil {
		return nil, err
	}

	shareLink, err := api.ShareURL(c.baseURL, interfaces.SecretID(created.ID), sec.URLKey)
	if err != nil {
		return nil, err
	}

	return &CreatedSecret{
		ID:        created.ID,
		ShareLink: shareLink,
		ExpiresAt: created.ExpiresAt,
	}, nil
}

// Retrieve claims the secret behind a share link and decrypts it locally.
// The claim destroys the server-side record: a second call for the same
// link fails with ErrSecretNotFound.
func (c *SecretClient) Retrieve(ctx context.Context, shareLink, passphrase string) ([]byte, error) {
	id, urlKey, err := api.ParseShareURL(shareLink)
	if err != nil {
		return nil, err
	}

	claimToken, err := envelope.DeriveClaimToken(urlKey)
	if err != nil {
		return nil, err
	}

	var claimed api.ClaimSecretResponse
	err = c.post(ctx, fmt.Sprintf(api.ClaimPathFmt, id), api.ClaimSecretRequest{
		Claim: base64.RawURLEncoding.EncodeToString(claimToken),
	}, &claimed)
	if err != nil {
		return nil, err
	}

	env, err := envelope.Parse(claimed.Envelope)
	if err != nil {
		return nil, err
	}

	return envelope.Decrypt(env, urlKey, passphrase)
}

// Burn destroys a stored secret without claiming it. Requires the API key
// that created the secret.
func (c *SecretClient) Burn(ctx context.Context, id string) error {
	var burned api.BurnSecretResponse
	return c.post(ctx, fmt.Sprintf(api.BurnPathFmt, id), struct{}{}, &burned)
}

func (c *SecretClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorFromStatus maps response codes back onto the shared sentinel errors
// so callers can use errors.Is across the wire boundary.
func errorFromStatus(resp *http.Response) error {
	var body api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	var base error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		base = interfaces.ErrValidation
	case http.StatusUnauthorized:
		base = interfaces.ErrUnauthorized
	case http.StatusNotFound:
		base = interfaces.ErrSecretNotFound
	case http.StatusRequestEntityTooLarge:
		base = &interfaces.QuotaExceededError{Kind: interfaces.QuotaBytes}
	case http.StatusTooManyRequests:
		base = interfaces.ErrRateLimited
	case http.StatusServiceUnavailable:
		base = interfaces.ErrBackendUnavailable
	default:
		return fmt.Errorf("request failed with code %d: %s", resp.StatusCode, body.Error)
	}

	return fmt.Errorf("%w (http %d)", base, resp.StatusCode)
}
