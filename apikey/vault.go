package apikey

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// VaultKeyStore reads key records from a HashiCorp Vault KV v2 mount. Each
// record lives at <mount>/data/<path>/<prefix> with fields "digest"
// (base64), optional "revoked_at" (RFC 3339), and optional "scopes".
//
// The Vault token and TLS settings come from the standard VAULT_*
// environment variables.
type VaultKeyStore struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultKeyStore creates a Vault-backed key store.
func NewVaultKeyStore(address, mountPath, dataPath string, log *slog.Logger) (*VaultKeyStore, error) {
	config := api.DefaultConfig()
	if address != "" {
		config.Address = address
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultKeyStore{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}, nil
}

// Lookup reads the record for a prefix. Unknown prefixes return (nil, nil).
func (s *VaultKeyStore) Lookup(ctx context.Context, prefix string) (*Record, error) {
	path := fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, prefix)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	// KV v2 wraps the payload in a "data" field.
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected Vault response shape at %s", path)
	}

	digestStr, ok := data["digest"].(string)
	if !ok {
		return nil, fmt.Errorf("key record at %s has no digest", path)
	}
	digest, err := base64.StdEncoding.DecodeString(digestStr)
	if err != nil {
		return nil, fmt.Errorf("key record at %s has malformed digest: %w", path, err)
	}

	rec := &Record{Prefix: prefix, Digest: digest}

	if revoked, ok := data["revoked_at"].(string); ok && revoked != "" {
		ts, err := time.Parse(time.RFC3339, revoked)
		if err != nil {
			return nil, fmt.Errorf("key record at %s has malformed revoked_at: %w", path, err)
		}
		rec.RevokedAt = &ts
	}

	if scopes, ok := data["scopes"].([]any); ok {
		for _, sc := range scopes {
			if str, ok := sc.(string); ok {
				rec.Scopes = append(rec.Scopes, str)
			}
		}
	}

	return rec, nil
}
