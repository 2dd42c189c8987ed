package apikey

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// KeyStoreFor creates a key store from a location URI.
//
// Supported schemes:
//   - file:///path/to/keys.json - JSON array of records, loaded at startup
//   - vault://host:port/mount/path - Vault KV v2 (token from environment)
//   - none:// - empty store; every authenticated request is rejected
func KeyStoreFor(locationURI string, log *slog.Logger) (KeyStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid key store URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewFileKeyStore(u.Path)
	case "vault":
		mount, dataPath, ok := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if !ok {
			return nil, fmt.Errorf("vault key store URI needs /mount/path, got %q", u.Path)
		}
		return NewVaultKeyStore("https://"+u.Host, mount, dataPath, log)
	case "none", "":
		return NewStaticKeyStore(nil), nil
	default:
		return nil, fmt.Errorf("unsupported key store scheme: %s", u.Scheme)
	}
}
