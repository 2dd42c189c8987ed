package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// StoreFactory creates secret store backends from location URIs.
type StoreFactory struct {
	log *slog.Logger
}

// NewStoreFactory creates a new factory instance.
func NewStoreFactory(log *slog.Logger) *StoreFactory {
	return &StoreFactory{log: log}
}

// StoreFor creates a secret store from a location URI.
//
// Supported schemes:
//   - mem:// - In-process sharded map, for tests and single-node setups
//   - postgres:// (or postgresql://) - PostgreSQL via pgx; the DSN is the
//     URI itself
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *StoreFactory) StoreFor(ctx context.Context, locationURI string) (interfaces.SecretStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidStoreURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "mem", "memory":
		f.log.Debug("Creating in-memory secret store")
		return NewMemoryStore(f.log), nil
	case "postgres", "postgresql":
		f.log.Debug("Creating postgres secret store", slog.String("host", u.Host))
		return NewPostgresStore(ctx, locationURI, f.log)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidStoreURI, u.Scheme)
	}
}
