package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// secretsSchema is applied on startup. Full migration tooling is managed
// by the deployment, not this process; the statement is idempotent.
const secretsSchema = `
CREATE TABLE IF NOT EXISTS secrets (
	id         uuid PRIMARY KEY,
	claim_hash text        NOT NULL,
	envelope   bytea       NOT NULL,
	owner_key  text        NOT NULL,
	created_at timestamptz NOT NULL,
	expires_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS secrets_owner_expiry_idx ON secrets (owner_key, expires_at);
CREATE INDEX IF NOT EXISTS secrets_expiry_idx ON secrets (expires_at);
`

// PostgresStore is a secret store backed by PostgreSQL via pgx. Claim and
// burn are each one conditional DELETE .. RETURNING statement, so the
// one-time-claim guarantee rests on the database's own isolation: of any
// number of concurrent deletes for the same row, exactly one sees it.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, log *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := pool.Exec(ctx, secretsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure secrets schema: %w", err)
	}

	return &PostgresStore{pool: pool, log: log}, nil
}

// Create persists a new record and returns its id and absolute expiry.
func (s *PostgresStore) Create(ctx context.Context, env json.RawMessage, claimHash interfaces.ClaimHash, ttlSeconds int64, owner interfaces.OwnerKey) (interfaces.SecretID, time.Time, error) {
	ttl, err := interfaces.ValidateTTL(ttlSeconds)
	if err != nil {
		return "", time.Time{}, err
	}

	id := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO secrets (id, claim_hash, envelope, owner_key, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, claimHash.String(), []byte(env), string(owner), now, expiresAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return interfaces.SecretID(id), expiresAt, nil
}

// Claim performs the atomic conditional delete. A row is removed and
// returned only if id, claim hash, and expiry all match in one statement.
func (s *PostgresStore) Claim(ctx context.Context, id interfaces.SecretID, claimToken []byte, now time.Time) (json.RawMessage, time.Time, error) {
	hash := interfaces.NewClaimHash(claimToken)

	var env []byte
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		`DELETE FROM secrets
		 WHERE id = $1 AND claim_hash = $2 AND expires_at > $3
		 RETURNING envelope, expires_at`,
		string(id), hash.String(), now).Scan(&env, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, interfaces.ErrSecretNotFound
	}
	if err != nil {
		// Invalid UUID text also means "no such record" to the caller.
		if isInvalidUUIDErr(err) {
			return nil, time.Time{}, interfaces.ErrSecretNotFound
		}
		return nil, time.Time{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return env, expiresAt, nil
}

// Burn deletes the record iff both id and owner match.
func (s *PostgresStore) Burn(ctx context.Context, id interfaces.SecretID, owner interfaces.OwnerKey) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM secrets WHERE id = $1 AND owner_key = $2`,
		string(id), string(owner))
	if err != nil {
		if isInvalidUUIDErr(err) {
			return interfaces.ErrSecretNotFound
		}
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrSecretNotFound
	}
	return nil
}

// OwnerUsage counts active records and bytes for one owner.
func (s *PostgresStore) OwnerUsage(ctx context.Context, owner interfaces.OwnerKey, now time.Time) (interfaces.OwnerUsage, error) {
	var usage interfaces.OwnerUsage
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(octet_length(envelope)), 0)
		 FROM secrets WHERE owner_key = $1 AND expires_at > $2`,
		string(owner), now).Scan(&usage.ActiveSecrets, &usage.ActiveBytes)
	if err != nil {
		return interfaces.OwnerUsage{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return usage, nil
}

// DeleteExpired removes all expired rows and reports the count.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM secrets WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// Available reports whether the database responds to a ping.
func (s *PostgresStore) Available(ctx context.Context) bool {
	if err := s.pool.Ping(ctx); err != nil {
		s.log.Debug("Postgres backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns the backend identifier.
func (s *PostgresStore) Name() string { return "postgres" }

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// isInvalidUUIDErr detects the Postgres error raised when a caller-supplied
// id does not parse as a uuid. Such ids can never name a record.
func isInvalidUUIDErr(err error) bool {
	var pgErr interface{ SQLState() string }
	// 22P02: invalid_text_representation
	return errors.As(err, &pgErr) && pgErr.SQLState() == "22P02"
}
