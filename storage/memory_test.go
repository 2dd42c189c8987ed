package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushlink/secret-sharing-backend/envelope"
	"github.com/hushlink/secret-sharing-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sealTestSecret(t *testing.T) (json.RawMessage, *envelope.Secret) {
	t.Helper()
	sec, err := envelope.Create([]byte("stored payload"), "")
	require.NoError(t, err)
	raw, err := envelope.Marshal(sec.Envelope)
	require.NoError(t, err)
	return raw, sec
}

func TestMemoryStoreCreateAndClaim(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	raw, sec := sealTestSecret(t)

	id, expiresAt, err := store.Create(ctx, raw, sec.ClaimHash, 3600, interfaces.OwnerKeyForIP("192.0.2.1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, gotExpiry, err := store.Claim(ctx, id, sec.ClaimToken, time.Now())
	require.NoError(t, err)
	assert.Equal(t, raw, got, "claim must return the identical envelope bytes")
	assert.Equal(t, expiresAt, gotExpiry)

	// Second claim: the record is gone.
	_, _, err = store.Claim(ctx, id, sec.ClaimToken, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)
}

func TestMemoryStoreClaimWrongToken(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	raw, sec := sealTestSecret(t)

	id, _, err := store.Create(ctx, raw, sec.ClaimHash, 0, interfaces.OwnerKeyForIP("192.0.2.1"))
	require.NoError(t, err)

	wrong := append([]byte(nil), sec.ClaimToken...)
	wrong[0] ^= 0xff
	_, _, err = store.Claim(ctx, id, wrong, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)

	// The failed attempt must not have consumed the record.
	_, _, err = store.Claim(ctx, id, sec.ClaimToken, time.Now())
	assert.NoError(t, err)
}

func TestMemoryStoreClaimExpired(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	raw, sec := sealTestSecret(t)

	id, expiresAt, err := store.Create(ctx, raw, sec.ClaimHash, 60, interfaces.OwnerKeyForIP("192.0.2.1"))
	require.NoError(t, err)

	// Past expiry the claim fails even though the record still physically
	// exists (no janitor has run).
	_, _, err = store.Claim(ctx, id, sec.ClaimToken, expiresAt.Add(time.Second))
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)

	deleted, err := store.DeleteExpired(ctx, expiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestMemoryStoreClaimAtomicity(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	raw, sec := sealTestSecret(t)

	id, _, err := store.Create(ctx, raw, sec.ClaimHash, 3600, interfaces.OwnerKeyForIP("192.0.2.1"))
	require.NoError(t, err)

	const claimants = 64
	var wg sync.WaitGroup
	results := make(chan error, claimants)
	start := make(chan struct{})

	for range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := store.Claim(ctx, id, sec.ClaimToken, time.Now())
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var succeeded, notFound int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)
			notFound++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent claim may succeed")
	assert.Equal(t, claimants-1, notFound)
}

func TestMemoryStoreBurn(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	raw, sec := sealTestSecret(t)
	owner := interfaces.OwnerKeyForAPIKey("ab12cd34")

	id, _, err := store.Create(ctx, raw, sec.ClaimHash, 3600, owner)
	require.NoError(t, err)

	// Wrong owner is indistinguishable from a nonexistent id.
	err = store.Burn(ctx, id, interfaces.OwnerKeyForAPIKey("zz99zz99"))
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)

	require.NoError(t, store.Burn(ctx, id, owner))

	err = store.Burn(ctx, id, owner)
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)

	_, _, err = store.Claim(ctx, id, sec.ClaimToken, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)
}

func TestMemoryStoreOwnerUsage(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	owner := interfaces.OwnerKeyForIP("198.51.100.7")
	other := interfaces.OwnerKeyForIP("198.51.100.8")

	var total int64
	for range 3 {
		raw, sec := sealTestSecret(t)
		_, _, err := store.Create(ctx, raw, sec.ClaimHash, 3600, owner)
		require.NoError(t, err)
		total += int64(len(raw))
	}
	rawOther, secOther := sealTestSecret(t)
	_, _, err := store.Create(ctx, rawOther, secOther.ClaimHash, 3600, other)
	require.NoError(t, err)

	usage, err := store.OwnerUsage(ctx, owner, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, usage.ActiveSecrets)
	assert.Equal(t, total, usage.ActiveBytes)

	// Expired records do not count against the owner.
	usage, err = store.OwnerUsage(ctx, owner, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, usage.ActiveSecrets)
	assert.Zero(t, usage.ActiveBytes)
}

func TestMemoryStoreTTLValidation(t *testing.T) {
	store := NewMemoryStore(testLogger())
	ctx := context.Background()
	raw, sec := sealTestSecret(t)

	tests := []struct {
		name    string
		ttl     int64
		wantErr bool
	}{
		{"default on zero", 0, false},
		{"minimum", 1, false},
		{"maximum", 31536000, false},
		{"negative", -5, true},
		{"over maximum", 31536001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, expiresAt, err := store.Create(ctx, raw, sec.ClaimHash, tt.ttl, "ip:t")
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrValidation)
				return
			}
			require.NoError(t, err)
			if tt.ttl == 0 {
				assert.WithinDuration(t, time.Now().Add(interfaces.DefaultTTLSeconds*time.Second), expiresAt, 5*time.Second)
			}
		})
	}
}
