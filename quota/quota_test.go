package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushlink/secret-sharing-backend/envelope"
	"github.com/hushlink/secret-sharing-backend/interfaces"
	"github.com/hushlink/secret-sharing-backend/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createSecrets(t *testing.T, store interfaces.SecretStore, owner interfaces.OwnerKey, n int) int64 {
	t.Helper()
	ctx := context.Background()
	var bytes int64
	for range n {
		sec, err := envelope.Create([]byte("quota filler"), "")
		require.NoError(t, err)
		raw, err := envelope.Marshal(sec.Envelope)
		require.NoError(t, err)
		_, _, err = store.Create(ctx, raw, sec.ClaimHash, 3600, owner)
		require.NoError(t, err)
		bytes += int64(len(raw))
	}
	return bytes
}

func TestAdmitSecretCountBoundary(t *testing.T) {
	store := storage.NewMemoryStore(testLogger())
	acct := NewAccountant(store, Config{
		Public: interfaces.TierLimits{MaxActiveSecrets: 3, MaxActiveBytes: 1 << 30},
	}, testLogger())
	owner := interfaces.OwnerKeyForIP("192.0.2.1")

	createSecrets(t, store, owner, 2)
	require.NoError(t, acct.Admit(context.Background(), owner, interfaces.TierPublic, 100, time.Now()))

	// The owner is now at the cap of 3; the next create must fail with the
	// count-specific signal.
	createSecrets(t, store, owner, 1)
	err := acct.Admit(context.Background(), owner, interfaces.TierPublic, 100, time.Now())
	require.ErrorIs(t, err, interfaces.ErrQuotaExceeded)

	var qErr *interfaces.QuotaExceededError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, interfaces.QuotaSecretCount, qErr.Kind)
}

func TestAdmitByteQuotaUnderCountCap(t *testing.T) {
	store := storage.NewMemoryStore(testLogger())
	owner := interfaces.OwnerKeyForIP("192.0.2.2")
	used := createSecrets(t, store, owner, 1)

	acct := NewAccountant(store, Config{
		Public: interfaces.TierLimits{MaxActiveSecrets: 100, MaxActiveBytes: used + 50},
	}, testLogger())

	// Well under the count cap, but this envelope would push cumulative
	// bytes past the byte cap.
	err := acct.Admit(context.Background(), owner, interfaces.TierPublic, 51, time.Now())
	require.ErrorIs(t, err, interfaces.ErrQuotaExceeded)

	var qErr *interfaces.QuotaExceededError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, interfaces.QuotaBytes, qErr.Kind)

	// An envelope that exactly fits is admitted.
	assert.NoError(t, acct.Admit(context.Background(), owner, interfaces.TierPublic, 50, time.Now()))
}

func TestAdmitTiersUseDistinctCaps(t *testing.T) {
	store := storage.NewMemoryStore(testLogger())
	acct := NewAccountant(store, Config{
		Public:        interfaces.TierLimits{MaxActiveSecrets: 1, MaxActiveBytes: 1 << 20},
		Authenticated: interfaces.TierLimits{MaxActiveSecrets: 50, MaxActiveBytes: 1 << 20},
	}, testLogger())
	owner := interfaces.OwnerKeyForAPIKey("ab12cd34")

	createSecrets(t, store, owner, 1)

	assert.Error(t, acct.Admit(context.Background(), owner, interfaces.TierPublic, 10, time.Now()))
	assert.NoError(t, acct.Admit(context.Background(), owner, interfaces.TierAuthenticated, 10, time.Now()))
}

func TestAdmitIgnoresOtherOwners(t *testing.T) {
	store := storage.NewMemoryStore(testLogger())
	acct := NewAccountant(store, Config{
		Public: interfaces.TierLimits{MaxActiveSecrets: 1, MaxActiveBytes: 1 << 20},
	}, testLogger())

	createSecrets(t, store, interfaces.OwnerKeyForIP("192.0.2.3"), 1)

	// A different owner is unaffected by the first owner's usage.
	assert.NoError(t, acct.Admit(context.Background(), interfaces.OwnerKeyForIP("192.0.2.4"), interfaces.TierPublic, 10, time.Now()))
}
