// Package quota enforces per-owner caps on active secrets before a create
// is admitted. Owners are policy tags (client IP or API key prefix); public
// owners get stricter caps than authenticated ones. All caps are injected
// configuration, not constants.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// Config holds the tier caps.
type Config struct {
	Public        interfaces.TierLimits
	Authenticated interfaces.TierLimits
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Public:        interfaces.TierLimits{MaxActiveSecrets: 10, MaxActiveBytes: 1 << 20},
		Authenticated: interfaces.TierLimits{MaxActiveSecrets: 200, MaxActiveBytes: 64 << 20},
	}
}

// Accountant checks an owner's active footprint against tier caps. It reads
// usage from the secret store; admission and the subsequent create are not
// one atomic step, which is acceptable: quota is resource policy, not a
// security invariant.
type Accountant struct {
	store interfaces.SecretStore
	cfg   Config
	log   *slog.Logger
}

// NewAccountant creates an accountant over the given store.
func NewAccountant(store interfaces.SecretStore, cfg Config, log *slog.Logger) *Accountant {
	return &Accountant{store: store, cfg: cfg, log: log}
}

// Admit decides whether owner may create one more secret of envelopeSize
// bytes. Returns a QuotaExceededError naming the tripped cap, or an
// infrastructure error if usage cannot be read.
func (a *Accountant) Admit(ctx context.Context, owner interfaces.OwnerKey, tier interfaces.Tier, envelopeSize int64, now time.Time) error {
	limits := a.limitsFor(tier)

	usage, err := a.store.OwnerUsage(ctx, owner, now)
	if err != nil {
		return fmt.Errorf("failed to read owner usage: %w", err)
	}

	if usage.ActiveSecrets >= limits.MaxActiveSecrets {
		a.log.Debug("Create rejected by secret-count quota",
			slog.String("tier", tier.String()),
			slog.Int("active", usage.ActiveSecrets))
		return &interfaces.QuotaExceededError{Kind: interfaces.QuotaSecretCount}
	}

	if usage.ActiveBytes+envelopeSize > limits.MaxActiveBytes {
		a.log.Debug("Create rejected by byte quota",
			slog.String("tier", tier.String()),
			slog.Int64("activeBytes", usage.ActiveBytes),
			slog.Int64("envelopeBytes", envelopeSize))
		return &interfaces.QuotaExceededError{Kind: interfaces.QuotaBytes}
	}

	return nil
}

func (a *Accountant) limitsFor(tier interfaces.Tier) interfaces.TierLimits {
	if tier == interfaces.TierAuthenticated {
		return a.cfg.Authenticated
	}
	return a.cfg.Public
}
