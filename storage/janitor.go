package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

// Janitor periodically deletes expired records on its own goroutine,
// decoupled from request serving. Claim enforces expiry independently, so
// janitor failures are logged and otherwise ignored.
type Janitor struct {
	store    interfaces.SecretStore
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	onSweep  func(deleted int64)

	stop chan struct{}
	done chan struct{}
}

// NewJanitor creates a janitor sweeping at the given interval. onSweep, if
// non-nil, is called with the deleted count after each successful sweep
// (used for metrics).
func NewJanitor(store interfaces.SecretStore, interval time.Duration, log *slog.Logger, onSweep func(deleted int64)) *Janitor {
	return &Janitor{
		store:    store,
		interval: interval,
		timeout:  interval / 2,
		log:      log,
		onSweep:  onSweep,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (j *Janitor) Start() {
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				j.sweep()
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		j.log.Warn("Expiry cleanup failed", "err", err)
		return
	}
	if deleted > 0 {
		j.log.Info("Deleted expired secrets", slog.Int64("count", deleted))
	}
	if j.onSweep != nil {
		j.onSweep(deleted)
	}
}
