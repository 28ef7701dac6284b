package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"device-pairing-service/internal/infra/metrics"
	"device-pairing-service/internal/usecase"
)

// ExpiryWorker periodically retires stale activations via the use case.
// It is a storage-bounding optimization: expiry stays correct without it
// because reads and claims evaluate the TTL themselves.
type ExpiryWorker struct {
	interval  time.Duration
	retention time.Duration
	pairingUC *usecase.PairingUseCase
	log       *zerolog.Logger
}

func NewExpiryWorker(interval, retention time.Duration, pairingUC *usecase.PairingUseCase, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:  interval,
		retention: retention,
		pairingUC: pairingUC,
		log:       &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.pairingUC.ExpireStale(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				metrics.IncActivationsExpired(n)
				w.log.Info().Int("count", n).Msg("stale activations expired")
			}
			purged, err := w.pairingUC.PurgeExpiredBefore(ctx, w.retention)
			if err != nil {
				w.log.Error().Err(err).Msg("purge error")
			}
			if purged > 0 {
				w.log.Info().Int("count", purged).Msg("terminal activations purged")
			}
		}
	}
}
