package worker

// retry_cron.go
// Background goroutine that periodically re-attempts comprobantes stuck in
// estado='pendiente' with a next_retry_at in the past. Uses the circuit
// breaker state to avoid hammering WSFE while it is down.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anhelo/internal/dto"
	"anhelo/internal/infra"
	"anhelo/internal/model"
	"anhelo/internal/repository"
	"anhelo/internal/service"

	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	ComprobanteRepo repository.ComprobanteRepository
	Facturacion     service.FacturacionService
	CB              *infra.CircuitBreaker
	DLQ             DeadLetterSink
	Emails          EmailEnqueuer
	// Now defaults to time.Now.
	Now func() time.Time
}

// StartRetryCron launches a background goroutine that ticks every 30s and
// re-issues due comprobantes. It respects the context for graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg)
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig) {
	if cfg.CB != nil && cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping tick")
		return
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	comprobantes, err := cfg.ComprobanteRepo.ListPendingRetries(ctx, now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending retries")
		return
	}
	if len(comprobantes) == 0 {
		return
	}

	log.Info().Int("count", len(comprobantes)).Msg("retry_cron: processing pending comprobantes")

	for i := range comprobantes {
		// the breaker may trip mid-batch
		if cfg.CB != nil && cfg.CB.State() == infra.CBOpen {
			log.Debug().Msg("retry_cron: circuit breaker opened mid-batch, stopping")
			return
		}

		id := comprobantes[i].ID
		comp, err := cfg.Facturacion.EmitirPendiente(ctx, id)
		if err != nil {
			if comp == nil || comp.Estado == model.EstadoPendiente {
				log.Warn().Err(err).Str("comprobante_id", id.String()).Msg("retry_cron: retry failed, scheduled next attempt")
				continue
			}
			if comp.Estado == model.EstadoError && cfg.DLQ != nil {
				payload, _ := json.Marshal(dto.FacturacionJob{ComprobanteID: id.String(), ClienteEmail: comp.ClienteEmail})
				cfg.DLQ.Send(ctx, QueueFacturacion, "facturacion", payload,
					fmt.Sprintf("retry_cron: %v", err), comp.RetryCount)
			}
			continue
		}

		if comp.Estado == model.EstadoAprobado {
			log.Info().
				Str("comprobante_id", id.String()).
				Int("total_retries", comp.RetryCount).
				Msg("retry_cron: CAE obtained after retry")
			entregarComprobante(ctx, cfg.Facturacion, cfg.Emails, comp, comp.ClienteEmail)
		} else {
			log.Warn().Str("comprobante_id", id.String()).Str("estado", comp.Estado).Msg("retry_cron: AFIP rejected on retry")
		}
	}
}
