package worker

// facturacion_worker.go
// Processes async invoicing jobs from QueueFacturacion. Each job names a
// pendiente comprobante; the worker asks the issuer to authorize it and, once
// approved, renders the PDF and enqueues the customer email.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"anhelo/internal/dto"
	"anhelo/internal/model"
	"anhelo/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EmailEnqueuer is satisfied by *Dispatcher.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload interface{}) error
}

type FacturacionWorker struct {
	svc    service.FacturacionService
	emails EmailEnqueuer
}

func NewFacturacionWorker(svc service.FacturacionService, emails EmailEnqueuer) *FacturacionWorker {
	return &FacturacionWorker{svc: svc, emails: emails}
}

// Process handles a single job:
//  1. Parse dto.FacturacionJob
//  2. EmitirPendiente (last number → token → FECAESolicitar)
//  3. Transport failures stay pendiente for the retry cron
//  4. Approved: PDF + optional email job
//
// An error means the comprobante reached a final failed state and the job
// belongs in the DLQ.
func (w *FacturacionWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var job dto.FacturacionJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("facturacion_worker: invalid payload: %w", err)
	}
	id, err := uuid.Parse(job.ComprobanteID)
	if err != nil {
		return fmt.Errorf("facturacion_worker: invalid comprobante_id %q", job.ComprobanteID)
	}

	comp, err := w.svc.EmitirPendiente(ctx, id)
	switch {
	case errors.Is(err, service.ErrComprobanteNoPendiente):
		// redelivery of a job already handled
		log.Info().Str("comprobante_id", job.ComprobanteID).Str("estado", comp.Estado).Msg("facturacion_worker: comprobante ya procesado")
		return nil
	case err != nil && comp != nil && comp.Estado == model.EstadoPendiente:
		log.Warn().Err(err).
			Str("comprobante_id", job.ComprobanteID).
			Int("retry_count", comp.RetryCount).
			Msg("facturacion_worker: AFIP no disponible, queda para el retry cron")
		return nil
	case err != nil:
		log.Error().Err(err).Str("comprobante_id", job.ComprobanteID).Msg("facturacion_worker: emision fallida")
		return err
	}

	if comp.Estado != model.EstadoAprobado {
		log.Warn().Str("comprobante_id", job.ComprobanteID).Str("estado", comp.Estado).Msg("facturacion_worker: AFIP rechazo el comprobante")
		return nil
	}
	log.Info().Str("comprobante_id", job.ComprobanteID).Str("cae", deref(comp.CAE)).Msg("facturacion_worker: CAE obtenido")

	email := job.ClienteEmail
	if email == nil {
		email = comp.ClienteEmail
	}
	entregarComprobante(ctx, w.svc, w.emails, comp, email)
	return nil
}

// entregarComprobante renders the PDF and enqueues the email. Both steps are
// best-effort: the invoice is already authorized.
func entregarComprobante(ctx context.Context, svc service.FacturacionService, emails EmailEnqueuer, comp *model.Comprobante, email *string) {
	pdfPath, err := svc.ObtenerPDFPath(ctx, comp.ID)
	if err != nil {
		log.Warn().Err(err).Str("comprobante_id", comp.ID.String()).Msg("facturacion_worker: PDF generation failed")
		return
	}
	if email == nil || *email == "" || emails == nil {
		return
	}
	numero := int64(0)
	if comp.Numero != nil {
		numero = *comp.Numero
	}
	emailJob := EmailJobPayload{
		ToEmail: *email,
		Subject: fmt.Sprintf("Factura %s %04d-%08d", comp.TipoFactura, comp.PuntoDeVenta, numero),
		Body:    fmt.Sprintf("Adjuntamos su factura.\nTotal: $%s\nCAE: %s", comp.MontoTotal.StringFixed(2), deref(comp.CAE)),
		PDFPath: pdfPath,
	}
	if err := emails.EnqueueEmail(ctx, emailJob); err != nil {
		log.Warn().Err(err).Str("email", *email).Msg("facturacion_worker: failed to enqueue email")
		return
	}
	log.Info().Str("email", *email).Msg("facturacion_worker: email job enqueued")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
