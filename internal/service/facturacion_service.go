package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"anhelo/internal/afip"
	"anhelo/internal/dto"
	"anhelo/internal/infra"
	"anhelo/internal/model"
	"anhelo/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// MaxComprobanteRetries bounds the async attempts before a comprobante is
	// moved to estado "error".
	MaxComprobanteRetries = 5

	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = 30 * time.Minute
)

var (
	ErrComprobanteNoEncontrado = errors.New("comprobante no encontrado")
	ErrComprobanteNoPendiente  = errors.New("el comprobante no esta pendiente")
	ErrPDFNoDisponible         = errors.New("PDF no disponible")
	// ErrPosibleDuplicado stops a retry whose number may already have been
	// authorized by a previous attempt whose answer was lost.
	ErrPosibleDuplicado = errors.New("el numero pudo haber sido autorizado en un intento anterior")
)

// WSFEClient is the invoicing half of afip.Client.
type WSFEClient interface {
	FECompUltimoAutorizado(ctx context.Context, auth afip.Auth, ptoVta, cbteTipo int) (*afip.UltimoAutorizadoResult, error)
	FECAESolicitar(ctx context.Context, req afip.CAERequest) (*afip.CAEResult, error)
	FEDummy(ctx context.Context) (*afip.DummyResult, error)
}

// JobEnqueuer pushes async invoicing jobs. Implemented by worker.Dispatcher.
type JobEnqueuer interface {
	EnqueueFacturacion(ctx context.Context, payload interface{}) error
}

type FacturacionService interface {
	GenerateInvoice(ctx context.Context, req dto.FacturaRequest) (*dto.FacturaResult, error)
	GetLastDocumentNumber(ctx context.Context, ptoVta, cbteTipo int, cuit string) (int64, error)
	GenerateInvoiceBatch(ctx context.Context, reqs []dto.FacturaRequest) []dto.FacturaBatchItem
	ServerStatus(ctx context.Context) (*dto.ServerStatusResponse, error)
	EncolarFactura(ctx context.Context, req dto.FacturaRequest) (*dto.FacturaEncoladaResponse, error)
	EmitirPendiente(ctx context.Context, id uuid.UUID) (*model.Comprobante, error)
	ObtenerComprobante(ctx context.Context, id uuid.UUID) (*dto.ComprobanteResponse, error)
	ObtenerPDFPath(ctx context.Context, id uuid.UUID) (string, error)
}

type FacturacionConfig struct {
	TributoDesc    string
	Location       *time.Location
	PDFStoragePath string
	Emisor         infra.Emisor
	// Now defaults to time.Now.
	Now func() time.Time
}

type facturacionService struct {
	tokens   TokenService
	wsfe     WSFEClient
	repo     repository.ComprobanteRepository
	cb       *infra.CircuitBreaker
	enqueuer JobEnqueuer
	locks    *keyedLock
	cfg      FacturacionConfig
}

// NewFacturacionService wires the invoice issuer. cb and enqueuer may be nil:
// calls then go straight to WSFE and EncolarFactura is unavailable.
func NewFacturacionService(
	tokens TokenService,
	wsfe WSFEClient,
	repo repository.ComprobanteRepository,
	cb *infra.CircuitBreaker,
	enqueuer JobEnqueuer,
	cfg FacturacionConfig,
) FacturacionService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TributoDesc == "" {
		cfg.TributoDesc = "Impuesto Municipal"
	}
	return &facturacionService{
		tokens:   tokens,
		wsfe:     wsfe,
		repo:     repo,
		cb:       cb,
		enqueuer: enqueuer,
		locks:    newKeyedLock(),
		cfg:      cfg,
	}
}

// ValidateFacturaRequest checks the fields WSFE cannot do without. It never
// touches the network.
func ValidateFacturaRequest(req dto.FacturaRequest) error {
	fields := map[string]string{}
	if strings.TrimSpace(req.Cuit) == "" {
		fields["cuit"] = "required"
	}
	if req.PuntoVenta <= 0 {
		fields["punto_venta"] = "required"
	}
	if req.ImporteTotal == nil {
		fields["importe_total"] = "required"
	} else if !req.ImporteTotal.IsPositive() {
		fields["importe_total"] = "gt=0"
	}
	if req.ImporteNeto == nil {
		fields["importe_neto"] = "required"
	}
	if strings.TrimSpace(req.TipoFactura) == "" {
		fields["tipo_factura"] = "required"
	}
	if req.ImporteTributos != nil {
		switch {
		case req.ImporteTributos.IsNegative():
			fields["importe_tributos"] = "gte=0"
		case req.ImporteTotal != nil && req.ImporteTributos.GreaterThanOrEqual(*req.ImporteTotal):
			fields["importe_tributos"] = "ltfield=importe_total"
		}
	}
	if len(fields) > 0 {
		return &afip.ValidationError{Fields: fields}
	}
	return nil
}

// GenerateInvoice authorizes a single invoice. Issuance for the same punto de
// venta and voucher type is serialized so two calls never read the same last
// number. A rejected voucher is a result, not an error.
func (s *facturacionService) GenerateInvoice(ctx context.Context, req dto.FacturaRequest) (*dto.FacturaResult, error) {
	if err := ValidateFacturaRequest(req); err != nil {
		return nil, err
	}
	comp := nuevoComprobante(req)

	unlock := s.locks.Lock(numeracionKey(comp.PuntoDeVenta, comp.CbteTipo))
	res, err := s.emitir(ctx, comp)
	unlock()

	if err != nil {
		marcarError(comp, err)
	}
	if perr := s.repo.Create(ctx, comp); perr != nil {
		log.Error().Err(perr).Str("cuit", comp.Cuit).Msg("facturacion: no se pudo registrar el comprobante")
	} else if res != nil {
		res.ComprobanteID = comp.ID.String()
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetLastDocumentNumber returns the last authorized number, or 0 when WSFE
// reports none.
func (s *facturacionService) GetLastDocumentNumber(ctx context.Context, ptoVta, cbteTipo int, cuit string) (int64, error) {
	ticket, err := s.tokens.EnsureToken(ctx)
	if err != nil {
		return 0, err
	}
	auth := afip.Auth{Token: ticket.Token, Sign: ticket.Sign, Cuit: cuit}

	var res *afip.UltimoAutorizadoResult
	err = s.guarded(func() error {
		var callErr error
		res, callErr = s.wsfe.FECompUltimoAutorizado(ctx, auth, ptoVta, cbteTipo)
		return callErr
	})
	if err != nil {
		return 0, err
	}

	n, perr := strconv.ParseInt(strings.TrimSpace(res.CbteNro), 10, 64)
	if perr != nil {
		log.Debug().Str("cbte_nro", res.CbteNro).Int("pto_vta", ptoVta).Int("cbte_tipo", cbteTipo).
			Msg("facturacion: ultimo numero ausente, se asume 0")
		return 0, nil
	}
	return n, nil
}

// GenerateInvoiceBatch issues each request in order, one at a time. A failing
// item is recorded in its slot and the batch goes on.
func (s *facturacionService) GenerateInvoiceBatch(ctx context.Context, reqs []dto.FacturaRequest) []dto.FacturaBatchItem {
	out := make([]dto.FacturaBatchItem, len(reqs))
	for i, req := range reqs {
		out[i].Index = i
		res, err := s.GenerateInvoice(ctx, req)
		if err != nil {
			out[i].Error = BatchError(err)
			log.Warn().Err(err).Int("index", i).Msg("facturacion: item del lote fallido")
			continue
		}
		out[i].OK = true
		out[i].Resultado = res
	}
	return out
}

func (s *facturacionService) ServerStatus(ctx context.Context) (*dto.ServerStatusResponse, error) {
	var res *afip.DummyResult
	err := s.guarded(func() error {
		var callErr error
		res, callErr = s.wsfe.FEDummy(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &dto.ServerStatusResponse{
		AppServer:  res.AppServer,
		DbServer:   res.DbServer,
		AuthServer: res.AuthServer,
		OK:         res.OK(),
	}, nil
}

// EncolarFactura stores a pendiente comprobante and hands it to the worker
// pool. When the queue is unreachable the retry cron picks it up instead.
func (s *facturacionService) EncolarFactura(ctx context.Context, req dto.FacturaRequest) (*dto.FacturaEncoladaResponse, error) {
	if err := ValidateFacturaRequest(req); err != nil {
		return nil, err
	}
	if s.enqueuer == nil {
		return nil, errors.New("facturacion: cola asincronica no configurada")
	}

	comp := nuevoComprobante(req)
	if err := s.repo.Create(ctx, comp); err != nil {
		return nil, fmt.Errorf("facturacion: registrar comprobante: %w", err)
	}

	job := dto.FacturacionJob{ComprobanteID: comp.ID.String(), ClienteEmail: req.ClienteEmail}
	if err := s.enqueuer.EnqueueFacturacion(ctx, job); err != nil {
		log.Warn().Err(err).Str("comprobante_id", comp.ID.String()).Msg("facturacion: no se pudo encolar, queda para el retry cron")
		next := s.cfg.Now()
		comp.NextRetryAt = &next
		if uerr := s.repo.Update(ctx, comp); uerr != nil {
			return nil, fmt.Errorf("facturacion: programar reintento: %w", uerr)
		}
	}
	return &dto.FacturaEncoladaResponse{ID: comp.ID.String(), Estado: comp.Estado}, nil
}

// EmitirPendiente issues a stored pendiente comprobante and records the
// outcome on it. Transport failures schedule another attempt until
// MaxComprobanteRetries; any other failure is final. The returned comprobante
// reflects the new state even when err != nil.
func (s *facturacionService) EmitirPendiente(ctx context.Context, id uuid.UUID) (*model.Comprobante, error) {
	comp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrComprobanteNoEncontrado
		}
		return nil, fmt.Errorf("facturacion: buscar comprobante: %w", err)
	}
	if comp.Estado != model.EstadoPendiente {
		return comp, ErrComprobanteNoPendiente
	}

	unlock := s.locks.Lock(numeracionKey(comp.PuntoDeVenta, comp.CbteTipo))
	_, err = s.emitir(ctx, comp)
	unlock()

	if err != nil {
		if afip.IsTransport(err) {
			s.programarReintento(comp, err)
		} else {
			marcarError(comp, err)
		}
	} else {
		comp.NextRetryAt = nil
		comp.LastError = nil
	}
	if uerr := s.repo.Update(ctx, comp); uerr != nil {
		log.Error().Err(uerr).Str("comprobante_id", comp.ID.String()).Msg("facturacion: no se pudo actualizar el comprobante")
	}
	return comp, err
}

func (s *facturacionService) ObtenerComprobante(ctx context.Context, id uuid.UUID) (*dto.ComprobanteResponse, error) {
	comp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrComprobanteNoEncontrado
	}
	return comprobanteToResponse(comp), nil
}

// ObtenerPDFPath returns the invoice PDF, rendering it on first request.
func (s *facturacionService) ObtenerPDFPath(ctx context.Context, id uuid.UUID) (string, error) {
	comp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", ErrComprobanteNoEncontrado
	}
	if comp.PDFPath != nil && *comp.PDFPath != "" {
		return *comp.PDFPath, nil
	}
	if comp.Estado != model.EstadoAprobado {
		return "", fmt.Errorf("%w: el comprobante esta en estado '%s'", ErrPDFNoDisponible, comp.Estado)
	}
	path, err := infra.GenerateFacturaPDF(comp, s.cfg.Emisor, s.cfg.PDFStoragePath)
	if err != nil {
		return "", err
	}
	comp.PDFPath = &path
	if err := s.repo.Update(ctx, comp); err != nil {
		log.Warn().Err(err).Str("comprobante_id", comp.ID.String()).Msg("facturacion: no se pudo guardar la ruta del PDF")
	}
	return path, nil
}

// ── core ─────────────────────────────────────────────────────────────────────

// emitir runs "last number → token → breakdown → FECAESolicitar" for comp and
// writes the outcome into it. Callers hold the numbering lock.
func (s *facturacionService) emitir(ctx context.Context, comp *model.Comprobante) (*dto.FacturaResult, error) {
	last, err := s.GetLastDocumentNumber(ctx, comp.PuntoDeVenta, comp.CbteTipo, comp.Cuit)
	if err != nil {
		return nil, err
	}
	if comp.Numero != nil && last >= *comp.Numero {
		return nil, fmt.Errorf("facturacion: numero %d: %w", *comp.Numero, ErrPosibleDuplicado)
	}
	numero := last + 1

	ticket, err := s.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	desglose := CalcularDesglose(comp.MontoTotal, comp.MontoTributos)
	fecha := s.cfg.Now().In(s.cfg.Location).Format("20060102")

	req := afip.CAERequest{
		Auth: afip.Auth{Token: ticket.Token, Sign: ticket.Sign, Cuit: comp.Cuit},
		FeCAEReq: afip.CAEReqBody{
			FeCabReq: afip.CAECabecera{
				CantReg:  afip.CantidadRegistros1,
				PtoVta:   comp.PuntoDeVenta,
				CbteTipo: comp.CbteTipo,
			},
			FeDetReq: []afip.CAEDetalle{desglose.detalle(numero, fecha, s.cfg.TributoDesc)},
		},
	}

	comp.Numero = &numero
	comp.Fecha = fecha
	comp.MontoNeto = desglose.Neto
	comp.MontoIVA = desglose.IVA
	comp.MontoTributos = desglose.Tributos
	comp.AlicuotaTributos = desglose.AlicuotaTributos
	comp.MontoTotal = desglose.Total

	var caeRes *afip.CAEResult
	err = s.guarded(func() error {
		var callErr error
		caeRes, callErr = s.wsfe.FECAESolicitar(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	res := s.toFacturaResult(caeRes, numero)
	res.Desglose = &dto.DesgloseResponse{
		Neto:             desglose.Neto,
		IVA:              desglose.IVA,
		Tributos:         desglose.Tributos,
		AlicuotaTributos: desglose.AlicuotaTributos,
		Total:            desglose.Total,
	}
	s.aplicarResultado(comp, res)

	for _, ev := range caeRes.Events {
		log.Info().Int("code", ev.Code).Str("msg", ev.Msg).Msg("facturacion: evento WSFE")
	}
	logEvt := log.Info()
	if res.Resultado != "A" {
		logEvt = log.Warn()
	}
	logEvt.
		Str("resultado", res.Resultado).
		Int("pto_vta", comp.PuntoDeVenta).
		Int("cbte_tipo", comp.CbteTipo).
		Int64("numero", numero).
		Msg("facturacion: FECAESolicitar respondido")
	return res, nil
}

// guarded routes a WSFE call through the circuit breaker when one is set. An
// open circuit is reported as a transport failure.
func (s *facturacionService) guarded(fn func() error) error {
	if s.cb == nil {
		return fn()
	}
	err := s.cb.Execute(fn)
	if errors.Is(err, infra.ErrCircuitOpen) {
		return &afip.TransportError{Op: "wsfe", Err: err}
	}
	return err
}

func (s *facturacionService) toFacturaResult(r *afip.CAEResult, numero int64) *dto.FacturaResult {
	res := &dto.FacturaResult{
		CbteDesde: numero,
		CbteHasta: numero,
		Errores:   toMensajes(r.Errors),
	}
	if r.FeCabResp != nil {
		res.Resultado = r.FeCabResp.Resultado
	}
	if len(r.FeDetResp) > 0 {
		det := r.FeDetResp[0]
		if det.Resultado != "" {
			res.Resultado = det.Resultado
		}
		if det.CbteDesde != 0 {
			res.CbteDesde = det.CbteDesde
		}
		if det.CbteHasta != 0 {
			res.CbteHasta = det.CbteHasta
		}
		if cae := strings.TrimSpace(det.CAE); cae != "" {
			res.CAE = &cae
		}
		if vto := strings.TrimSpace(det.CAEFchVto); vto != "" {
			res.CAEVencimiento = &vto
		}
		res.Observaciones = toMensajes(det.Observaciones)
	}
	return res
}

func (s *facturacionService) aplicarResultado(comp *model.Comprobante, res *dto.FacturaResult) {
	resultado := res.Resultado
	comp.Resultado = &resultado
	comp.CAE = res.CAE
	comp.CAEVencimiento = nil
	if res.CAEVencimiento != nil {
		if t, err := time.ParseInLocation("20060102", *res.CAEVencimiento, s.cfg.Location); err == nil {
			comp.CAEVencimiento = &t
		}
	}
	comp.Errores = joinMensajes(res.Errores)
	comp.Observaciones = joinMensajes(res.Observaciones)
	if resultado == "A" && res.CAE != nil {
		comp.Estado = model.EstadoAprobado
	} else {
		comp.Estado = model.EstadoRechazado
	}
}

func (s *facturacionService) programarReintento(comp *model.Comprobante, err error) {
	comp.RetryCount++
	msg := err.Error()
	comp.LastError = &msg
	if comp.RetryCount >= MaxComprobanteRetries {
		comp.Estado = model.EstadoError
		comp.NextRetryAt = nil
		return
	}
	next := s.cfg.Now().Add(RetryBackoff(comp.RetryCount))
	comp.NextRetryAt = &next
}

// RetryBackoff doubles from 30s per attempt, capped at 30 minutes.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := retryBaseDelay << uint(attempt-1)
	if d <= 0 || d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

// ── helpers ──────────────────────────────────────────────────────────────────

func nuevoComprobante(req dto.FacturaRequest) *model.Comprobante {
	tributos := decimal.Zero
	if req.ImporteTributos != nil {
		tributos = *req.ImporteTributos
	}
	return &model.Comprobante{
		Cuit:          strings.TrimSpace(req.Cuit),
		PuntoDeVenta:  req.PuntoVenta,
		TipoFactura:   req.TipoFactura,
		CbteTipo:      afip.CbteTipo(req.TipoFactura),
		MontoTotal:    req.ImporteTotal.Round(2),
		MontoTributos: tributos.Round(2),
		Estado:        model.EstadoPendiente,
		ClienteEmail:  req.ClienteEmail,
	}
}

func marcarError(comp *model.Comprobante, err error) {
	msg := err.Error()
	comp.LastError = &msg
	comp.NextRetryAt = nil
	comp.Estado = model.EstadoError
}

func toMensajes(msgs []afip.ProviderMessage) []dto.MensajeAFIP {
	if len(msgs) == 0 {
		return nil
	}
	return lo.Map(msgs, func(m afip.ProviderMessage, _ int) dto.MensajeAFIP {
		return dto.MensajeAFIP{Code: m.Code, Msg: m.Msg}
	})
}

func joinMensajes(msgs []dto.MensajeAFIP) *string {
	if len(msgs) == 0 {
		return nil
	}
	s := strings.Join(lo.Map(msgs, func(m dto.MensajeAFIP, _ int) string {
		return fmt.Sprintf("%d: %s", m.Code, m.Msg)
	}), "\n")
	return &s
}

// BatchError converts an issuance error into the marker stored in a batch
// slot.
func BatchError(err error) *dto.BatchError {
	var (
		ve *afip.ValidationError
		pf *afip.ProviderFault
		te *afip.TransportError
		pe *afip.ParseError
	)
	switch {
	case errors.As(err, &ve):
		return &dto.BatchError{Tipo: "validacion", Detail: err.Error(), Fields: ve.Fields}
	case errors.As(err, &pf):
		return &dto.BatchError{Tipo: "afip", Detail: pf.Message, Codigo: pf.Code}
	case errors.As(err, &te):
		tipo := "transporte"
		if te.Timeout() {
			tipo = "timeout"
		}
		return &dto.BatchError{Tipo: tipo, Detail: err.Error()}
	case errors.As(err, &pe):
		return &dto.BatchError{Tipo: "respuesta", Detail: err.Error()}
	default:
		return &dto.BatchError{Tipo: "interno", Detail: err.Error()}
	}
}

func comprobanteToResponse(c *model.Comprobante) *dto.ComprobanteResponse {
	resp := &dto.ComprobanteResponse{
		ID:            c.ID.String(),
		Cuit:          c.Cuit,
		PuntoDeVenta:  c.PuntoDeVenta,
		TipoFactura:   c.TipoFactura,
		CbteTipo:      c.CbteTipo,
		Numero:        c.Numero,
		Fecha:         c.Fecha,
		MontoNeto:     c.MontoNeto,
		MontoIVA:      c.MontoIVA,
		MontoTributos: c.MontoTributos,
		MontoTotal:    c.MontoTotal,
		Resultado:     c.Resultado,
		CAE:           c.CAE,
		Estado:        c.Estado,
		Observaciones: c.Observaciones,
		Errores:       c.Errores,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
	if c.CAEVencimiento != nil {
		s := c.CAEVencimiento.Format("2006-01-02")
		resp.CAEVencimiento = &s
	}
	if c.Estado == model.EstadoAprobado {
		u := "/v1/facturas/" + c.ID.String() + "/pdf"
		resp.PDFUrl = &u
	}
	return resp
}
