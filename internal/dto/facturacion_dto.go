package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// FacturaRequest is a single invoice to authorize. Amounts are pointers so a
// missing field can be told apart from a zero. ImporteNeto is required but
// its value is ignored: the breakdown is always derived from the total.
type FacturaRequest struct {
	Cuit            string           `json:"cuit"`
	PuntoVenta      int              `json:"punto_venta"`
	ImporteTotal    *decimal.Decimal `json:"importe_total"`
	ImporteNeto     *decimal.Decimal `json:"importe_neto"`
	ImporteTributos *decimal.Decimal `json:"importe_tributos,omitempty"`
	TipoFactura     string           `json:"tipo_factura"`
	ClienteEmail    *string          `json:"cliente_email,omitempty" validate:"omitempty,email"`
}

type UltimoComprobanteQuery struct {
	PuntoVenta  int    `form:"punto_venta"  validate:"required,min=1"`
	TipoFactura string `form:"tipo_factura" validate:"required"`
	Cuit        string `form:"cuit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

// FacturaResult mirrors the WSFE detail response. CAE and its expiry are nil
// when the voucher was rejected.
type FacturaResult struct {
	Resultado      string            `json:"resultado"`
	CAE            *string           `json:"cae"`
	CAEVencimiento *string           `json:"cae_vencimiento"`
	CbteDesde      int64             `json:"cbte_desde"`
	CbteHasta      int64             `json:"cbte_hasta"`
	Errores        []MensajeAFIP     `json:"errores,omitempty"`
	Observaciones  []MensajeAFIP     `json:"observaciones,omitempty"`
	ComprobanteID  string            `json:"comprobante_id,omitempty"`
	Desglose       *DesgloseResponse `json:"desglose,omitempty"`
}

type MensajeAFIP struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type DesgloseResponse struct {
	Neto             decimal.Decimal `json:"neto"`
	IVA              decimal.Decimal `json:"iva"`
	Tributos         decimal.Decimal `json:"tributos"`
	AlicuotaTributos decimal.Decimal `json:"alicuota_tributos"`
	Total            decimal.Decimal `json:"total"`
}

// FacturaBatchItem is one slot of a batch response, in input order. Exactly
// one of Resultado or Error is set.
type FacturaBatchItem struct {
	Index     int            `json:"index"`
	OK        bool           `json:"ok"`
	Resultado *FacturaResult `json:"resultado,omitempty"`
	Error     *BatchError    `json:"error,omitempty"`
}

type BatchError struct {
	Tipo   string            `json:"tipo"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
	Codigo string            `json:"codigo,omitempty"`
}

type UltimoComprobanteResponse struct {
	PuntoVenta int   `json:"punto_venta"`
	CbteTipo   int   `json:"cbte_tipo"`
	Numero     int64 `json:"numero"`
}

type ComprobanteResponse struct {
	ID             string          `json:"id"`
	Cuit           string          `json:"cuit"`
	PuntoDeVenta   int             `json:"punto_de_venta"`
	TipoFactura    string          `json:"tipo_factura"`
	CbteTipo       int             `json:"cbte_tipo"`
	Numero         *int64          `json:"numero"`
	Fecha          string          `json:"fecha"`
	MontoNeto      decimal.Decimal `json:"monto_neto"`
	MontoIVA       decimal.Decimal `json:"monto_iva"`
	MontoTributos  decimal.Decimal `json:"monto_tributos"`
	MontoTotal     decimal.Decimal `json:"monto_total"`
	Resultado      *string         `json:"resultado"`
	CAE            *string         `json:"cae"`
	CAEVencimiento *string         `json:"cae_vencimiento"`
	Estado         string          `json:"estado"`
	Observaciones  *string         `json:"observaciones,omitempty"`
	Errores        *string         `json:"errores,omitempty"`
	PDFUrl         *string         `json:"pdf_url,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

type FacturaEncoladaResponse struct {
	ID     string `json:"id"`
	Estado string `json:"estado"`
}

// ─── Job payloads ────────────────────────────────────────────────────────────

// FacturacionJob is the payload pushed to the async invoicing queue.
type FacturacionJob struct {
	ComprobanteID string  `json:"comprobante_id"`
	ClienteEmail  *string `json:"cliente_email,omitempty"`
}
