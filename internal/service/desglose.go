package service

import (
	"anhelo/internal/afip"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ivaDivisor        = decimal.RequireFromString("1.21")
	ivaRate           = decimal.RequireFromString("0.21")
	desgloseTolerance = decimal.RequireFromString("0.01")
	hundred           = decimal.NewFromInt(100)
)

// Desglose is the amount breakdown sent to WSFE. All values carry two
// decimals.
type Desglose struct {
	Total            decimal.Decimal
	Neto             decimal.Decimal
	IVA              decimal.Decimal
	Tributos         decimal.Decimal
	AlicuotaTributos decimal.Decimal
}

// CalcularDesglose derives net and VAT (21%) from a gross total that already
// includes tributos. A rounding gap above one cent is logged and otherwise
// ignored.
func CalcularDesglose(total, tributos decimal.Decimal) Desglose {
	total = total.Round(2)
	tributos = tributos.Round(2)

	neto := total.Sub(tributos).Div(ivaDivisor).Round(2)
	iva := neto.Mul(ivaRate).Round(2)

	alicuota := decimal.Zero
	if tributos.IsPositive() && !neto.IsZero() {
		alicuota = tributos.Div(neto).Mul(hundred).Round(2)
	}

	if gap := total.Sub(neto.Add(iva).Add(tributos)).Abs(); gap.GreaterThan(desgloseTolerance) {
		log.Warn().
			Str("total", total.StringFixed(2)).
			Str("neto", neto.StringFixed(2)).
			Str("iva", iva.StringFixed(2)).
			Str("tributos", tributos.StringFixed(2)).
			Str("diferencia", gap.StringFixed(2)).
			Msg("desglose: la suma no coincide con el total")
	}

	return Desglose{
		Total:            total,
		Neto:             neto,
		IVA:              iva,
		Tributos:         tributos,
		AlicuotaTributos: alicuota,
	}
}

// detalle builds the single FECAEDetRequest for a final-consumer invoice.
// The Tributos block is emitted only when there are tributos.
func (d Desglose) detalle(numero int64, fecha, tributoDesc string) afip.CAEDetalle {
	det := afip.CAEDetalle{
		Concepto:   afip.ConceptoProductos,
		DocTipo:    afip.DocTipoSinIdentif,
		DocNro:     0,
		CbteDesde:  numero,
		CbteHasta:  numero,
		CbteFch:    fecha,
		ImpTotal:   d.Total.StringFixed(2),
		ImpTotConc: "0.00",
		ImpNeto:    d.Neto.StringFixed(2),
		ImpOpEx:    "0.00",
		ImpTrib:    d.Tributos.StringFixed(2),
		ImpIVA:     d.IVA.StringFixed(2),
		MonID:      afip.MonedaPesos,
		MonCotiz:   "1",
		Iva: []afip.AlicIva{{
			ID:      afip.AlicuotaIVA21,
			BaseImp: d.Neto.StringFixed(2),
			Importe: d.IVA.StringFixed(2),
		}},
	}
	if d.Tributos.IsPositive() {
		det.Tributos = []afip.Tributo{{
			ID:      afip.TributoMunicipal,
			Desc:    tributoDesc,
			BaseImp: d.Neto.StringFixed(2),
			Alic:    d.AlicuotaTributos.StringFixed(2),
			Importe: d.Tributos.StringFixed(2),
		}}
	}
	return det
}
