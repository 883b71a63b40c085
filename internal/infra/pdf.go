package infra

// pdf.go: invoice PDF rendering with go-pdf/fpdf.
// Receipt-sized page with:
//   - issuer header and voucher letter
//   - punto de venta / numero / fecha
//   - neto, IVA, tributos and bold total
//   - CAE and its expiry
//
// The output file is saved to storagePath/factura_{tipo}_{ptovta}_{numero}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"anhelo/internal/model"

	"github.com/go-pdf/fpdf"
)

// Emisor is the issuer data printed on the invoice header.
type Emisor struct {
	RazonSocial string
	Cuit        string
}

// GenerateFacturaPDF renders an authorized comprobante. It refuses vouchers
// without CAE since those are not valid fiscal documents.
func GenerateFacturaPDF(c *model.Comprobante, emisor Emisor, storagePath string) (string, error) {
	if c.CAE == nil || *c.CAE == "" || c.Numero == nil {
		return "", fmt.Errorf("pdf: comprobante %s sin CAE", c.ID)
	}
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("factura_%s_%04d_%08d.pdf", c.TipoFactura, c.PuntoDeVenta, *c.Numero)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: 120},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, tr(emisor.RazonSocial), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	if emisor.Cuit != "" {
		pdf.CellFormat(contentW, 4, "CUIT "+emisor.Cuit, "", 1, "C", false, 0, "")
	}
	pdf.Ln(1)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 8, c.TipoFactura, "1", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 6)
	pdf.CellFormat(contentW, 3, fmt.Sprintf("Cod. %02d", c.CbteTipo), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	// ── Voucher info ─────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, tr(fmt.Sprintf("Factura %s N° %04d-%08d", c.TipoFactura, c.PuntoDeVenta, *c.Numero)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, "Fecha: "+formatFecha(c.Fecha), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 4, "Receptor: Consumidor Final", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	// ── Amounts ──────────────────────────────────────────────────────────────
	labelW := contentW * 0.6
	valueW := contentW * 0.4
	row := func(label, value string) {
		pdf.CellFormat(labelW, 5, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 5, value, "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 7)
	row("Neto gravado:", "$"+c.MontoNeto.StringFixed(2))
	row("IVA 21%:", "$"+c.MontoIVA.StringFixed(2))
	if c.MontoTributos.IsPositive() {
		row(fmt.Sprintf("Tributos (%s%%):", c.AlicuotaTributos.StringFixed(2)), "$"+c.MontoTributos.StringFixed(2))
	}
	pdf.SetFont("Helvetica", "B", 9)
	row("TOTAL:", "$"+c.MontoTotal.StringFixed(2))

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	// ── Authorization ────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, "CAE: "+*c.CAE, "", 1, "L", false, 0, "")
	if c.CAEVencimiento != nil {
		pdf.SetFont("Helvetica", "", 7)
		pdf.CellFormat(contentW, 4, "Vto. CAE: "+c.CAEVencimiento.Format("02/01/2006"), "", 1, "L", false, 0, "")
	}

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 6)
	pdf.CellFormat(contentW, 4, tr("Comprobante autorizado por AFIP"), "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

// formatFecha turns a WSFE date (YYYYMMDD) into DD/MM/YYYY.
func formatFecha(s string) string {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return s
	}
	return t.Format("02/01/2006")
}
