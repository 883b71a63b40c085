package afip

// Voucher type codes for invoice letters.
const (
	CbteFacturaA = 1
	CbteFacturaB = 6
	CbteFacturaC = 11
)

// CbteTipo maps an invoice letter to its WSFE voucher type. Anything other
// than "A", "B" or "C" falls back to Factura C.
func CbteTipo(letra string) int {
	switch letra {
	case "A":
		return CbteFacturaA
	case "B":
		return CbteFacturaB
	default:
		return CbteFacturaC
	}
}
