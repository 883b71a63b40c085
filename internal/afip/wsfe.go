package afip

import (
	"context"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	wsfeActionPrefix = "http://ar.gov.afip.dif.FEV1/"

	opUltimoAutorizado = "FECompUltimoAutorizado"
	opCAESolicitar     = "FECAESolicitar"
	opDummy            = "FEDummy"
)

// Fixed WSFEv1 codes used by single-document invoices for a final consumer.
const (
	ConceptoProductos  = 1
	DocTipoSinIdentif  = 99
	MonedaPesos        = "PES"
	AlicuotaIVA21      = 5
	TributoMunicipal   = 3
	CantidadRegistros1 = 1
)

// Auth is the credential block every WSFE operation carries.
type Auth struct {
	Token string `xml:"Token"`
	Sign  string `xml:"Sign"`
	Cuit  string `xml:"Cuit"`
}

// ProviderMessage is an Err, Obs or Evt entry reported by WSFE.
type ProviderMessage struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

func faultFromMessages(op string, msgs []ProviderMessage, raw []byte) *ProviderFault {
	texts := lo.Map(msgs, func(m ProviderMessage, _ int) string { return m.Msg })
	codes := lo.Map(msgs, func(m ProviderMessage, _ int) string { return strconv.Itoa(m.Code) })
	return &ProviderFault{
		Op:      op,
		Code:    strings.Join(codes, ","),
		Message: strings.Join(texts, "; "),
		Body:    string(raw),
	}
}

// ── FECompUltimoAutorizado ───────────────────────────────────────────────────

type ultimoAutorizadoRequest struct {
	XMLName  xml.Name `xml:"http://ar.gov.afip.dif.FEV1/ FECompUltimoAutorizado"`
	Auth     Auth     `xml:"Auth"`
	PtoVta   int      `xml:"PtoVta"`
	CbteTipo int      `xml:"CbteTipo"`
}

// UltimoAutorizadoResult keeps CbteNro as text; the caller decides how to
// treat an absent or malformed number.
type UltimoAutorizadoResult struct {
	PtoVta   int               `xml:"PtoVta"`
	CbteTipo int               `xml:"CbteTipo"`
	CbteNro  string            `xml:"CbteNro"`
	Errors   []ProviderMessage `xml:"Errors>Err"`
}

type ultimoAutorizadoEnvelope struct {
	Result *UltimoAutorizadoResult `xml:"Body>FECompUltimoAutorizadoResponse>FECompUltimoAutorizadoResult"`
}

// FECompUltimoAutorizado queries the last authorized number for a sales point
// and voucher type.
func (c *Client) FECompUltimoAutorizado(ctx context.Context, auth Auth, ptoVta, cbteTipo int) (*UltimoAutorizadoResult, error) {
	req := ultimoAutorizadoRequest{Auth: auth, PtoVta: ptoVta, CbteTipo: cbteTipo}
	raw, err := c.call(ctx, opUltimoAutorizado, c.wsfeURL, wsfeActionPrefix+opUltimoAutorizado, req)
	if err != nil {
		return nil, err
	}
	var env ultimoAutorizadoEnvelope
	if err := unmarshalBody(opUltimoAutorizado, raw, &env); err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, &ParseError{Op: opUltimoAutorizado, Detail: "FECompUltimoAutorizadoResult ausente", Body: string(raw)}
	}
	if len(env.Result.Errors) > 0 {
		return nil, faultFromMessages(opUltimoAutorizado, env.Result.Errors, raw)
	}
	return env.Result, nil
}

// ── FECAESolicitar ───────────────────────────────────────────────────────────

type CAERequest struct {
	XMLName  xml.Name   `xml:"http://ar.gov.afip.dif.FEV1/ FECAESolicitar"`
	Auth     Auth       `xml:"Auth"`
	FeCAEReq CAEReqBody `xml:"FeCAEReq"`
}

type CAEReqBody struct {
	FeCabReq CAECabecera  `xml:"FeCabReq"`
	FeDetReq []CAEDetalle `xml:"FeDetReq>FECAEDetRequest"`
}

type CAECabecera struct {
	CantReg  int `xml:"CantReg"`
	PtoVta   int `xml:"PtoVta"`
	CbteTipo int `xml:"CbteTipo"`
}

// CAEDetalle follows the WSFEv1 element order; amounts are pre-formatted with
// two decimals.
type CAEDetalle struct {
	Concepto   int       `xml:"Concepto"`
	DocTipo    int       `xml:"DocTipo"`
	DocNro     int64     `xml:"DocNro"`
	CbteDesde  int64     `xml:"CbteDesde"`
	CbteHasta  int64     `xml:"CbteHasta"`
	CbteFch    string    `xml:"CbteFch"`
	ImpTotal   string    `xml:"ImpTotal"`
	ImpTotConc string    `xml:"ImpTotConc"`
	ImpNeto    string    `xml:"ImpNeto"`
	ImpOpEx    string    `xml:"ImpOpEx"`
	ImpTrib    string    `xml:"ImpTrib"`
	ImpIVA     string    `xml:"ImpIVA"`
	MonID      string    `xml:"MonId"`
	MonCotiz   string    `xml:"MonCotiz"`
	Tributos   []Tributo `xml:"Tributos>Tributo,omitempty"`
	Iva        []AlicIva `xml:"Iva>AlicIva,omitempty"`
}

type Tributo struct {
	ID      int    `xml:"Id"`
	Desc    string `xml:"Desc"`
	BaseImp string `xml:"BaseImp"`
	Alic    string `xml:"Alic"`
	Importe string `xml:"Importe"`
}

type AlicIva struct {
	ID      int    `xml:"Id"`
	BaseImp string `xml:"BaseImp"`
	Importe string `xml:"Importe"`
}

type CAEResult struct {
	FeCabResp *CAECabResponse   `xml:"FeCabResp"`
	FeDetResp []CAEDetResponse  `xml:"FeDetResp>FECAEDetResponse"`
	Errors    []ProviderMessage `xml:"Errors>Err"`
	Events    []ProviderMessage `xml:"Events>Evt"`
}

type CAECabResponse struct {
	Cuit       string `xml:"Cuit"`
	PtoVta     int    `xml:"PtoVta"`
	CbteTipo   int    `xml:"CbteTipo"`
	FchProceso string `xml:"FchProceso"`
	CantReg    int    `xml:"CantReg"`
	Resultado  string `xml:"Resultado"`
	Reproceso  string `xml:"Reproceso"`
}

type CAEDetResponse struct {
	Concepto      int               `xml:"Concepto"`
	DocTipo       int               `xml:"DocTipo"`
	DocNro        int64             `xml:"DocNro"`
	CbteDesde     int64             `xml:"CbteDesde"`
	CbteHasta     int64             `xml:"CbteHasta"`
	CbteFch       string            `xml:"CbteFch"`
	Resultado     string            `xml:"Resultado"`
	Observaciones []ProviderMessage `xml:"Observaciones>Obs"`
	CAE           string            `xml:"CAE"`
	CAEFchVto     string            `xml:"CAEFchVto"`
}

type caeEnvelope struct {
	Result *CAEResult `xml:"Body>FECAESolicitarResponse>FECAESolicitarResult"`
}

// FECAESolicitar submits an authorization request. A response that carries
// only an error list (no header, no detail) is returned as ProviderFault; a
// rejected voucher is returned as a result.
func (c *Client) FECAESolicitar(ctx context.Context, req CAERequest) (*CAEResult, error) {
	raw, err := c.call(ctx, opCAESolicitar, c.wsfeURL, wsfeActionPrefix+opCAESolicitar, req)
	if err != nil {
		return nil, err
	}
	var env caeEnvelope
	if err := unmarshalBody(opCAESolicitar, raw, &env); err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, &ParseError{Op: opCAESolicitar, Detail: "FECAESolicitarResult ausente", Body: string(raw)}
	}
	if env.Result.FeCabResp == nil && len(env.Result.FeDetResp) == 0 {
		if len(env.Result.Errors) > 0 {
			return nil, faultFromMessages(opCAESolicitar, env.Result.Errors, raw)
		}
		return nil, &ParseError{Op: opCAESolicitar, Detail: "FeCabResp ausente", Body: string(raw)}
	}
	return env.Result, nil
}

// ── FEDummy ──────────────────────────────────────────────────────────────────

type dummyRequest struct {
	XMLName xml.Name `xml:"http://ar.gov.afip.dif.FEV1/ FEDummy"`
}

type DummyResult struct {
	AppServer  string `xml:"AppServer"`
	DbServer   string `xml:"DbServer"`
	AuthServer string `xml:"AuthServer"`
}

// OK reports whether every WSFE component answered "OK".
func (d *DummyResult) OK() bool {
	return d.AppServer == "OK" && d.DbServer == "OK" && d.AuthServer == "OK"
}

type dummyEnvelope struct {
	Result *DummyResult `xml:"Body>FEDummyResponse>FEDummyResult"`
}

// FEDummy checks WSFE availability; it needs no credentials.
func (c *Client) FEDummy(ctx context.Context) (*DummyResult, error) {
	raw, err := c.call(ctx, opDummy, c.wsfeURL, wsfeActionPrefix+opDummy, dummyRequest{})
	if err != nil {
		return nil, err
	}
	var env dummyEnvelope
	if err := unmarshalBody(opDummy, raw, &env); err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, &ParseError{Op: opDummy, Detail: "FEDummyResult ausente", Body: string(raw)}
	}
	return env.Result, nil
}
