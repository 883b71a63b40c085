package afip

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCbteTipo_Total(t *testing.T) {
	cases := map[string]int{"A": 1, "B": 6, "C": 11, "": 11, "a": 11, "M": 11, "factura": 11}
	for letra, want := range cases {
		assert.Equal(t, want, CbteTipo(letra), "letra %q", letra)
	}
}

func TestFECompUltimoAutorizado_Exitoso(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		_, _ = io.WriteString(w, wsfeResponseXML(`<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompUltimoAutorizadoResult><PtoVta>3</PtoVta><CbteTipo>6</CbteTipo><CbteNro>41</CbteNro></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`))
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	res, err := c.FECompUltimoAutorizado(context.Background(), Auth{Token: "t", Sign: "s", Cuit: "20123456789"}, 3, 6)

	require.NoError(t, err)
	assert.Equal(t, "41", res.CbteNro)
	assert.Contains(t, body, "<Cuit>20123456789</Cuit>")
	assert.Contains(t, body, "<PtoVta>3</PtoVta>")
}

func TestFECompUltimoAutorizado_ErroresSonFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, wsfeResponseXML(`<FECompUltimoAutorizadoResponse><FECompUltimoAutorizadoResult><Errors><Err><Code>600</Code><Msg>ValidacionDeToken: No validaron las fechas del token</Msg></Err></Errors></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`))
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	_, err := c.FECompUltimoAutorizado(context.Background(), Auth{}, 1, 6)

	var pf *ProviderFault
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "600", pf.Code)
	assert.Contains(t, pf.Message, "No validaron las fechas")
}

func TestFECAESolicitar_SerializaYParsea(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		_, _ = io.WriteString(w, wsfeResponseXML(`<FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECAESolicitarResult>
<FeCabResp><Cuit>20123456789</Cuit><PtoVta>1</PtoVta><CbteTipo>6</CbteTipo><FchProceso>20260310120000</FchProceso><CantReg>1</CantReg><Resultado>A</Resultado><Reproceso>N</Reproceso></FeCabResp>
<FeDetResp><FECAEDetResponse><Concepto>1</Concepto><DocTipo>99</DocTipo><DocNro>0</DocNro><CbteDesde>42</CbteDesde><CbteHasta>42</CbteHasta><CbteFch>20260310</CbteFch><Resultado>A</Resultado>
<Observaciones><Obs><Code>10217</Code><Msg>Observacion de prueba</Msg></Obs></Observaciones><CAE>76123456789012</CAE><CAEFchVto>20260320</CAEFchVto></FECAEDetResponse></FeDetResp>
</FECAESolicitarResult></FECAESolicitarResponse>`))
	}))
	defer srv.Close()

	req := CAERequest{
		Auth: Auth{Token: "t", Sign: "s", Cuit: "20123456789"},
		FeCAEReq: CAEReqBody{
			FeCabReq: CAECabecera{CantReg: 1, PtoVta: 1, CbteTipo: 6},
			FeDetReq: []CAEDetalle{{
				Concepto: 1, DocTipo: 99, CbteDesde: 42, CbteHasta: 42, CbteFch: "20260310",
				ImpTotal: "1210.00", ImpTotConc: "0.00", ImpNeto: "1000.00", ImpOpEx: "0.00", ImpTrib: "0.00", ImpIVA: "210.00",
				MonID: "PES", MonCotiz: "1",
				Iva: []AlicIva{{ID: 5, BaseImp: "1000.00", Importe: "210.00"}},
			}},
		},
	}

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	res, err := c.FECAESolicitar(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, res.FeDetResp, 1)
	assert.Equal(t, "A", res.FeCabResp.Resultado)
	assert.Equal(t, "76123456789012", res.FeDetResp[0].CAE)
	assert.Equal(t, int64(42), res.FeDetResp[0].CbteDesde)
	require.Len(t, res.FeDetResp[0].Observaciones, 1)
	assert.Equal(t, 10217, res.FeDetResp[0].Observaciones[0].Code)

	assert.Contains(t, body, `<FECAESolicitar xmlns="http://ar.gov.afip.dif.FEV1/">`)
	assert.Contains(t, body, "<Iva><AlicIva><Id>5</Id><BaseImp>1000.00</BaseImp><Importe>210.00</Importe></AlicIva></Iva>")
	assert.NotContains(t, body, "<Tributos>")
	assert.Less(t, strings.Index(body, "<MonCotiz>"), strings.Index(body, "<Iva>"))

	var parsed struct {
		Det CAEDetalle `xml:"Body>FECAESolicitar>FeCAEReq>FeDetReq>FECAEDetRequest"`
	}
	require.NoError(t, xml.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, "1210.00", parsed.Det.ImpTotal)
}

func TestFECAESolicitar_SoloErroresEsFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, wsfeResponseXML(`<FECAESolicitarResponse><FECAESolicitarResult><Errors><Err><Code>10016</Code><Msg>El numero o fecha del comprobante no se corresponde con el proximo a autorizar</Msg></Err></Errors></FECAESolicitarResult></FECAESolicitarResponse>`))
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	_, err := c.FECAESolicitar(context.Background(), CAERequest{})

	var pf *ProviderFault
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "10016", pf.Code)
}
