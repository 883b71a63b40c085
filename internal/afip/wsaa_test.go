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

func TestNewLoginTicketRequest_Ventanas(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.FixedZone("ART", -3*3600))

	tra := NewLoginTicketRequest("wsfe", now)

	assert.Equal(t, now.Unix(), tra.Header.UniqueID)
	assert.Equal(t, "2026-03-10T11:40:00-03:00", tra.Header.GenerationTime)
	assert.Equal(t, "2026-03-11T00:00:00-03:00", tra.Header.ExpirationTime)
	assert.Equal(t, "wsfe", tra.Service)

	b, err := tra.Marshal()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "<?xml"))
	assert.Contains(t, string(b), `<loginTicketRequest version="1.0">`)
	assert.Contains(t, string(b), "<service>wsfe</service>")
}

func TestParseLoginCmsResponse_Exitoso(t *testing.T) {
	gen := time.Date(2026, 3, 10, 11, 40, 0, 0, time.FixedZone("ART", -3*3600))
	exp := gen.Add(12 * time.Hour)

	ticket, err := ParseLoginCmsResponse([]byte(loginCmsResponseXML("TOKEN123", "SIGN456", gen, exp)))

	require.NoError(t, err)
	assert.Equal(t, "TOKEN123", ticket.Token)
	assert.Equal(t, "SIGN456", ticket.Sign)
	assert.True(t, gen.Equal(ticket.GeneratedAt))
	assert.True(t, exp.Equal(ticket.ExpiresAt))
	assert.True(t, ticket.ValidAt(exp.Add(-time.Second)))
	assert.False(t, ticket.ValidAt(exp))
}

func TestParseLoginCmsResponse_DobleEscape(t *testing.T) {
	// Some gateways escape the embedded document twice.
	gen := time.Now().Truncate(time.Second)
	raw := loginCmsResponseXML("T", "S", gen, gen.Add(time.Hour))
	raw = strings.ReplaceAll(raw, "&lt;", "&amp;lt;")
	raw = strings.ReplaceAll(raw, "&gt;", "&amp;gt;")

	ticket, err := ParseLoginCmsResponse([]byte(raw))

	require.NoError(t, err)
	assert.Equal(t, "T", ticket.Token)
}

func TestParseLoginCmsResponse_SinReturn(t *testing.T) {
	raw := wsfeResponseXML(`<loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov"/>`)

	_, err := ParseLoginCmsResponse([]byte(raw))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Detail, "loginCmsReturn")
}

func TestParseLoginCmsResponse_SinCredenciales(t *testing.T) {
	raw := wsfeResponseXML(`<loginCmsResponse><loginCmsReturn>&lt;loginTicketResponse&gt;&lt;header/&gt;&lt;/loginTicketResponse&gt;</loginCmsReturn></loginCmsResponse>`)

	_, err := ParseLoginCmsResponse([]byte(raw))

	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestLoginCms_EnviaEnvelopeFirmado(t *testing.T) {
	gen := time.Now().Truncate(time.Second)
	var gotAction, gotIn0 string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		body, _ := io.ReadAll(r.Body)
		var env struct {
			In0 string `xml:"Body>loginCms>in0"`
		}
		_ = xml.Unmarshal(body, &env)
		gotIn0 = env.In0
		_, _ = io.WriteString(w, loginCmsResponseXML("TOK", "SIG", gen, gen.Add(time.Hour)))
	}))
	defer srv.Close()

	c := NewClient(Config{WSAAURL: srv.URL, Timeout: time.Second})
	raw, ticket, err := c.LoginCms(context.Background(), "Q01TLUJBU0U2NA==")

	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "TOK", ticket.Token)
	assert.Equal(t, `""`, gotAction)
	assert.Equal(t, "Q01TLUJBU0U2NA==", gotIn0)
}

func TestLoginCms_FaultEsProviderFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, soapFaultXML("ns1:coe.alreadyAuthenticated", "El CEE ya posee un TA valido para el acceso al WSN solicitado"))
	}))
	defer srv.Close()

	c := NewClient(Config{WSAAURL: srv.URL, Timeout: time.Second})
	_, _, err := c.LoginCms(context.Background(), "x")

	var pf *ProviderFault
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "ns1:coe.alreadyAuthenticated", pf.Code)
	assert.Equal(t, "El CEE ya posee un TA valido para el acceso al WSN solicitado", pf.Message)
	assert.False(t, IsTransport(err))
}
