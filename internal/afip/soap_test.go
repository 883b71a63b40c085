package afip

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDoer struct{ err error }

func (d failingDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func TestCall_ErrorDeRed_EsTransport(t *testing.T) {
	c := NewClient(Config{WSFEURL: "http://afip.invalid", HTTPClient: failingDoer{err: errors.New("connection refused")}})

	_, err := c.FEDummy(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Timeout())
	assert.Equal(t, "FEDummy", te.Op)
}

func TestCall_Timeout_EsTransportConTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.FEDummy(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCall_5xxSinFault_EsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "<html>mantenimiento</html>")
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	_, err := c.FEDummy(context.Background())

	assert.True(t, IsTransport(err))
}

func TestCall_CuerpoInvalido_EsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not xml at all")
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	_, err := c.FEDummy(context.Background())

	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestFEDummy_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"http://ar.gov.afip.dif.FEV1/FEDummy"`, r.Header.Get("SOAPAction"))
		assert.Contains(t, r.Header.Get("Content-Type"), "text/xml")
		_, _ = io.WriteString(w, wsfeResponseXML(`<FEDummyResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FEDummyResult><AppServer>OK</AppServer><DbServer>OK</DbServer><AuthServer>OK</AuthServer></FEDummyResult></FEDummyResponse>`))
	}))
	defer srv.Close()

	c := NewClient(Config{WSFEURL: srv.URL, Timeout: time.Second})
	res, err := c.FEDummy(context.Background())

	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestValidationError_ListaCamposOrdenados(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"tipo_factura": "required", "cuit": "required"}}
	assert.Equal(t, "afip: solicitud invalida: cuit, tipo_factura", err.Error())
}
