// Package afip speaks the AFIP web services used for electronic invoicing:
// WSAA (login tickets) and WSFEv1 (invoice authorization). It owns the SOAP
// framing, the XML schemas and the error taxonomy; business rules live in the
// service package.
package afip

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

	maxResponseBytes = 4 << 20
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the endpoints and transport settings of a Client.
type Config struct {
	WSAAURL    string
	WSFEURL    string
	Timeout    time.Duration
	HTTPClient Doer
}

// Client posts SOAP 1.1 requests to the WSAA and WSFE endpoints.
type Client struct {
	wsaaURL    string
	wsfeURL    string
	timeout    time.Duration
	httpClient Doer
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		wsaaURL:    cfg.WSAAURL,
		wsfeURL:    cfg.WSFEURL,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
}

// soapFault is the SOAP 1.1 Fault element.
type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail string `xml:",innerxml"`
}

type faultEnvelope struct {
	Fault *soapFault `xml:"Body>Fault"`
}

// envelope wraps an already-marshalled body element.
func envelope(body any) ([]byte, error) {
	inner, err := xml.Marshal(body)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvelopeNS + `"><soap:Header/><soap:Body>`)
	buf.Write(inner)
	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes(), nil
}

// call posts body to url and returns the raw response. Faults are decoded into
// ProviderFault regardless of the HTTP status; 5xx without a fault and any
// network error become TransportError.
func (c *Client) call(ctx context.Context, op, url, action string, body any) ([]byte, error) {
	payload, err := envelope(body)
	if err != nil {
		return nil, fmt.Errorf("afip: %s: marshal request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("afip: %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+action+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: classifyNetErr(ctx, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Err: classifyNetErr(ctx, err)}
	}

	if fault := decodeFault(raw); fault != nil {
		return nil, &ProviderFault{
			Op:      op,
			Code:    strings.TrimSpace(fault.Code),
			Message: strings.TrimSpace(fault.String),
			Body:    string(raw),
		}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &TransportError{Op: op, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &ProviderFault{
			Op:      op,
			Code:    fmt.Sprintf("HTTP%d", resp.StatusCode),
			Message: http.StatusText(resp.StatusCode),
			Body:    string(raw),
		}
	}
	return raw, nil
}

func decodeFault(raw []byte) *soapFault {
	var env faultEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return env.Fault
}

func classifyNetErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func unmarshalBody(op string, raw []byte, v any) error {
	if err := xml.Unmarshal(raw, v); err != nil {
		return &ParseError{Op: op, Detail: "xml", Body: string(raw), Err: err}
	}
	return nil
}
