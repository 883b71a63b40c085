package afip

import (
	"context"
	"encoding/xml"
	"strings"
	"time"
)

const (
	loginCmsAction  = ""
	opLoginCms      = "loginCms"
	ticketClockSkew = 20 * time.Minute
	ticketLifetime  = 12 * time.Hour
)

// Ticket is a WSAA access ticket. It is usable while now < ExpiresAt.
type Ticket struct {
	UniqueID    string
	Source      string
	Destination string
	Token       string
	Sign        string
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

func (t *Ticket) ValidAt(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt)
}

// LoginTicketRequest is the unsigned TRA document.
type LoginTicketRequest struct {
	XMLName xml.Name `xml:"loginTicketRequest"`
	Version string   `xml:"version,attr"`
	Header  struct {
		UniqueID       int64  `xml:"uniqueId"`
		GenerationTime string `xml:"generationTime"`
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Service string `xml:"service"`
}

// NewLoginTicketRequest builds a TRA for service. The generation time is set
// 20 minutes in the past to absorb clock skew with the provider.
func NewLoginTicketRequest(service string, now time.Time) LoginTicketRequest {
	var tra LoginTicketRequest
	tra.Version = "1.0"
	tra.Header.UniqueID = now.Unix()
	tra.Header.GenerationTime = now.Add(-ticketClockSkew).Format(time.RFC3339)
	tra.Header.ExpirationTime = now.Add(ticketLifetime).Format(time.RFC3339)
	tra.Service = service
	return tra
}

func (r LoginTicketRequest) Marshal() ([]byte, error) {
	b, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}

type loginCmsRequest struct {
	XMLName xml.Name `xml:"http://wsaa.view.sua.dvadac.desein.afip.gov loginCms"`
	In0     string   `xml:"in0"`
}

type loginCmsEnvelope struct {
	Return *string `xml:"Body>loginCmsResponse>loginCmsReturn"`
}

type loginTicketResponse struct {
	Header struct {
		Source         string `xml:"source"`
		Destination    string `xml:"destination"`
		UniqueID       string `xml:"uniqueId"`
		GenerationTime string `xml:"generationTime"`
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Credentials struct {
		Token string `xml:"token"`
		Sign  string `xml:"sign"`
	} `xml:"credentials"`
}

var entityDecoder = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`)

// LoginCms exchanges a base64 CMS-signed TRA for a ticket. It returns the raw
// SOAP response alongside the parsed ticket so callers can persist it.
func (c *Client) LoginCms(ctx context.Context, cms string) ([]byte, *Ticket, error) {
	raw, err := c.call(ctx, opLoginCms, c.wsaaURL, loginCmsAction, loginCmsRequest{In0: cms})
	if err != nil {
		return nil, nil, err
	}
	ticket, err := ParseLoginCmsResponse(raw)
	if err != nil {
		return raw, nil, err
	}
	return raw, ticket, nil
}

// ParseLoginCmsResponse decodes the SOAP body, entity-decodes the embedded
// loginTicketResponse and parses it.
func ParseLoginCmsResponse(raw []byte) (*Ticket, error) {
	var env loginCmsEnvelope
	if err := unmarshalBody(opLoginCms, raw, &env); err != nil {
		return nil, err
	}
	if env.Return == nil || strings.TrimSpace(*env.Return) == "" {
		return nil, &ParseError{Op: opLoginCms, Detail: "loginCmsReturn ausente", Body: string(raw)}
	}

	inner := entityDecoder.Replace(strings.TrimSpace(*env.Return))
	var ltr loginTicketResponse
	if err := xml.Unmarshal([]byte(inner), &ltr); err != nil {
		return nil, &ParseError{Op: opLoginCms, Detail: "loginTicketResponse", Body: string(raw), Err: err}
	}
	if ltr.Credentials.Token == "" || ltr.Credentials.Sign == "" {
		return nil, &ParseError{Op: opLoginCms, Detail: "credenciales ausentes", Body: string(raw)}
	}

	generated, err := time.Parse(time.RFC3339, strings.TrimSpace(ltr.Header.GenerationTime))
	if err != nil {
		return nil, &ParseError{Op: opLoginCms, Detail: "generationTime", Body: string(raw), Err: err}
	}
	expires, err := time.Parse(time.RFC3339, strings.TrimSpace(ltr.Header.ExpirationTime))
	if err != nil {
		return nil, &ParseError{Op: opLoginCms, Detail: "expirationTime", Body: string(raw), Err: err}
	}

	return &Ticket{
		UniqueID:    ltr.Header.UniqueID,
		Source:      ltr.Header.Source,
		Destination: ltr.Header.Destination,
		Token:       ltr.Credentials.Token,
		Sign:        ltr.Credentials.Sign,
		GeneratedAt: generated,
		ExpiresAt:   expires,
	}, nil
}
