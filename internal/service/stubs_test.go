package service

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"anhelo/internal/afip"
	"anhelo/internal/dto"
	"anhelo/internal/model"
	"anhelo/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ── In-memory TicketRepository stub ──────────────────────────────────────────

type stubTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]*model.AuthTicket
	deletes   int
	deleteErr error
	saveErr   error
}

func newStubTicketRepo() *stubTicketRepo {
	return &stubTicketRepo{tickets: make(map[string]*model.AuthTicket)}
}

func (r *stubTicketRepo) FindByService(_ context.Context, service string) (*model.AuthTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[service]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cloned := *t
	return &cloned, nil
}

func (r *stubTicketRepo) Save(_ context.Context, t *model.AuthTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cloned := *t
	r.tickets[t.Service] = &cloned
	return nil
}

func (r *stubTicketRepo) Delete(_ context.Context, service string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.tickets, service)
	return nil
}

var _ repository.TicketRepository = (*stubTicketRepo)(nil)

// ── In-memory ComprobanteRepository stub ─────────────────────────────────────

type stubComprobanteRepo struct {
	mu           sync.Mutex
	comprobantes map[uuid.UUID]*model.Comprobante
}

func newStubComprobanteRepo() *stubComprobanteRepo {
	return &stubComprobanteRepo{comprobantes: make(map[uuid.UUID]*model.Comprobante)}
}

func (r *stubComprobanteRepo) Create(_ context.Context, c *model.Comprobante) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cloned := *c
	r.comprobantes[c.ID] = &cloned
	return nil
}

func (r *stubComprobanteRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Comprobante, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comprobantes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cloned := *c
	return &cloned, nil
}

func (r *stubComprobanteRepo) Update(_ context.Context, c *model.Comprobante) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cloned := *c
	r.comprobantes[c.ID] = &cloned
	return nil
}

func (r *stubComprobanteRepo) ListPendingRetries(_ context.Context, now time.Time, limit int) ([]model.Comprobante, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Comprobante
	for _, c := range r.comprobantes {
		if c.Estado == model.EstadoPendiente && c.NextRetryAt != nil && !c.NextRetryAt.After(now) {
			out = append(out, *c)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *stubComprobanteRepo) all() []model.Comprobante {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Comprobante, 0, len(r.comprobantes))
	for _, c := range r.comprobantes {
		out = append(out, *c)
	}
	return out
}

var _ repository.ComprobanteRepository = (*stubComprobanteRepo)(nil)

// ── WSAA / signer stubs ──────────────────────────────────────────────────────

type stubSigner struct{}

func (stubSigner) Sign(content []byte) ([]byte, error) {
	return append([]byte("signed:"), content...), nil
}

type stubWSAA struct {
	mu    sync.Mutex
	calls int
	// respond receives the 1-based attempt number.
	respond func(attempt int) ([]byte, *afip.Ticket, error)
}

func (w *stubWSAA) LoginCms(_ context.Context, _ string) ([]byte, *afip.Ticket, error) {
	w.mu.Lock()
	w.calls++
	n := w.calls
	w.mu.Unlock()
	return w.respond(n)
}

func (w *stubWSAA) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// loginResponse builds a loginCms SOAP answer whose embedded ticket is valid
// between gen and exp.
func loginResponse(token string, gen, exp time.Time) []byte {
	inner := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<loginTicketResponse version="1.0"><header><source>CN=wsaahomo</source><destination>SERIALNUMBER=CUIT 20123456789</destination><uniqueId>1</uniqueId><generationTime>%s</generationTime><expirationTime>%s</expirationTime></header><credentials><token>%s</token><sign>firma-%s</sign></credentials></loginTicketResponse>`,
		gen.Format(time.RFC3339), exp.Format(time.RFC3339), token, token)
	return []byte(`<?xml version="1.0" encoding="UTF-8"?><soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body><loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov"><loginCmsReturn>` +
		html.EscapeString(inner) + `</loginCmsReturn></loginCmsResponse></soapenv:Body></soapenv:Envelope>`)
}

func okLogin(token string, now time.Time) func(int) ([]byte, *afip.Ticket, error) {
	return func(int) ([]byte, *afip.Ticket, error) {
		raw := loginResponse(token, now.Add(-20*time.Minute), now.Add(12*time.Hour))
		t, err := afip.ParseLoginCmsResponse(raw)
		return raw, t, err
	}
}

// ── Token stub ───────────────────────────────────────────────────────────────

type stubTokens struct {
	err error
}

func (s *stubTokens) ticket() *afip.Ticket {
	return &afip.Ticket{Token: "tok", Sign: "sig", ExpiresAt: time.Now().Add(time.Hour)}
}
func (s *stubTokens) GetExistingToken(context.Context) (*afip.Ticket, bool) { return s.ticket(), true }
func (s *stubTokens) GenerateToken(context.Context) (*afip.Ticket, error)    { return s.ticket(), s.err }
func (s *stubTokens) EnsureToken(context.Context) (*afip.Ticket, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ticket(), nil
}
func (s *stubTokens) CheckTokenStatus(context.Context) dto.TokenStatusResponse {
	return dto.TokenStatusResponse{Valid: true}
}
func (s *stubTokens) ForceGenerateToken(context.Context) (*dto.TokenRenewResponse, error) {
	return &dto.TokenRenewResponse{}, s.err
}

var _ TokenService = (*stubTokens)(nil)

// ── WSFE stub ────────────────────────────────────────────────────────────────

// stubWSFE keeps a last-number counter per (ptoVta, cbteTipo) and approves
// every request unless reject or caeErr are set.
type stubWSFE struct {
	mu        sync.Mutex
	last      map[string]int64
	cbteNro   *string
	requests  []afip.CAERequest
	reject    bool
	caeErr    error
	ultimoErr error
	dummy     *afip.DummyResult
	inFlight  int
	maxFlight int
}

func newStubWSFE() *stubWSFE {
	return &stubWSFE{last: make(map[string]int64)}
}

func (w *stubWSFE) FECompUltimoAutorizado(_ context.Context, _ afip.Auth, ptoVta, cbteTipo int) (*afip.UltimoAutorizadoResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ultimoErr != nil {
		return nil, w.ultimoErr
	}
	w.inFlight++
	if w.inFlight > w.maxFlight {
		w.maxFlight = w.inFlight
	}
	nro := fmt.Sprint(w.last[numeracionKey(ptoVta, cbteTipo)])
	if w.cbteNro != nil {
		nro = *w.cbteNro
	}
	return &afip.UltimoAutorizadoResult{PtoVta: ptoVta, CbteTipo: cbteTipo, CbteNro: nro}, nil
}

func (w *stubWSFE) FECAESolicitar(_ context.Context, req afip.CAERequest) (*afip.CAEResult, error) {
	time.Sleep(time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight--
	w.requests = append(w.requests, req)
	if w.caeErr != nil {
		return nil, w.caeErr
	}
	cab := req.FeCAEReq.FeCabReq
	det := req.FeCAEReq.FeDetReq[0]
	resp := afip.CAEDetResponse{CbteDesde: det.CbteDesde, CbteHasta: det.CbteHasta, CbteFch: det.CbteFch}
	if w.reject {
		resp.Resultado = "R"
		resp.Observaciones = []afip.ProviderMessage{{Code: 10016, Msg: "numero de comprobante invalido"}}
	} else {
		resp.Resultado = "A"
		resp.CAE = fmt.Sprintf("7401%010d", det.CbteDesde)
		resp.CAEFchVto = "20260320"
		w.last[numeracionKey(cab.PtoVta, cab.CbteTipo)] = det.CbteDesde
	}
	return &afip.CAEResult{
		FeCabResp: &afip.CAECabResponse{PtoVta: cab.PtoVta, CbteTipo: cab.CbteTipo, Resultado: resp.Resultado},
		FeDetResp: []afip.CAEDetResponse{resp},
	}, nil
}

func (w *stubWSFE) FEDummy(context.Context) (*afip.DummyResult, error) {
	if w.dummy == nil {
		return &afip.DummyResult{AppServer: "OK", DbServer: "OK", AuthServer: "OK"}, nil
	}
	return w.dummy, nil
}

func (w *stubWSFE) Requests() []afip.CAERequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]afip.CAERequest(nil), w.requests...)
}

type stubEnqueuer struct {
	jobs []interface{}
	err  error
}

func (e *stubEnqueuer) EnqueueFacturacion(_ context.Context, payload interface{}) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, payload)
	return nil
}
