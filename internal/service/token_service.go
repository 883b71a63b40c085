package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"anhelo/internal/afip"
	"anhelo/internal/dto"
	"anhelo/internal/model"
	"anhelo/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultLoginAttempts = 3

// WSAAClient is the login half of afip.Client.
type WSAAClient interface {
	LoginCms(ctx context.Context, cms string) ([]byte, *afip.Ticket, error)
}

// TokenService owns the WSAA ticket lifecycle: reuse while valid, mint a new
// one otherwise. Regeneration is single-flight.
type TokenService interface {
	GetExistingToken(ctx context.Context) (*afip.Ticket, bool)
	GenerateToken(ctx context.Context) (*afip.Ticket, error)
	EnsureToken(ctx context.Context) (*afip.Ticket, error)
	CheckTokenStatus(ctx context.Context) dto.TokenStatusResponse
	ForceGenerateToken(ctx context.Context) (*dto.TokenRenewResponse, error)
}

type TokenServiceConfig struct {
	Service     string
	MaxAttempts int
	// Now defaults to time.Now.
	Now func() time.Time
}

type tokenService struct {
	wsaa        WSAAClient
	signer      afip.Signer
	repo        repository.TicketRepository
	cache       *cache.Cache
	group       singleflight.Group
	service     string
	maxAttempts int
	now         func() time.Time
}

func NewTokenService(wsaa WSAAClient, signer afip.Signer, repo repository.TicketRepository, cfg TokenServiceConfig) TokenService {
	if cfg.Service == "" {
		cfg.Service = "wsfe"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultLoginAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &tokenService{
		wsaa:        wsaa,
		signer:      signer,
		repo:        repo,
		cache:       cache.New(cache.NoExpiration, 10*time.Minute),
		service:     cfg.Service,
		maxAttempts: cfg.MaxAttempts,
		now:         cfg.Now,
	}
}

// GetExistingToken returns the stored ticket when it is still valid. Read and
// parse failures are treated as "no ticket".
func (s *tokenService) GetExistingToken(ctx context.Context) (*afip.Ticket, bool) {
	now := s.now()
	if v, ok := s.cache.Get(s.service); ok {
		if t := v.(*afip.Ticket); t.ValidAt(now) {
			return t, true
		}
		s.cache.Delete(s.service)
	}

	rec, err := s.repo.FindByService(ctx, s.service)
	if err != nil {
		log.Debug().Err(err).Str("service", s.service).Msg("token: no hay ticket persistido")
		return nil, false
	}
	t, err := afip.ParseLoginCmsResponse([]byte(rec.RawResponse))
	if err != nil {
		log.Warn().Err(err).Str("service", s.service).Msg("token: ticket persistido ilegible")
		return nil, false
	}
	if !t.ValidAt(now) {
		return nil, false
	}
	s.remember(t, now)
	return t, true
}

// GenerateToken always mints a new ticket, sharing the work with any
// regeneration already in flight.
func (s *tokenService) GenerateToken(ctx context.Context) (*afip.Ticket, error) {
	return s.regenerate(ctx, true)
}

func (s *tokenService) EnsureToken(ctx context.Context) (*afip.Ticket, error) {
	if t, ok := s.GetExistingToken(ctx); ok {
		return t, nil
	}
	return s.regenerate(ctx, false)
}

func (s *tokenService) CheckTokenStatus(ctx context.Context) dto.TokenStatusResponse {
	t, ok := s.GetExistingToken(ctx)
	if !ok {
		return dto.TokenStatusResponse{Valid: false}
	}
	exp := t.ExpiresAt.Format(time.RFC3339)
	return dto.TokenStatusResponse{Valid: true, ExpirationTime: &exp}
}

func (s *tokenService) ForceGenerateToken(ctx context.Context) (*dto.TokenRenewResponse, error) {
	t, err := s.GenerateToken(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.TokenRenewResponse{ExpirationTime: t.ExpiresAt.Format(time.RFC3339)}, nil
}

// regenerate funnels every caller through one in-flight login. The shared
// work is detached from the first caller's cancellation; each caller still
// stops waiting when its own context ends.
func (s *tokenService) regenerate(ctx context.Context, force bool) (*afip.Ticket, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.service, func() (interface{}, error) {
		if !force {
			if t, ok := s.GetExistingToken(detached); ok {
				return t, nil
			}
		}
		return s.login(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*afip.Ticket), nil
	}
}

func (s *tokenService) login(ctx context.Context) (*afip.Ticket, error) {
	// the old slot is dropped first; a failed login leaves no stale ticket behind
	s.cache.Delete(s.service)
	if err := s.repo.Delete(ctx, s.service); err != nil {
		log.Warn().Err(err).Str("service", s.service).Msg("token: no se pudo borrar el ticket anterior")
	}

	now := s.now()
	tra, err := afip.NewLoginTicketRequest(s.service, now).Marshal()
	if err != nil {
		return nil, fmt.Errorf("token: armar TRA: %w", err)
	}
	signed, err := s.signer.Sign(tra)
	if err != nil {
		return nil, fmt.Errorf("token: firmar TRA: %w", err)
	}
	cms := base64.StdEncoding.EncodeToString(signed)

	var (
		raw     []byte
		ticket  *afip.Ticket
		attempt int
	)
	op := func() error {
		attempt++
		r, t, err := s.wsaa.LoginCms(ctx, cms)
		if err != nil {
			if afip.IsTransport(err) {
				log.Warn().Err(err).Int("attempt", attempt).Str("service", s.service).Msg("token: loginCms fallo, reintentando")
				return err
			}
			return backoff.Permanent(err)
		}
		raw, ticket = r, t
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(s.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		log.Error().Err(err).Int("attempts", attempt).Str("service", s.service).Msg("token: loginCms agotado")
		return nil, err
	}

	rec := &model.AuthTicket{
		Service:       s.service,
		UniqueID:      now.Unix(),
		Token:         ticket.Token,
		Sign:          ticket.Sign,
		GeneratedAt:   ticket.GeneratedAt,
		ExpiresAt:     ticket.ExpiresAt,
		LoginRequest:  string(tra),
		SignedRequest: cms,
		RawResponse:   string(raw),
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		log.Error().Err(err).Str("service", s.service).Msg("token: no se pudo persistir el ticket")
	}
	s.remember(ticket, s.now())

	log.Info().
		Str("service", s.service).
		Time("expires_at", ticket.ExpiresAt).
		Int("attempts", attempt).
		Msg("token: ticket WSAA generado")
	return ticket, nil
}

func (s *tokenService) remember(t *afip.Ticket, now time.Time) {
	if ttl := t.ExpiresAt.Sub(now); ttl > 0 {
		s.cache.Set(s.service, t, ttl)
	}
}
