package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anhelo/internal/afip"
	"anhelo/internal/config"
	"anhelo/internal/infra"
	"anhelo/internal/middleware"
	"anhelo/internal/repository"
	"anhelo/internal/router"
	"anhelo/internal/service"
	"anhelo/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: dev pretty, prod JSON
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	signer, err := afip.LoadPKCS7Signer(cfg.AFIPCertPath, cfg.AFIPKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AFIP certificate")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── AFIP ─────────────────────────────────────────────────────────────────
	afipClient := infra.NewAFIPClient(cfg)
	afipCB := infra.NewAFIPCircuitBreaker()
	mailer := infra.NewMailer(cfg)
	dispatcher := worker.NewDispatcher(rdb)
	dlq := worker.NewDLQ(rdb)

	ticketRepo := repository.NewTicketRepository(db)
	comprobanteRepo := repository.NewComprobanteRepository(db)

	tokenSvc := service.NewTokenService(afipClient, signer, ticketRepo, service.TokenServiceConfig{
		Service:     cfg.AFIPService,
		MaxAttempts: cfg.AFIPLoginAttempts,
	})
	facturacionSvc := service.NewFacturacionService(tokenSvc, afipClient, comprobanteRepo, afipCB, dispatcher, service.FacturacionConfig{
		TributoDesc:    cfg.AFIPTributoDesc,
		Location:       cfg.Location(),
		PDFStoragePath: cfg.PDFStoragePath,
		Emisor:         infra.Emisor{RazonSocial: cfg.RazonSocial, Cuit: cfg.AFIPCUIT},
	})

	// ── Async ────────────────────────────────────────────────────────────────
	workerHandlers := &worker.WorkerHandlers{
		Facturacion: worker.NewFacturacionWorker(facturacionSvc, dispatcher),
		Email:       worker.NewEmailWorker(mailer),
	}
	worker.StartWorkerPool(ctx, rdb, workerHandlers, cfg.WorkerPoolSize)
	worker.StartRetryCron(ctx, worker.RetryCronConfig{
		ComprobanteRepo: comprobanteRepo,
		Facturacion:     facturacionSvc,
		CB:              afipCB,
		DLQ:             dlq,
		Emails:          dispatcher,
	})

	limiter := middleware.NewIPRateLimiter(1000, time.Minute) // 1000 req/min per IP
	limiter.StartPurge(ctx)

	r := router.New(router.Deps{
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		CB:          afipCB,
		Tokens:      tokenSvc,
		Facturacion: facturacionSvc,
		DLQ:         dlq,
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a batch holds the connection for one WSFE round trip per item
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().
			Str("afip_env", cfg.AFIPEnv).
			Str("wsfe", cfg.AFIPWSFEURL).
			Msgf("anhelo listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
