// afipctl is the operator CLI for the AFIP credentials and WSFE.
//
//	afipctl status                       ticket validity and FEDummy
//	afipctl renew                        force a new WSAA ticket
//	afipctl ultimo -pv 1 -tipo B [-cuit] last authorized number
//
// It reads the same environment as the server and shares its ticket table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"anhelo/internal/afip"
	"anhelo/internal/config"
	"anhelo/internal/infra"
	"anhelo/internal/repository"
	"anhelo/internal/service"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func usage() {
	fmt.Fprintln(os.Stderr, "uso: afipctl <status|renew|ultimo|dummy> [flags]")
	os.Exit(2)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(zerolog.WarnLevel)
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "dummy":
		// needs neither DB nor certificate
		res, err := infra.NewAFIPClient(cfg).FEDummy(ctx)
		exitOnErr(err)
		printJSON(res)
		return
	case "status", "renew", "ultimo":
	default:
		usage()
	}

	tokens, fact := build(cfg)
	switch cmd {
	case "status":
		st, err := fact.ServerStatus(ctx)
		out := map[string]any{"token": tokens.CheckTokenStatus(ctx)}
		if err != nil {
			out["wsfe_error"] = err.Error()
		} else {
			out["wsfe"] = st
		}
		printJSON(out)
	case "renew":
		res, err := tokens.ForceGenerateToken(ctx)
		exitOnErr(err)
		printJSON(res)
	case "ultimo":
		fs := flag.NewFlagSet("ultimo", flag.ExitOnError)
		pv := fs.Int("pv", 1, "punto de venta")
		tipo := fs.String("tipo", "B", "letra de factura (A, B o C)")
		cuit := fs.String("cuit", cfg.AFIPCUIT, "CUIT emisor")
		_ = fs.Parse(args)
		cbteTipo := afip.CbteTipo(*tipo)
		n, err := fact.GetLastDocumentNumber(ctx, *pv, cbteTipo, *cuit)
		exitOnErr(err)
		printJSON(map[string]any{"punto_venta": *pv, "cbte_tipo": cbteTipo, "numero": n})
	}
}

func build(cfg *config.Config) (service.TokenService, service.FacturacionService) {
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	signer, err := afip.LoadPKCS7Signer(cfg.AFIPCertPath, cfg.AFIPKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AFIP certificate")
	}
	client := infra.NewAFIPClient(cfg)
	tokens := service.NewTokenService(client, signer, repository.NewTicketRepository(db), service.TokenServiceConfig{
		Service:     cfg.AFIPService,
		MaxAttempts: cfg.AFIPLoginAttempts,
	})
	fact := service.NewFacturacionService(tokens, client, repository.NewComprobanteRepository(db), nil, nil, service.FacturacionConfig{
		TributoDesc: cfg.AFIPTributoDesc,
		Location:    cfg.Location(),
	})
	return tokens, fact
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
