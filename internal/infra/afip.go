package infra

import (
	"net/http"

	"anhelo/internal/afip"
	"anhelo/internal/config"
)

// NewAFIPClient builds the SOAP client for the configured AFIP environment.
func NewAFIPClient(cfg *config.Config) *afip.Client {
	return afip.NewClient(afip.Config{
		WSAAURL: cfg.AFIPWSAAURL,
		WSFEURL: cfg.AFIPWSFEURL,
		Timeout: cfg.AFIPTimeout(),
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
			},
		},
	})
}

// NewAFIPCircuitBreaker trips only on transport failures. A rejected voucher
// or a SOAP fault means WSFE is up.
func NewAFIPCircuitBreaker() *CircuitBreaker {
	cfg := DefaultCBConfig()
	cfg.ShouldTrip = afip.IsTransport
	return NewCircuitBreaker(cfg)
}
