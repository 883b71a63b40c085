package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsHomologacion(t *testing.T) {
	t.Setenv("AFIP_ENV", "homologacion")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, WSAAHomologacion, cfg.AFIPWSAAURL)
	assert.Equal(t, WSFEHomologacion, cfg.AFIPWSFEURL)
	assert.Equal(t, "wsfe", cfg.AFIPService)
	assert.Equal(t, 30*time.Second, cfg.AFIPTimeout())
	assert.Equal(t, 3, cfg.AFIPLoginAttempts)
}

func TestLoad_Produccion(t *testing.T) {
	t.Setenv("AFIP_ENV", "produccion")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, WSAAProduccion, cfg.AFIPWSAAURL)
	assert.Equal(t, WSFEProduccion, cfg.AFIPWSFEURL)
}

func TestLoad_OverrideEndpoint(t *testing.T) {
	t.Setenv("AFIP_WSFE_URL", "http://localhost:9999/wsfe")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/wsfe", cfg.AFIPWSFEURL)
}

func TestLocation_Invalida(t *testing.T) {
	cfg := &Config{AFIPTimezone: "Nowhere/Invalid"}
	assert.Equal(t, time.Local, cfg.Location())
}
