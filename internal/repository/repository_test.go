package repository

import (
	"context"
	"testing"
	"time"

	"anhelo/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.AuthTicket{}, &model.Comprobante{}))
	return db
}

func TestTicketRepo_SaveSobrescribeSlot(t *testing.T) {
	repo := NewTicketRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Save(ctx, &model.AuthTicket{
		Service: "wsfe", UniqueID: 1, Token: "old", Sign: "s1",
		GeneratedAt: now, ExpiresAt: now.Add(time.Hour), RawResponse: "<a/>",
	}))
	require.NoError(t, repo.Save(ctx, &model.AuthTicket{
		Service: "wsfe", UniqueID: 2, Token: "new", Sign: "s2",
		GeneratedAt: now, ExpiresAt: now.Add(2 * time.Hour), RawResponse: "<b/>",
	}))

	got, err := repo.FindByService(ctx, "wsfe")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Token)
	assert.Equal(t, int64(2), got.UniqueID)
	assert.Equal(t, "<b/>", got.RawResponse)
}

func TestTicketRepo_Delete(t *testing.T) {
	repo := NewTicketRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &model.AuthTicket{Service: "wsfe", Token: "t", Sign: "s", RawResponse: "<a/>"}))

	require.NoError(t, repo.Delete(ctx, "wsfe"))

	_, err := repo.FindByService(ctx, "wsfe")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestComprobanteRepo_CreateAndFind(t *testing.T) {
	repo := NewComprobanteRepository(newTestDB(t))
	ctx := context.Background()

	c := &model.Comprobante{
		Cuit: "20123456789", PuntoDeVenta: 1, TipoFactura: "B", CbteTipo: 6,
		MontoTotal: decimal.RequireFromString("1210.00"), Estado: model.EstadoAprobado,
	}
	require.NoError(t, repo.Create(ctx, c))
	assert.NotEqual(t, uuid.Nil, c.ID)

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.TipoFactura)
	assert.True(t, decimal.RequireFromString("1210").Equal(got.MontoTotal))
}

func TestComprobanteRepo_ListPendingRetries(t *testing.T) {
	repo := NewComprobanteRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &model.Comprobante{Cuit: "1", TipoFactura: "C", Estado: model.EstadoPendiente, NextRetryAt: &past}
	notYet := &model.Comprobante{Cuit: "2", TipoFactura: "C", Estado: model.EstadoPendiente, NextRetryAt: &future}
	done := &model.Comprobante{Cuit: "3", TipoFactura: "C", Estado: model.EstadoAprobado, NextRetryAt: &past}
	for _, c := range []*model.Comprobante{due, notYet, done} {
		require.NoError(t, repo.Create(ctx, c))
	}

	got, err := repo.ListPendingRetries(ctx, now, 10)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}
