package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EstadoPendiente = "pendiente"
	EstadoAprobado  = "aprobado"
	EstadoRechazado = "rechazado"
	EstadoError     = "error"
)

// Comprobante stores an invoice submitted to WSFE together with the computed
// breakdown and the authorization outcome.
// Estado: "pendiente" | "aprobado" | "rechazado" | "error"
type Comprobante struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Cuit         string    `gorm:"type:varchar(20);not null"`
	PuntoDeVenta int       `gorm:"not null"`
	TipoFactura  string    `gorm:"type:varchar(5);not null"`
	CbteTipo     int       `gorm:"not null"`
	Numero       *int64
	Fecha        string `gorm:"type:varchar(8)"`

	MontoNeto        decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	MontoIVA         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;column:monto_iva"`
	MontoTributos    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	AlicuotaTributos decimal.Decimal `gorm:"type:decimal(7,2);not null;default:0"`
	MontoTotal       decimal.Decimal `gorm:"type:decimal(14,2);not null"`

	Resultado      *string    `gorm:"type:varchar(2)"`
	CAE            *string    `gorm:"type:varchar(20);column:cae"`
	CAEVencimiento *time.Time `gorm:"column:cae_vencimiento"`
	// Errores and Observaciones hold the provider messages as "code: msg" lines
	Errores       *string `gorm:"type:text"`
	Observaciones *string `gorm:"type:text"`
	Estado        string  `gorm:"type:varchar(20);not null;default:'pendiente'"`

	ClienteEmail *string `gorm:"type:varchar(255)"`
	PDFPath      *string `gorm:"column:pdf_path"`

	// Retry fields, used by retry_cron to re-attempt async issuance
	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *Comprobante) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
