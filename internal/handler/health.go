package handler

import (
	"context"
	"net/http"
	"time"

	"anhelo/internal/infra"
	"anhelo/internal/service"
	"anhelo/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type dlqCounter interface {
	Length(ctx context.Context, queue string) (int64, error)
}

// HealthDeps lists what /health probes. Redis and DLQ may be nil.
type HealthDeps struct {
	DB          *gorm.DB
	Redis       redis.Cmdable
	CB          *infra.CircuitBreaker
	Facturacion service.FacturacionService
	DLQ         dlqCounter
}

// Health returns a JSON health check response.
// DB and Redis decide the status code; AFIP is reported but never fails the
// check, since issuance degrades to the async queue when WSFE is down.
func Health(d HealthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := d.DB.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if d.Redis != nil {
			redisStatus = "connected"
			if d.Redis.Ping(ctx).Err() != nil {
				redisStatus = "error"
			}
		}

		afipStatus := gin.H{}
		if d.CB != nil {
			afipStatus["circuit_breaker"] = d.CB.State().String()
		}
		if d.Facturacion != nil && (d.CB == nil || d.CB.State() != infra.CBOpen) {
			if st, err := d.Facturacion.ServerStatus(ctx); err != nil {
				afipStatus["error"] = err.Error()
			} else {
				afipStatus["app_server"] = st.AppServer
				afipStatus["db_server"] = st.DbServer
				afipStatus["auth_server"] = st.AuthServer
				afipStatus["ok"] = st.OK
			}
		}

		body := gin.H{
			"db":    dbStatus,
			"redis": redisStatus,
			"afip":  afipStatus,
		}
		if d.DLQ != nil {
			dlq := gin.H{}
			for _, q := range []string{worker.QueueFacturacion, worker.QueueEmail} {
				if n, err := d.DLQ.Length(ctx, q); err == nil {
					dlq[q] = n
				}
			}
			body["dlq"] = dlq
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus == "error" {
			status = http.StatusServiceUnavailable
		}
		body["ok"] = status == http.StatusOK
		c.JSON(status, body)
	}
}
