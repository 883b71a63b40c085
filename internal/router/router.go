package router

import (
	"anhelo/internal/config"
	"anhelo/internal/handler"
	"anhelo/internal/infra"
	"anhelo/internal/middleware"
	"anhelo/internal/service"
	"anhelo/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the already-built services the HTTP layer exposes. Redis and DLQ
// may be nil when the async queue is not configured.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	CB          *infra.CircuitBreaker
	Tokens      service.TokenService
	Facturacion service.FacturacionService
	DLQ         *worker.DLQ
	RateLimiter *middleware.IPRateLimiter
}

// New returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(d Deps) *gin.Engine {
	if d.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware())
	}

	tokenH := handler.NewTokenHandler(d.Tokens)
	facturacionH := handler.NewFacturacionHandler(d.Facturacion, d.Config.AFIPCUIT)

	health := handler.HealthDeps{DB: d.DB, CB: d.CB, Facturacion: d.Facturacion}
	if d.Redis != nil {
		health.Redis = d.Redis
	}
	if d.DLQ != nil {
		health.DLQ = d.DLQ
	}
	r.GET("/health", handler.Health(health))

	v1 := r.Group("/v1")
	{
		afipG := v1.Group("/afip")
		{
			afipG.GET("/token", tokenH.Estado)
			afipG.POST("/token", tokenH.Renovar)
			afipG.GET("/ultimo-comprobante", facturacionH.UltimoComprobante)
		}

		fact := v1.Group("/facturas")
		{
			fact.POST("", facturacionH.Emitir)
			fact.POST("/lote", facturacionH.EmitirLote)
			fact.POST("/async", facturacionH.Encolar)
			fact.GET("/:id", facturacionH.Obtener)
			fact.GET("/:id/pdf", facturacionH.DescargarPDF)
		}
	}

	// Swagger UI outside production only
	if d.Config.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
