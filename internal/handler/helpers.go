package handler

import (
	"errors"
	"net/http"
	"reflect"

	"anhelo/internal/apierror"
	"anhelo/internal/middleware"
	"anhelo/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// decimal.Decimal is a struct; the validator must see it as a number.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("parametros invalidos: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// writeError maps a service error to its HTTP response.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrComprobanteNoEncontrado):
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	case errors.Is(err, service.ErrPDFNoDisponible):
		c.JSON(http.StatusConflict, apierror.New(err.Error()))
		return
	}

	be := service.BatchError(err)
	switch be.Tipo {
	case "validacion":
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(be.Fields))
	case "afip":
		c.JSON(http.StatusBadGateway, apierror.NewUpstream(be.Tipo, be.Detail, be.Codigo))
	case "respuesta":
		logUpstream(c, err)
		c.JSON(http.StatusBadGateway, apierror.NewUpstream(be.Tipo, "respuesta de AFIP invalida", ""))
	case "timeout":
		logUpstream(c, err)
		c.JSON(http.StatusGatewayTimeout, apierror.NewUpstream(be.Tipo, "AFIP no respondio a tiempo", ""))
	case "transporte":
		logUpstream(c, err)
		c.JSON(http.StatusServiceUnavailable, apierror.NewUpstream(be.Tipo, "AFIP no disponible", ""))
	default:
		_ = c.Error(err)
	}
}

func logUpstream(c *gin.Context, err error) {
	log.Warn().
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Str("path", c.FullPath()).
		Err(err).
		Msg("afip upstream error")
}
