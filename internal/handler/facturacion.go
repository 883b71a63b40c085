package handler

import (
	"net/http"
	"path/filepath"

	"anhelo/internal/afip"
	"anhelo/internal/apierror"
	"anhelo/internal/dto"
	"anhelo/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FacturacionHandler struct {
	svc service.FacturacionService
	// cuit used by ultimo-comprobante when the query omits it
	defaultCuit string
}

func NewFacturacionHandler(svc service.FacturacionService, defaultCuit string) *FacturacionHandler {
	return &FacturacionHandler{svc: svc, defaultCuit: defaultCuit}
}

// Emitir godoc
// @Summary      Emitir factura
// @Description  Obtiene el ultimo numero, arma el desglose y solicita el CAE. Un rechazo de AFIP se devuelve como resultado "R", no como error.
// @Tags         facturas
// @Accept       json
// @Produce      json
// @Param        body body     dto.FacturaRequest true "Factura"
// @Success      200  {object} dto.FacturaResult
// @Failure      422  {object} apierror.ValidationError
// @Failure      502  {object} apierror.UpstreamError
// @Failure      503  {object} apierror.UpstreamError
// @Failure      504  {object} apierror.UpstreamError
// @Router       /v1/facturas [post]
func (h *FacturacionHandler) Emitir(c *gin.Context) {
	var req dto.FacturaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	res, err := h.svc.GenerateInvoice(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// EmitirLote godoc
// @Summary      Emitir lote de facturas
// @Description  Emite cada factura en orden. Un item fallido queda marcado en su posicion y el lote continua.
// @Tags         facturas
// @Accept       json
// @Produce      json
// @Param        body body     []dto.FacturaRequest true "Facturas"
// @Success      200  {array}  dto.FacturaBatchItem
// @Router       /v1/facturas/lote [post]
func (h *FacturacionHandler) EmitirLote(c *gin.Context) {
	var reqs []dto.FacturaRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(map[string]string{"facturas": "min=1"}))
		return
	}
	c.JSON(http.StatusOK, h.svc.GenerateInvoiceBatch(c.Request.Context(), reqs))
}

// Encolar godoc
// @Summary      Encolar factura para emision asincronica
// @Tags         facturas
// @Accept       json
// @Produce      json
// @Param        body body     dto.FacturaRequest true "Factura"
// @Success      202  {object} dto.FacturaEncoladaResponse
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/facturas/async [post]
func (h *FacturacionHandler) Encolar(c *gin.Context) {
	var req dto.FacturaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.EncolarFactura(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Obtener godoc
// @Summary      Obtener comprobante
// @Tags         facturas
// @Produce      json
// @Param        id   path     string true "UUID del comprobante"
// @Success      200  {object} dto.ComprobanteResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/facturas/{id} [get]
func (h *FacturacionHandler) Obtener(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID invalido"))
		return
	}
	resp, err := h.svc.ObtenerComprobante(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DescargarPDF godoc
// @Summary      Descargar PDF de la factura
// @Tags         facturas
// @Produce      application/pdf
// @Param        id   path     string true "UUID del comprobante"
// @Success      200
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/facturas/{id}/pdf [get]
func (h *FacturacionHandler) DescargarPDF(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID invalido"))
		return
	}
	path, err := h.svc.ObtenerPDFPath(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// UltimoComprobante godoc
// @Summary      Ultimo numero autorizado
// @Tags         afip
// @Produce      json
// @Param        punto_venta  query int    true  "Punto de venta"
// @Param        tipo_factura query string true  "A, B o C"
// @Param        cuit         query string false "CUIT emisor"
// @Success      200  {object} dto.UltimoComprobanteResponse
// @Router       /v1/afip/ultimo-comprobante [get]
func (h *FacturacionHandler) UltimoComprobante(c *gin.Context) {
	var q dto.UltimoComprobanteQuery
	if !bindQuery(c, &q) {
		return
	}
	cuit := q.Cuit
	if cuit == "" {
		cuit = h.defaultCuit
	}
	if cuit == "" {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(map[string]string{"cuit": "required"}))
		return
	}
	cbteTipo := afip.CbteTipo(q.TipoFactura)
	n, err := h.svc.GetLastDocumentNumber(c.Request.Context(), q.PuntoVenta, cbteTipo, cuit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UltimoComprobanteResponse{PuntoVenta: q.PuntoVenta, CbteTipo: cbteTipo, Numero: n})
}
