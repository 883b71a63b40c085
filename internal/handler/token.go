package handler

import (
	"net/http"

	"anhelo/internal/service"

	"github.com/gin-gonic/gin"
)

type TokenHandler struct{ svc service.TokenService }

func NewTokenHandler(svc service.TokenService) *TokenHandler { return &TokenHandler{svc: svc} }

// Estado godoc
// @Summary      Estado del ticket WSAA
// @Description  Indica si hay un ticket de acceso vigente y cuando vence. Nunca llama a AFIP.
// @Tags         afip
// @Produce      json
// @Success      200  {object} dto.TokenStatusResponse
// @Router       /v1/afip/token [get]
func (h *TokenHandler) Estado(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.CheckTokenStatus(c.Request.Context()))
}

// Renovar godoc
// @Summary      Forzar renovacion del ticket WSAA
// @Tags         afip
// @Produce      json
// @Success      200  {object} dto.TokenRenewResponse
// @Failure      502  {object} apierror.UpstreamError
// @Failure      503  {object} apierror.UpstreamError
// @Router       /v1/afip/token [post]
func (h *TokenHandler) Renovar(c *gin.Context) {
	resp, err := h.svc.ForceGenerateToken(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
