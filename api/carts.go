package api

import (
	"net/http"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/service/cart"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type CartHandler struct {
	service cart.CartUseCase
	log     *logrus.Logger
}

func NewCartHandler(service cart.CartUseCase, log *logrus.Logger) *CartHandler {
	return &CartHandler{service: service, log: log}
}

func (h *CartHandler) Register(router *gin.RouterGroup) {
	router.GET("/:user_id", h.get)
}

func (h *CartHandler) get(c *gin.Context) {
	items, err := h.service.Items(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	respond(c, http.StatusOK, items)
}
