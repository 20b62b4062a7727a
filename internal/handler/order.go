package handler

import (
	"net/http"
	"strconv"

	"looneca-storefront/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) GetByNumber(c echo.Context) error {
	ctx := c.Request().Context()

	numero, err := strconv.ParseInt(c.Param("numero"), 10, 64)
	if err != nil || numero <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order number")
	}

	snapshot, err := h.orderService.GetByNumber(ctx, numero)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, snapshot)
}
