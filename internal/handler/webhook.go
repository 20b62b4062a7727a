package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"looneca-storefront/internal/dto"
	"looneca-storefront/internal/service"

	"github.com/labstack/echo/v4"
)

const (
	SignatureHeader = "X-Hub-Signature"

	maxWebhookBody = 1 << 20
)

type WebhookHandler struct {
	webhookService service.WebhookService
	log            *slog.Logger
}

func NewWebhookHandler(webhookService service.WebhookService, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		log:            log.With("component", "webhook_handler"),
	}
}

// Pagarme acknowledges every delivery with 200 so the gateway does not retry;
// only a signature mismatch gets 401.
func (h *WebhookHandler) Pagarme(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.log.ErrorContext(ctx, "read webhook body", "error", err)
		return c.JSON(http.StatusOK, dto.WebhookAck{Received: true})
	}

	signature := c.Request().Header.Get(SignatureHeader)
	if signature == "" {
		signature = c.Request().Header.Get(SignatureHeader + "-256")
	}

	_, err = h.webhookService.Handle(ctx, signature, body)
	if errors.Is(err, service.ErrInvalidSignature) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}
	if err != nil {
		h.log.ErrorContext(ctx, "handle webhook", "error", err)
	}

	return c.JSON(http.StatusOK, dto.WebhookAck{Received: true})
}
