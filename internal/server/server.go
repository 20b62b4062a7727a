package server

import (
	"context"
	"log/slog"
	"net/http"

	"looneca-storefront/internal/config"
	"looneca-storefront/internal/handler"
	appmw "looneca-storefront/internal/middleware"
	"looneca-storefront/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo           *echo.Echo
	cfg            *config.Config
	log            *slog.Logger
	paymentHandler *handler.PaymentHandler
	webhookHandler *handler.WebhookHandler
	orderHandler   *handler.OrderHandler
}

func NewServer(
	cfg *config.Config,
	paymentService service.PaymentService,
	webhookService service.WebhookService,
	orderService service.OrderService,
	log *slog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	e.Use(appmw.RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:           e,
		cfg:            cfg,
		log:            log,
		paymentHandler: handler.NewPaymentHandler(paymentService),
		webhookHandler: handler.NewWebhookHandler(webhookService, log),
		orderHandler:   handler.NewOrderHandler(orderService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api.POST("/payment", s.paymentHandler.Checkout,
		appmw.RateLimit(s.cfg.HTTP.CheckoutRateRPS),
		middleware.BodyLimit("1M"))

	// Webhooks are not size limited here: the handler truncates the body and
	// still acknowledges.

	orders := api.Group("/orders")
	if s.cfg.Auth.JWTSecret != "" {
		orders.Use(appmw.AuthJWT(s.cfg.Auth.JWTSecret))
	} else {
		s.log.Warn("AUTH_JWT_SECRET not set, order lookup is unauthenticated")
	}
	orders.GET("/:numero", s.orderHandler.GetByNumber)

	// -------- pagarme webhooks --------
	api.POST("/pagarme/webhooks", s.webhookHandler.Pagarme)
	s.echo.POST("/webhooks/pagarme", s.webhookHandler.Pagarme)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
