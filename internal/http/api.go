package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paygate/internal/chatbot"
	"paygate/internal/dispatch"
	"paygate/internal/domain"
	"paygate/internal/payment"
	"paygate/internal/service"
)

// PaymentGateway confirms checkouts and authenticates provider callbacks.
type PaymentGateway interface {
	LookupCheckout(ctx context.Context, reference string) (*payment.CheckoutResult, error)
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// TokenManager issues and checks bearer tokens.
type TokenManager interface {
	IssueToken(subject string, ttl time.Duration) (string, error)
	VerifyToken(token string) (string, error)
}

// ChatHandler processes one inbound chat message.
type ChatHandler interface {
	Handle(ctx context.Context, in chatbot.Incoming) error
}

// AccessNotifier is told about accounts created by a payment.
type AccessNotifier interface {
	AccessGranted(user *domain.User)
}

type Config struct {
	Broker     service.PaymentBroker
	Users      service.UserService
	Onboarding service.OnboardingService
	Payments   PaymentGateway
	Tokens     TokenManager
	Chat       ChatHandler
	Pool       dispatch.Pool
	Notifier   AccessNotifier

	TokenTTL       time.Duration
	TelegramSecret string
	AllowedOrigin  string
	Logger         *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	cfg Config
}

func NewHandler(cfg Config) *Handler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Handler{cfg: cfg}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.cfg.AllowedOrigin))

	router.GET("/success", h.confirmCheckout)
	router.POST("/telegram/webhook", h.telegramWebhook)

	api := router.Group("/api")
	{
		api.POST("/checkout/sessions", h.createCheckoutSession)
		api.POST("/payments/webhook", h.paymentWebhook)
		api.POST("/auth/login", h.login)
		api.GET("/onboarding/questions", h.listQuestions)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}

	authed := api.Group("", h.requireBearer())
	{
		authed.GET("/me", h.me)
		authed.POST("/account/password", h.setPassword)
	}

	onboarding := authed.Group("/onboarding", h.requireEntitlement())
	{
		onboarding.GET("/next", h.nextQuestion)
		onboarding.POST("/answers", h.submitAnswer)
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
