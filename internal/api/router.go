package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/redbank/donation-system/internal/api/handler"
	"github.com/redbank/donation-system/internal/api/middleware"
	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
	"github.com/redbank/donation-system/internal/infrastructure/http/handlers"
)

// Deps is everything the router needs to wire handlers.
type Deps struct {
	Log zerolog.Logger

	Auth      ports.AuthService
	Users     ports.UserService
	Donations ports.DonationService
	Requests  ports.RequestService

	// Mongo and Redis are only pinged by the readiness probe. Redis may be nil.
	Mongo *mongo.Database
	Redis *redis.Client

	AllowOrigins []string
	// BodyLimit uses echo's size syntax, e.g. "6M".
	BodyLimit string
	// StaticPrefix and StaticDir serve locally stored profile images.
	// Both empty when images live in a bucket.
	StaticPrefix string
	StaticDir    string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: d.AllowOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			handler.HeaderIdempotencyKey,
		},
	}))
	if d.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(d.BodyLimit))
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace: "blood",
		Subsystem: "http",
	}))

	// --- Ops endpoints (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Mongo, d.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	if d.StaticPrefix != "" && d.StaticDir != "" {
		e.Static(d.StaticPrefix, d.StaticDir)
	}

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	userHandler := handler.NewUserHandler(d.Users)
	donationHandler := handler.NewDonationHandler(d.Donations, d.Users)
	requestHandler := handler.NewRequestHandler(d.Requests)

	auth := middleware.Auth(d.Auth)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	api := e.Group("/api")

	// --- Auth routes ---
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	// --- Users ---
	// Static segments are registered before /:id so they are never captured as ids.
	users := api.Group("/users", auth)
	users.GET("", userHandler.List, adminOnly)
	users.GET("/me", userHandler.Me)
	users.GET("/donors", userHandler.Donors)
	users.GET("/top-donors", userHandler.TopDonors)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete, adminOnly)
	users.PATCH("/:id/role", userHandler.SetRole, adminOnly)
	users.PATCH("/:id/suspend", userHandler.SetSuspended, adminOnly)
	users.PATCH("/:id/toggle-active", userHandler.ToggleActive)
	users.PUT("/:id/profile-image", userHandler.UploadImage)
	users.DELETE("/:id/profile-image", userHandler.DeleteImage)

	// --- Donation ledger ---
	donations := api.Group("/donations", auth)
	donations.POST("/:userId", donationHandler.Submit)
	donations.GET("/:userId", donationHandler.Summary)
	donations.PATCH("/:userId/achievements", donationHandler.Achievements)
	donations.PATCH("/:userId/:donationId/approve", donationHandler.Approve, adminOnly)

	// --- Blood requests ---
	requests := api.Group("/requests", auth)
	requests.POST("", requestHandler.Create, middleware.RBAC(domain.RoleRecipient))
	requests.GET("", requestHandler.List)
	requests.PATCH("/:id/accept", requestHandler.Accept, middleware.RBAC(domain.RoleDonor))
	requests.PATCH("/:id/complete", requestHandler.Complete, middleware.RBAC(domain.RoleRecipient, domain.RoleAdmin))

	return e
}

// requestLogger forwards the access log to zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
