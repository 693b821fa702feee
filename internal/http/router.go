// Package httpapi wires the HTTP transport (Gin) to the booking services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// idempotent booking retries, rate limiting, CORS and security headers.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Idempotency (booking route only, before the limiter so replays bypass it)
//  8. Rate limiter
//  9. CORS, security headers, gzip (the event stream is never compressed)
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/turnos-backend/docs"
	"github.com/tbourn/turnos-backend/internal/config"
	"github.com/tbourn/turnos-backend/internal/http/handlers"
	"github.com/tbourn/turnos-backend/internal/http/middleware"
	"github.com/tbourn/turnos-backend/internal/repo"
	"github.com/tbourn/turnos-backend/internal/services"
)

// maxBodyBytes caps request bodies. Booking and login payloads are tiny.
const maxBodyBytes = 64 << 10

// Deps are the application services mounted by RegisterRoutes.
type Deps struct {
	Booking *services.BookingService
	Auth    *services.AuthService
	Events  handlers.EventSource
}

// RegisterRoutes attaches all middleware and endpoints to r. Public routes
// (slots, calendar, booking, event stream, login) and operator routes
// (listing, stats, export, status changes, deletion) live under
// cfg.APIBasePath; /health and /metrics stay at the root.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	base := cfg.APIBasePath
	if base == "/" {
		base = ""
	}
	eventsPath := base + "/events"
	bookPath := base + "/appointments"

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics(eventsPath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(routeOnly(http.MethodPost, bookPath, middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: services.IdempotencyScope, MaxLen: 200},
		idempotencyLookup(deps.Booking),
	)))

	// Operator identity is only known per route, so the global limiter keys by
	// IP. The admin group adds its own per-operator limiter below.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{
			base + "/auth",
			bookPath + "/all",
			bookPath + "/stats",
			bookPath + "/export",
		},
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{eventsPath, "/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/health", health)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Booking, deps.Auth, deps.Events, handlers.WithHeartbeat(cfg.Events.Heartbeat))

	api := groupWithPrefix(r, base)
	{
		api.GET("/health", health)

		api.POST("/auth/login", h.Login)
		api.GET("/auth/verify", h.Verify)

		api.GET("/events", h.StreamEvents)

		appts := api.Group("/appointments")
		appts.GET("", h.ListAppointments)
		appts.POST("", h.CreateAppointment)
		appts.GET("/slots/:date", h.GetSlots)

		opLimit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOperator())
		admin := appts.Group("", middleware.RequireAdmin(h.TokenVerifier()), opLimit.Handler())
		admin.GET("/all", h.ListAllAppointments)
		admin.GET("/stats", h.GetStats)
		admin.GET("/export", h.ExportAppointments)
		admin.PATCH("/:id/status", h.UpdateAppointmentStatus)
		admin.DELETE("/:id", h.DeleteAppointment)
	}
}

// idempotencyLookup reports whether a booking was already stored under the
// caller's key.
func idempotencyLookup(booking *services.BookingService) middleware.IdempotencyLookup {
	if booking == nil {
		return nil
	}
	return func(ctx context.Context, clientKey, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, booking.DB, clientKey, scope, key, now)
		if err != nil {
			return false, err
		}
		return rec != nil, nil
	}
}

// corsConfig allows every origin when none are configured. Credentials are
// never allowed: operators authenticate with a bearer header, not cookies.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Content-Disposition", "Retry-After", middleware.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// routeOnly runs mw for a single registered route and passes everything else
// straight through.
func routeOnly(method, fullPath string, mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == method && c.FullPath() == fullPath {
			mw(c)
			return
		}
		c.Next()
	}
}

// limitBody caps the request body at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
