// Command server runs the turnos booking API.
//
//	@title						Turnos API
//	@version					1.0
//	@description				Hourly slot booking with a live calendar and an operator dashboard.
//	@BasePath					/api
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/turnos-backend/internal/calendar"
	"github.com/tbourn/turnos-backend/internal/config"
	"github.com/tbourn/turnos-backend/internal/events"
	httpapi "github.com/tbourn/turnos-backend/internal/http"
	"github.com/tbourn/turnos-backend/internal/notify"
	"github.com/tbourn/turnos-backend/internal/observability"
	"github.com/tbourn/turnos-backend/internal/repo"
	"github.com/tbourn/turnos-backend/internal/services"
	"github.com/tbourn/turnos-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	purgeEvery      = time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.SetupLogging("info", false, nil, "")
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, nil, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, observability.Resource{
		Version:     appVersion,
		Environment: cfg.GinMode,
		Timezone:    cfg.Timezone,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("load business timezone")
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	var publisher events.Publisher = bus
	if cfg.Events.RedisURL != "" {
		rdb, err := events.NewRedisClient(ctx, cfg.Events.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
		relay := events.NewRedisRelay(bus, rdb, cfg.Events.RedisChannel)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("calendar relay stopped")
			}
		}()
	}

	senders := notify.SendersFromConfig(cfg.Notify)
	dispatcher := notify.NewDispatcher(cfg.Notify.Timeout, senders...)
	log.Info().Strs("senders", dispatcher.Senders()).Msg("notifications configured")

	booking := services.NewBookingService(db, calendar.New(loc), publisher, dispatcher)
	booking.IdempotencyTTL = cfg.IdempotencyTTL
	booking.RejectPast = cfg.RejectPastBookings

	auth, err := services.NewAuthService(cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("operator auth")
	}

	go purgeIdempotency(ctx, booking)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Booking: booking, Auth: auth, Events: bus}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion).Str("timezone", cfg.Timezone).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		log.Error().Err(err).Msg("server failed")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Ending the event streams first lets Shutdown drain instead of waiting
	// on connections that never go idle.
	bus.Close()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("notifications still in flight at exit")
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

// purgeIdempotency drops expired replay records until ctx is done.
func purgeIdempotency(ctx context.Context, booking *services.BookingService) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, booking.DB, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency records removed")
			}
		}
	}
}
