package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/turnos-backend/internal/calendar"
	"github.com/tbourn/turnos-backend/internal/config"
	"github.com/tbourn/turnos-backend/internal/events"
	"github.com/tbourn/turnos-backend/internal/http/middleware"
	"github.com/tbourn/turnos-backend/internal/repo"
	"github.com/tbourn/turnos-backend/internal/services"
)

// ---------- test plumbing ----------

var buenosAires = func() *time.Location {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		panic(err)
	}
	return loc
}()

// Sunday noon local: Monday 2025-03-10 is fully bookable.
var sundayNoon = time.Date(2025, 3, 9, 12, 0, 0, 0, buenosAires)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testAPI struct {
	engine  *gin.Engine
	booking *services.BookingService
	bus     *events.Bus
	token   string
}

// newTestAPI mounts every endpoint the way the router does, minus the
// cross-cutting middleware that has its own tests.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewBus(8)
	t.Cleanup(bus.Close)

	booking := services.NewBookingService(newTestDB(t), calendar.New(buenosAires), bus, nil)
	booking.Clock = calendar.FixedClock{T: sundayNoon}

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	auth, err := services.NewAuthService(config.AuthConfig{
		Username:     "admin",
		PasswordHash: string(hash),
		JWTSecret:    "handlers-test-secret-0123",
		JWTTTL:       time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	h := New(booking, auth, bus, WithHeartbeat(50*time.Millisecond))
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api")
	api.POST("/auth/login", h.Login)
	api.GET("/auth/verify", h.Verify)
	api.GET("/events", h.StreamEvents)

	appts := api.Group("/appointments")
	appts.GET("/slots/:date", h.GetSlots)
	appts.GET("", h.ListAppointments)
	appts.POST("", middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: services.IdempotencyScope}, nil), h.CreateAppointment)

	admin := appts.Group("", middleware.RequireAdmin(h.TokenVerifier()))
	admin.GET("/all", h.ListAllAppointments)
	admin.GET("/stats", h.GetStats)
	admin.GET("/export", h.ExportAppointments)
	admin.PATCH("/:id/status", h.UpdateAppointmentStatus)
	admin.DELETE("/:id", h.DeleteAppointment)

	sess, err := auth.Login(context.Background(), "admin", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	return &testAPI{engine: r, booking: booking, bus: bus, token: sess.Token}
}

type reqOpt func(*http.Request)

func withToken(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (a *testAPI) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T from %q: %v", v, w.Body.String(), err)
	}
	return v
}

func bookingBody(date string, hour any) map[string]any {
	return map[string]any{
		"name":             "  Ana   Pérez ",
		"whatsapp":         "+54 9 11 2233-4455",
		"appointment_date": date,
		"appointment_hour": hour,
	}
}
