package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/turnos-backend/internal/domain"
)

// newBareDB opens a unique in-memory database without any schema.
func newBareDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps shared-cache table locks out of the picture; the
	// unique index still decides every race.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newBareDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustCreate(t *testing.T, db *gorm.DB, date string, hour int) *domain.Appointment {
	t.Helper()
	a, err := CreateAppointment(context.Background(), db, "Cliente", "1122334455", date, hour)
	if err != nil {
		t.Fatalf("CreateAppointment(%s, %d): %v", date, hour, err)
	}
	return a
}

func TestCreateAppointment_Success_AndIDsIncrease(t *testing.T) {
	db := newRepoDB(t)

	a := mustCreate(t, db, "2025-03-10", 9)
	b := mustCreate(t, db, "2025-03-10", 10)
	if a.ID == 0 || b.ID <= a.ID {
		t.Fatalf("ids should be assigned and increasing: %d, %d", a.ID, b.ID)
	}
	if a.Status != domain.StatusConfirmed || a.CreatedAt.IsZero() {
		t.Fatalf("unexpected defaults: %+v", a)
	}
}

func TestCreateAppointment_OccupiedSlot_ReturnsErrDuplicate(t *testing.T) {
	db := newRepoDB(t)
	mustCreate(t, db, "2025-03-10", 9)

	_, err := CreateAppointment(context.Background(), db, "Otra", "1199887766", "2025-03-10", 9)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateAppointment_Error_NoTable(t *testing.T) {
	db := newBareDB(t)
	_, err := CreateAppointment(context.Background(), db, "n", "1", "2025-03-10", 9)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected generic error, got %v", err)
	}
}

func TestCreateAppointment_ConcurrentSameSlot_ExactlyOneWins(t *testing.T) {
	db := newRepoDB(t)
	const n = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := CreateAppointment(context.Background(), db, fmt.Sprintf("c%d", i), "1100000000", "2025-03-11", 15)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicate):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || conflicts != n-1 {
		t.Fatalf("successes=%d conflicts=%d; want 1 and %d", successes, conflicts, n-1)
	}
}

func TestUpdateAppointmentStatus_AllTransitions_AndNotFound(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mustCreate(t, db, "2025-03-10", 11)

	got, err := UpdateAppointmentStatus(ctx, db, a.ID, domain.StatusCompleted)
	if err != nil || got.Status != domain.StatusCompleted || got.SlotKey != nil {
		t.Fatalf("complete: got=%+v err=%v", got, err)
	}
	got, err = UpdateAppointmentStatus(ctx, db, a.ID, domain.StatusConfirmed)
	if err != nil || got.Status != domain.StatusConfirmed || got.SlotKey == nil {
		t.Fatalf("restore: got=%+v err=%v", got, err)
	}
	got, err = UpdateAppointmentStatus(ctx, db, a.ID, domain.StatusCancelled)
	if err != nil || got.Status != domain.StatusCancelled {
		t.Fatalf("cancel: got=%+v err=%v", got, err)
	}

	if _, err := UpdateAppointmentStatus(ctx, db, 9999, domain.StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAppointmentStatus_SameStatusReturnsRow(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mustCreate(t, db, "2025-03-10", 12)

	for _, st := range []domain.Status{domain.StatusConfirmed, domain.StatusConfirmed, domain.StatusCancelled, domain.StatusCancelled} {
		got, err := UpdateAppointmentStatus(ctx, db, a.ID, st)
		if err != nil || got.ID != a.ID || got.Status != st {
			t.Fatalf("set %s twice: got=%+v err=%v", st, got, err)
		}
	}
}

func TestCancellationFreesSlot_RestoreConflicts(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	first := mustCreate(t, db, "2025-03-12", 16)
	if _, err := UpdateAppointmentStatus(ctx, db, first.ID, domain.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	hours, err := ConfirmedHours(ctx, db, "2025-03-12")
	if err != nil || len(hours) != 0 {
		t.Fatalf("cancelled slot must not be occupied: hours=%v err=%v", hours, err)
	}

	second := mustCreate(t, db, "2025-03-12", 16)

	if _, err := UpdateAppointmentStatus(ctx, db, first.ID, domain.StatusConfirmed); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("restoring onto a retaken slot should conflict, got %v", err)
	}
	// The failed restore must leave the first row cancelled.
	got, _ := GetAppointment(ctx, db, first.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("first appointment should remain cancelled, got %s", got.Status)
	}
	got, _ = GetAppointment(ctx, db, second.ID)
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("second appointment should remain confirmed, got %s", got.Status)
	}
}

func TestDeleteAppointment_FreesSlot_AndNotFound(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mustCreate(t, db, "2025-03-13", 8)

	if err := DeleteAppointment(ctx, db, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetAppointment(ctx, db, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := DeleteAppointment(ctx, db, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
	mustCreate(t, db, "2025-03-13", 8)
}

func TestListConfirmedInRange_FiltersAndOrders(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	mustCreate(t, db, "2025-03-12", 10)
	mustCreate(t, db, "2025-03-10", 15)
	mustCreate(t, db, "2025-03-10", 9)
	mustCreate(t, db, "2025-03-20", 9)
	c := mustCreate(t, db, "2025-03-11", 9)
	if _, err := UpdateAppointmentStatus(ctx, db, c.ID, domain.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := ListConfirmedInRange(ctx, db, "2025-03-10", "2025-03-12")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"2025-03-10#9", "2025-03-10#15", "2025-03-12#10"}
	if len(got) != len(want) {
		t.Fatalf("got %d rows; want %d: %+v", len(got), len(want), got)
	}
	for i, a := range got {
		if k := fmt.Sprintf("%s#%d", a.AppointmentDate, a.AppointmentHour); k != want[i] {
			t.Fatalf("row %d = %s; want %s", i, k, want[i])
		}
	}

	all, err := ListConfirmedInRange(ctx, db, "", "")
	if err != nil || len(all) != 4 {
		t.Fatalf("open range: %d rows, err=%v", len(all), err)
	}
	from, _ := ListConfirmedInRange(ctx, db, "2025-03-12", "")
	if len(from) != 2 {
		t.Fatalf("from-only range: %d rows", len(from))
	}
}

func TestListAppointments_AllStatusesOrdered(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if got, err := ListAppointments(ctx, db); err != nil || got == nil || len(got) != 0 {
		t.Fatalf("empty list should be non-nil and empty: %v %v", got, err)
	}

	b := mustCreate(t, db, "2025-03-11", 9)
	a := mustCreate(t, db, "2025-03-10", 12)
	if _, err := UpdateAppointmentStatus(ctx, db, b.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := ListAppointments(ctx, db)
	if err != nil || len(got) != 2 {
		t.Fatalf("list: %v %v", got, err)
	}
	if got[0].ID != a.ID || got[1].ID != b.ID || got[1].Status != domain.StatusCompleted {
		t.Fatalf("unexpected order/status: %+v", got)
	}
}

func TestAppointmentCounts(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	today := "2025-03-10"

	empty, err := AppointmentCounts(ctx, db, today)
	if err != nil || empty != (domain.Counts{}) {
		t.Fatalf("empty counts = %+v, %v", empty, err)
	}

	mustCreate(t, db, today, 9)
	mustCreate(t, db, today, 10)
	mustCreate(t, db, "2025-03-11", 9)
	mustCreate(t, db, "2025-03-09", 9) // past, still confirmed
	done := mustCreate(t, db, "2025-03-08", 9)
	cancelled := mustCreate(t, db, "2025-03-12", 9)
	if _, err := UpdateAppointmentStatus(ctx, db, done.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := UpdateAppointmentStatus(ctx, db, cancelled.ID, domain.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := AppointmentCounts(ctx, db, today)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	want := domain.Counts{TodayConfirmed: 2, Upcoming: 1, TotalCompleted: 1}
	if got != want {
		t.Fatalf("counts = %+v; want %+v", got, want)
	}

	if _, err := AppointmentCounts(ctx, db, ""); err == nil {
		t.Fatalf("expected error for empty today")
	}
}
