package car

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/booking"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/notification"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// captureEmitter 记录收到的通知批次，可配置为总是失败。
type captureEmitter struct {
	batches [][]notification.Message
	fail    bool
}

func (e *captureEmitter) Emit(ctx context.Context, batch []notification.Message) error {
	if e.fail {
		return errors.New("notification sink unavailable")
	}
	e.batches = append(e.batches, batch)
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *captureEmitter) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&user.User{},
		&Car{}, &CarOwnership{}, &TransferLog{},
		&booking.Booking{}, &booking.Job{}, &booking.Quote{}, &booking.Billing{},
		&notification.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	em := &captureEmitter{}
	return NewService(db, em, nil), db, em
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) *user.User {
	t.Helper()
	u := &user.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: name + "@example.com",
		Phone: "0917-000-0000",
		Role:  role,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedCar(t *testing.T, svc *Service, owner *user.User, plate string) *Car {
	t.Helper()
	c, err := svc.CreateCar(context.Background(), Actor{ID: owner.ID, Role: owner.Role}, CreateCarInput{
		PlateNo: plate, Brand: "Toyota", Model: "Vios", Year: "2019",
	})
	if err != nil {
		t.Fatalf("seed car: %v", err)
	}
	return c
}

func seedBooking(t *testing.T, db *gorm.DB, carID, customerID string, status booking.Status, stages ...booking.JobStage) *booking.Booking {
	t.Helper()
	b := &booking.Booking{
		ID:          uuid.NewString(),
		CarID:       carID,
		CustomerID:  customerID,
		Status:      status,
		ScheduledAt: time.Now().Add(48 * time.Hour),
	}
	for _, st := range stages {
		b.Jobs = append(b.Jobs, booking.Job{ID: uuid.NewString(), Stage: st, Title: "Aircon job"})
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}

func seedQuote(t *testing.T, db *gorm.DB, bookingID, customerID string, billing booking.BillingStatus) *booking.Quote {
	t.Helper()
	q := &booking.Quote{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		CustomerID: customerID,
		Amount:     250000,
		Billing:    &booking.Billing{ID: uuid.NewString(), Status: billing},
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("seed quote: %v", err)
	}
	return q
}

func ownershipRows(t *testing.T, db *gorm.DB, carID string) []CarOwnership {
	t.Helper()
	var rows []CarOwnership
	if err := db.Where("car_id = ?", carID).Order("from_date asc").Find(&rows).Error; err != nil {
		t.Fatalf("ownership rows: %v", err)
	}
	return rows
}

// assertTimelineInvariants 至多一条开放区间，且区间互不重叠。
func assertTimelineInvariants(t *testing.T, rows []CarOwnership) {
	t.Helper()
	open := 0
	for _, r := range rows {
		if r.ToDate == nil {
			open++
		} else if r.ToDate.Before(r.FromDate) {
			t.Fatalf("inverted interval: from=%v to=%v", r.FromDate, r.ToDate)
		}
	}
	if open > 1 {
		t.Fatalf("want at most 1 open interval, got %d", open)
	}
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			a, b := rows[i], rows[j]
			aEnd := a.ToDate
			if aEnd != nil && !aEnd.After(b.FromDate) {
				continue
			}
			bEnd := b.ToDate
			if bEnd != nil && !bEnd.After(a.FromDate) {
				continue
			}
			t.Fatalf("overlapping intervals: [%v,%v) and [%v,%v)", a.FromDate, a.ToDate, b.FromDate, b.ToDate)
		}
	}
}

func TestTransferNoFlags(t *testing.T) {
	svc, db, em := newTestService(t)
	admin := seedUser(t, db, "admin", user.RoleAdmin)
	alice := seedUser(t, db, "alice", user.RoleCustomer)
	bob := seedUser(t, db, "bob", user.RoleCustomer)
	c := seedCar(t, svc, alice, "ABC-1234")

	res, err := svc.Transfer(context.Background(), Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID, Reason: "sold",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.MovedJobsCount != 0 || res.MovedInvoicesCount != 0 {
		t.Fatalf("no-flags transfer moved records: %+v", res)
	}
	if res.TransferLogID == "" {
		t.Fatal("missing transfer log id")
	}

	got, err := svc.repo.FindByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload car: %v", err)
	}
	if got.OwnerID != bob.ID {
		t.Fatalf("owner = %s, want %s", got.OwnerID, bob.ID)
	}
	if got.OwnerChangedAt == nil {
		t.Fatal("owner_changed_at not updated")
	}

	rows := ownershipRows(t, db, c.ID)
	if len(rows) != 2 {
		t.Fatalf("ownership rows = %d, want 2", len(rows))
	}
	assertTimelineInvariants(t, rows)
	if rows[0].OwnerID != alice.ID || rows[0].ToDate == nil {
		t.Fatalf("previous interval not closed: %+v", rows[0])
	}
	if rows[1].OwnerID != bob.ID || rows[1].ToDate != nil {
		t.Fatalf("new interval not open: %+v", rows[1])
	}
	if !rows[0].ToDate.Equal(rows[1].FromDate) {
		t.Fatalf("handoff gap: closed at %v, opened at %v", rows[0].ToDate, rows[1].FromDate)
	}

	var l TransferLog
	if err := db.Where("car_id = ?", c.ID).First(&l).Error; err != nil {
		t.Fatalf("load transfer log: %v", err)
	}
	if l.PreviousOwnerID != alice.ID || l.NewOwnerID != bob.ID || l.AdminID != admin.ID {
		t.Fatalf("bad log parties: %+v", l)
	}
	var details TransferDetails
	if err := json.Unmarshal(l.Details, &details); err != nil {
		t.Fatalf("log details: %v", err)
	}

	// 两个当事人各收一条通知
	if len(em.batches) != 1 || len(em.batches[0]) != 2 {
		t.Fatalf("notification batches = %+v", em.batches)
	}
}

func TestTransferMovesOpenScopeOnly(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin2", user.RoleAdmin)
	alice := seedUser(t, db, "alice2", user.RoleCustomer)
	bob := seedUser(t, db, "bob2", user.RoleCustomer)
	c := seedCar(t, svc, alice, "DEF-5678")

	open1 := seedBooking(t, db, c.ID, alice.ID, booking.StatusPending)
	open2 := seedBooking(t, db, c.ID, alice.ID, booking.StatusInProgress,
		booking.StageDiagnosis, booking.StageCompletion) // 有未完工工单 ⇒ 开放
	closed := seedBooking(t, db, c.ID, alice.ID, booking.StatusCompleted,
		booking.StageCompletion, booking.StageCompletion)

	movable := seedQuote(t, db, open2.ID, alice.ID, booking.BillingUnpaid)
	stale := seedQuote(t, db, closed.ID, alice.ID, booking.BillingUnpaid) // 预约已完结，不迁移

	res, err := svc.Transfer(context.Background(), Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID, MoveOpenJobs: true, MoveUnpaidInvoices: true,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if res.MovedJobsCount != 2 {
		t.Fatalf("moved bookings = %d, want 2 (%v)", res.MovedJobsCount, res.MovedBookingIDs)
	}
	if res.MovedInvoicesCount != 1 || res.MovedQuoteIDs[0] != movable.ID {
		t.Fatalf("moved quotes = %v, want [%s]", res.MovedQuoteIDs, movable.ID)
	}

	assertCustomer := func(id, want, label string) {
		var b booking.Booking
		if err := db.First(&b, "id = ?", id).Error; err != nil {
			t.Fatalf("load %s: %v", label, err)
		}
		if b.CustomerID != want {
			t.Fatalf("%s customer = %s, want %s", label, b.CustomerID, want)
		}
	}
	assertCustomer(open1.ID, bob.ID, "open booking")
	assertCustomer(open2.ID, bob.ID, "in-progress booking")
	assertCustomer(closed.ID, alice.ID, "completed booking")

	var q booking.Quote
	if err := db.First(&q, "id = ?", stale.ID).Error; err != nil {
		t.Fatalf("load stale quote: %v", err)
	}
	if q.CustomerID != alice.ID {
		t.Fatal("unpaid quote of completed booking must stay with previous owner")
	}
}

func TestTransferNonAdminForbidden(t *testing.T) {
	svc, db, _ := newTestService(t)
	alice := seedUser(t, db, "alice3", user.RoleCustomer)
	bob := seedUser(t, db, "bob3", user.RoleCustomer)
	c := seedCar(t, svc, alice, "GHI-9012")

	_, err := svc.Transfer(context.Background(), Actor{ID: alice.ID, Role: alice.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID,
	})
	if KindOf(err) != KindForbidden {
		t.Fatalf("err = %v, want forbidden", err)
	}

	rows := ownershipRows(t, db, c.ID)
	if len(rows) != 1 || rows[0].OwnerID != alice.ID {
		t.Fatalf("rejected transfer must not write: %+v", rows)
	}
}

func TestTransferInvalidNewOwner(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin4", user.RoleAdmin)
	alice := seedUser(t, db, "alice4", user.RoleCustomer)
	c := seedCar(t, svc, alice, "JKL-3456")
	actor := Actor{ID: admin.ID, Role: admin.Role}

	for _, bad := range []string{"", "   ", "not-a-uuid", "12345"} {
		_, err := svc.Transfer(context.Background(), actor, TransferInput{CarID: c.ID, NewOwnerID: bad})
		if KindOf(err) != KindValidation {
			t.Fatalf("newOwnerId=%q: err = %v, want validation", bad, err)
		}
	}

	_, err := svc.Transfer(context.Background(), actor, TransferInput{CarID: c.ID, NewOwnerID: uuid.NewString()})
	if KindOf(err) != KindNotFound {
		t.Fatalf("unknown owner: err = %v, want not found", err)
	}
}

func TestTransferBackdatedRejected(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin5", user.RoleAdmin)
	alice := seedUser(t, db, "alice5", user.RoleCustomer)
	bob := seedUser(t, db, "bob5", user.RoleCustomer)
	carol := seedUser(t, db, "carol5", user.RoleCustomer)
	c := seedCar(t, svc, alice, "MNO-7890")
	actor := Actor{ID: admin.ID, Role: admin.Role}

	if _, err := svc.Transfer(context.Background(), actor, TransferInput{CarID: c.ID, NewOwnerID: bob.ID}); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	before := ownershipRows(t, db, c.ID)

	// 回溯到首次过户之前 ⇒ 会与已关闭区间重叠
	_, err := svc.Transfer(context.Background(), actor, TransferInput{
		CarID:        c.ID,
		NewOwnerID:   carol.ID,
		TransferDate: time.Now().Add(-24 * time.Hour).Format(time.RFC3339),
	})
	if KindOf(err) != KindValidation {
		t.Fatalf("backdated: err = %v, want validation", err)
	}

	after := ownershipRows(t, db, c.ID)
	if len(after) != len(before) {
		t.Fatalf("rejected transfer wrote rows: before=%d after=%d", len(before), len(after))
	}
	var logs int64
	db.Model(&TransferLog{}).Where("car_id = ? AND new_owner_id = ?", c.ID, carol.ID).Count(&logs)
	if logs != 0 {
		t.Fatal("rejected transfer must not log")
	}
}

func TestTransferSameInstantRejected(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin6", user.RoleAdmin)
	alice := seedUser(t, db, "alice6", user.RoleCustomer)
	bob := seedUser(t, db, "bob6", user.RoleCustomer)
	carol := seedUser(t, db, "carol6", user.RoleCustomer)
	c := seedCar(t, svc, alice, "PQR-1357")
	actor := Actor{ID: admin.ID, Role: admin.Role}

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	stamp := at.Format(time.RFC3339)
	if _, err := svc.Transfer(context.Background(), actor, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID, TransferDate: stamp,
	}); err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	// 同一生效时刻重复过户：新开区间会与当前开放区间同点起始
	_, err := svc.Transfer(context.Background(), actor, TransferInput{
		CarID: c.ID, NewOwnerID: carol.ID, TransferDate: stamp,
	})
	if KindOf(err) != KindValidation {
		t.Fatalf("same-instant repeat: err = %v, want validation", err)
	}
	assertTimelineInvariants(t, ownershipRows(t, db, c.ID))
}

func TestTransferConcurrentConflict(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin7", user.RoleAdmin)
	alice := seedUser(t, db, "alice7", user.RoleCustomer)
	bob := seedUser(t, db, "bob7", user.RoleCustomer)
	carol := seedUser(t, db, "carol7", user.RoleCustomer)
	c := seedCar(t, svc, alice, "STU-2468")
	actor := Actor{ID: admin.ID, Role: admin.Role}
	ctx := context.Background()

	// 两个管理员各自读到同一份快照
	stale, err := svc.repo.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := svc.Transfer(ctx, actor, TransferInput{CarID: c.ID, NewOwnerID: bob.ID}); err != nil {
		t.Fatalf("winner transfer: %v", err)
	}
	rowsAfterWin := ownershipRows(t, db, c.ID)

	carolUser, err := svc.users.FindByID(ctx, carol.ID)
	if err != nil {
		t.Fatalf("load carol: %v", err)
	}
	_, err = svc.transferLoaded(ctx, actor, stale, carolUser, TransferInput{
		CarID: c.ID, NewOwnerID: carol.ID,
	}, time.Now().Add(time.Minute))
	if KindOf(err) != KindConflict {
		t.Fatalf("loser: err = %v, want conflict", err)
	}

	rowsAfterLose := ownershipRows(t, db, c.ID)
	if len(rowsAfterLose) != len(rowsAfterWin) {
		t.Fatal("losing transfer must roll back completely")
	}
	got, _ := svc.repo.FindByID(ctx, c.ID)
	if got.OwnerID != bob.ID {
		t.Fatalf("owner = %s, want winner %s", got.OwnerID, bob.ID)
	}
}

func TestTransferEmitterFailureDoesNotFail(t *testing.T) {
	svc, db, em := newTestService(t)
	em.fail = true
	admin := seedUser(t, db, "admin8", user.RoleAdmin)
	alice := seedUser(t, db, "alice8", user.RoleCustomer)
	bob := seedUser(t, db, "bob8", user.RoleCustomer)
	c := seedCar(t, svc, alice, "VWX-3691")

	res, err := svc.Transfer(context.Background(), Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID,
	})
	if err != nil {
		t.Fatalf("transfer must survive emitter failure: %v", err)
	}
	if res.TransferLogID == "" {
		t.Fatal("transfer not committed")
	}
	got, _ := svc.repo.FindByID(context.Background(), c.ID)
	if got.OwnerID != bob.ID {
		t.Fatal("ownership change lost")
	}
}

func TestTransferBackfillsLegacyCar(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin9", user.RoleAdmin)
	alice := seedUser(t, db, "alice9", user.RoleCustomer)
	bob := seedUser(t, db, "bob9", user.RoleCustomer)

	// 老数据：车辆行存在但没有任何所有权区间，令牌为 NULL
	legacy := &Car{
		ID:      uuid.NewString(),
		PlateNo: "OLD-0001",
		Brand:   "Mitsubishi",
		Model:   "Adventure",
		OwnerID: alice.ID,
	}
	if err := db.Create(legacy).Error; err != nil {
		t.Fatalf("seed legacy car: %v", err)
	}

	res, err := svc.Transfer(context.Background(), Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: legacy.ID, NewOwnerID: bob.ID,
	})
	if err != nil {
		t.Fatalf("legacy transfer: %v", err)
	}
	if res.TransferLogID == "" {
		t.Fatal("missing log")
	}

	rows := ownershipRows(t, db, legacy.ID)
	if len(rows) != 2 {
		t.Fatalf("ownership rows = %d, want backfill + new", len(rows))
	}
	assertTimelineInvariants(t, rows)
	if rows[0].OwnerID != alice.ID || rows[0].ToDate == nil {
		t.Fatalf("backfill interval must be closed: %+v", rows[0])
	}
	if rows[1].OwnerID != bob.ID || rows[1].ToDate != nil {
		t.Fatalf("new interval must be open: %+v", rows[1])
	}
}

func TestTransferSelfTransferAllowed(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "admin10", user.RoleAdmin)
	alice := seedUser(t, db, "alice10", user.RoleCustomer)
	c := seedCar(t, svc, alice, "YZA-5820")

	// 同车主再过户：允许，照常关旧开新并记审计
	res, err := svc.Transfer(context.Background(), Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: alice.ID, Reason: "re-affirm",
	})
	if err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if res.TransferLogID == "" {
		t.Fatal("self transfer must still log")
	}
	rows := ownershipRows(t, db, c.ID)
	if len(rows) != 2 {
		t.Fatalf("ownership rows = %d, want 2", len(rows))
	}
	assertTimelineInvariants(t, rows)
}

func TestResolveTransferDate(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	if got := resolveTransferDate("", now); !got.Equal(now) {
		t.Fatalf("empty: got %v", got)
	}
	if got := resolveTransferDate("not-a-date", now); !got.Equal(now) {
		t.Fatalf("garbage must fall back to now: got %v", got)
	}
	if got := resolveTransferDate("2026-08-01", now); got.Year() != 2026 || got.Month() != 8 || got.Day() != 1 {
		t.Fatalf("date-only: got %v", got)
	}
	if got := resolveTransferDate("2026-08-01T10:30:00Z", now); got.Hour() != 10 || got.Minute() != 30 {
		t.Fatalf("rfc3339: got %v", got)
	}
}
