package car

import (
	"context"
	"testing"

	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/booking"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
)

func TestCarHistoryMasking(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "hadmin", user.RoleAdmin)
	alice := seedUser(t, db, "halice", user.RoleCustomer)
	bob := seedUser(t, db, "hbob", user.RoleCustomer)
	c := seedCar(t, svc, alice, "HIS-0001")
	ctx := context.Background()

	b := seedBooking(t, db, c.ID, alice.ID, booking.StatusCompleted, booking.StageCompletion)
	seedQuote(t, db, b.ID, alice.ID, booking.BillingPaid)

	// 过户给 bob：alice 成为历史车主
	if _, err := svc.Transfer(ctx, Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID,
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// 当前车主 bob 查看：历史参与方 alice 的联系方式被抹掉，姓名保留
	h, err := svc.GetCarHistory(ctx, Actor{ID: bob.ID, Role: bob.Role}, c.ID)
	if err != nil {
		t.Fatalf("history as owner: %v", err)
	}
	if h.CarOwnerID != bob.ID {
		t.Fatalf("carOwnerId = %s, want %s", h.CarOwnerID, bob.ID)
	}
	if len(h.Bookings) != 1 || len(h.Ownerships) != 2 {
		t.Fatalf("bookings=%d ownerships=%d", len(h.Bookings), len(h.Ownerships))
	}
	cust := h.Bookings[0].Customer
	if cust == nil || cust.Name == "" {
		t.Fatal("customer name must survive masking")
	}
	if cust.Email != "" || cust.Phone != "" {
		t.Fatalf("contact fields must be masked for non-subject viewer: %+v", cust)
	}
	for _, o := range h.Ownerships {
		if o.Owner == nil {
			continue
		}
		if o.Owner.ID != bob.ID && (o.Owner.Email != "" || o.Owner.Phone != "") {
			t.Fatalf("previous owner contact must be masked: %+v", o.Owner)
		}
		if o.Owner.ID == bob.ID && o.Owner.Email == "" {
			t.Fatal("requester sees own contact fields")
		}
	}

	// 管理员查看：不抹
	h, err = svc.GetCarHistory(ctx, Actor{ID: admin.ID, Role: admin.Role}, c.ID)
	if err != nil {
		t.Fatalf("history as admin: %v", err)
	}
	if h.Bookings[0].Customer.Email == "" {
		t.Fatal("admin must see unmasked contact fields")
	}

	// 既非管理员也非当前车主：拒绝
	if _, err := svc.GetCarHistory(ctx, Actor{ID: alice.ID, Role: alice.Role}, c.ID); KindOf(err) != KindForbidden {
		t.Fatalf("previous owner access: err = %v, want forbidden", err)
	}
}

func TestListTransfers(t *testing.T) {
	svc, db, _ := newTestService(t)
	admin := seedUser(t, db, "tadmin", user.RoleAdmin)
	alice := seedUser(t, db, "talice", user.RoleCustomer)
	bob := seedUser(t, db, "tbob", user.RoleCustomer)
	c := seedCar(t, svc, alice, "HIS-0002")
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, Actor{ID: admin.ID, Role: admin.Role}, TransferInput{
		CarID: c.ID, NewOwnerID: bob.ID, Reason: "sold",
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	logs, err := svc.ListTransfers(ctx, Actor{ID: admin.ID, Role: admin.Role}, c.ID)
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	l := logs[0]
	if l.Reason != "sold" || l.PreviousOwner == nil || l.PreviousOwner.ID != alice.ID || l.NewOwner.ID != bob.ID {
		t.Fatalf("bad log view: %+v", l)
	}
	if l.Admin == nil || l.Admin.ID != admin.ID {
		t.Fatalf("admin party missing: %+v", l.Admin)
	}

	if _, err := svc.ListTransfers(ctx, Actor{ID: bob.ID, Role: bob.Role}, c.ID); KindOf(err) != KindForbidden {
		t.Fatalf("non-admin: err = %v, want forbidden", err)
	}
}
