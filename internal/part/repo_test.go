package part

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) (*Repo, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Part{}, &StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepo(db), db
}

func TestStockInOut(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	admin := "admin-1"

	p := &Part{Name: "R134a refrigerant", Price: 95000, Stock: 10, Threshold: 3, UoM: UoMCan}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.StockIn(ctx, p.ID, 5, admin)
	if err != nil {
		t.Fatalf("stock in: %v", err)
	}
	if got.Stock != 15 {
		t.Fatalf("stock = %d, want 15", got.Stock)
	}

	got, err = repo.StockOut(ctx, p.ID, 15, admin)
	if err != nil {
		t.Fatalf("stock out: %v", err)
	}
	if got.Stock != 0 {
		t.Fatalf("stock = %d, want 0", got.Stock)
	}

	// 余量不足：拒绝、不产生负库存、不写流水
	if _, err := repo.StockOut(ctx, p.ID, 1, admin); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("underflow: err = %v, want ErrInsufficientStock", err)
	}
	got, _ = repo.FindByID(ctx, p.ID)
	if got.Stock != 0 {
		t.Fatalf("stock = %d after rejected out, want 0", got.Stock)
	}

	var moves int64
	db.Model(&StockMovement{}).Where("part_id = ?", p.ID).Count(&moves)
	if moves != 2 {
		t.Fatalf("movements = %d, want 2 (in + out)", moves)
	}

	if _, err := repo.StockOut(ctx, "no-such-id", 1, admin); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("missing part: err = %v, want record not found", err)
	}
	if _, err := repo.StockIn(ctx, p.ID, 0, admin); err == nil {
		t.Fatal("zero quantity must be rejected")
	}
}

func TestStockMovements(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	p := &Part{Name: "capillary tube", Price: 8000, Stock: 30, Threshold: 10, UoM: UoMMeter}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.StockIn(ctx, p.ID, 20, "admin-a"); err != nil {
		t.Fatalf("in: %v", err)
	}
	if _, err := repo.StockOut(ctx, p.ID, 7, "admin-b"); err != nil {
		t.Fatalf("out: %v", err)
	}

	moves, err := repo.ListMovements(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("movements = %d, want 2", len(moves))
	}
	kinds := map[MovementKind]int{}
	for _, m := range moves {
		kinds[m.Kind] += m.Quantity
	}
	if kinds[MovementIn] != 20 || kinds[MovementOut] != 7 {
		t.Fatalf("movement quantities = %+v", kinds)
	}
}

func TestListLowStock(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	low := &Part{Name: "compressor oil", Price: 45000, Stock: 1, Threshold: 5, UoM: UoMBottle}
	ok := &Part{Name: "cabin filter", Price: 30000, Stock: 20, Threshold: 5, UoM: UoMPiece}
	edge := &Part{Name: "o-ring set", Price: 12000, Stock: 5, Threshold: 5, UoM: UoMSet}
	for _, p := range []*Part{low, ok, edge} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.Name, err)
		}
	}

	parts, err := repo.ListLowStock(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	// stock == threshold 也提示补货
	want := map[string]bool{low.ID: true, edge.ID: true}
	if len(parts) != len(want) {
		t.Fatalf("low stock = %+v, want %d parts", parts, len(want))
	}
	for _, p := range parts {
		if !want[p.ID] {
			t.Fatalf("unexpected low-stock part %s", p.Name)
		}
	}
}

func TestValidUoM(t *testing.T) {
	for _, u := range []UoM{UoMPiece, UoMSet, UoMBottle, UoMCan, UoMMeter, UoMRoll} {
		if !ValidUoM(u) {
			t.Fatalf("%s should be valid", u)
		}
	}
	if ValidUoM("gallon") {
		t.Fatal("gallon is not an allowed UoM")
	}
}
