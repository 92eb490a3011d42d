package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.StockRecord{}, &models.StockReservation{}); err != nil {
		t.Fatalf("migrate stock: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedRecord(t *testing.T, db *gorm.DB, record models.StockRecord) models.StockRecord {
	t.Helper()
	if record.SellerID == uuid.Nil {
		record.SellerID = uuid.New()
	}
	if record.ProductID == uuid.Nil {
		record.ProductID = uuid.New()
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed stock record: %v", err)
	}
	return record
}

func loadRecord(t *testing.T, db *gorm.DB, sellerID, productID uuid.UUID) models.StockRecord {
	t.Helper()
	var record models.StockRecord
	if err := db.First(&record, "seller_id = ? AND product_id = ?", sellerID, productID).Error; err != nil {
		t.Fatalf("load stock record: %v", err)
	}
	return record
}

func TestReserveReleaseReserveCycle(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	record := seedRecord(t, db, models.StockRecord{PhysicalStock: 10})
	ctx := context.Background()

	var first []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		first, txErr = svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 5},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve 5: %v", err)
	}
	if got := loadRecord(t, db, record.SellerID, record.ProductID); got.ReservedStock != 5 {
		t.Fatalf("expected reserved 5, got %d", got.ReservedStock)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, txErr := svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 6},
		})
		return txErr
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock for 6 of 5 available, got %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseTx(ctx, tx, first[0].ID)
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := loadRecord(t, db, record.SellerID, record.ProductID); got.ReservedStock != 0 {
		t.Fatalf("expected reserved 0 after release, got %d", got.ReservedStock)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, txErr := svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 6},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve 6 after release: %v", err)
	}
}

func TestReserveAllOrNothingAcrossItems(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	sellerID := uuid.New()
	plenty := seedRecord(t, db, models.StockRecord{SellerID: sellerID, PhysicalStock: 10})
	scarce := seedRecord(t, db, models.StockRecord{SellerID: sellerID, PhysicalStock: 2})
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, txErr := svc.ReserveTx(ctx, tx, uuid.New(), sellerID, []Request{
			{ProductID: plenty.ProductID, Quantity: 4},
			{ProductID: scarce.ProductID, Quantity: 3},
		})
		return txErr
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// The first line's increment must have rolled back with the transaction.
	if got := loadRecord(t, db, sellerID, plenty.ProductID); got.ReservedStock != 0 {
		t.Fatalf("expected no partial reservation, reserved=%d", got.ReservedStock)
	}
	var count int64
	if err := db.Model(&models.StockReservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no reservation rows, got %d", count)
	}
}

func TestReleaseIsExactlyOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	record := seedRecord(t, db, models.StockRecord{PhysicalStock: 10})
	ctx := context.Background()

	var reservations []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservations, txErr = svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 3},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseTx(ctx, tx, reservations[0].ID)
	}); err != nil {
		t.Fatalf("first release: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseTx(ctx, tx, reservations[0].ID)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("second release should conflict, got %v", err)
	}
	if got := loadRecord(t, db, record.SellerID, record.ProductID); got.ReservedStock != 0 {
		t.Fatalf("reserved stock must not go negative, got %d", got.ReservedStock)
	}
}

func TestDeductFullQuantity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	record := seedRecord(t, db, models.StockRecord{PhysicalStock: 10})
	ctx := context.Background()

	var reservations []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservations, txErr = svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 4},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.DeductTx(ctx, tx, reservations[0].ID, nil)
	}); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	got := loadRecord(t, db, record.SellerID, record.ProductID)
	if got.PhysicalStock != 6 || got.ReservedStock != 0 {
		t.Fatalf("expected physical 6 reserved 0, got %+v", got)
	}

	var reservation models.StockReservation
	if err := db.First(&reservation, "id = ?", reservations[0].ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if reservation.Status != enums.ReservationStatusDeducted {
		t.Fatalf("expected deducted status, got %s", reservation.Status)
	}
}

func TestDeductPartialReleasesRemainder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	record := seedRecord(t, db, models.StockRecord{PhysicalStock: 10})
	ctx := context.Background()

	var reservations []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservations, txErr = svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 5},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	actual := 3
	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.DeductTx(ctx, tx, reservations[0].ID, &actual)
	}); err != nil {
		t.Fatalf("partial deduct: %v", err)
	}

	got := loadRecord(t, db, record.SellerID, record.ProductID)
	if got.PhysicalStock != 7 || got.ReservedStock != 0 {
		t.Fatalf("expected physical 7 reserved 0 after partial deduct, got %+v", got)
	}
}

func TestDeductRejectsQuantityAboveReserved(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	record := seedRecord(t, db, models.StockRecord{PhysicalStock: 10})
	ctx := context.Background()

	var reservations []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		reservations, txErr = svc.ReserveTx(ctx, tx, uuid.New(), record.SellerID, []Request{
			{ProductID: record.ProductID, Quantity: 2},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	over := 3
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.DeductTx(ctx, tx, reservations[0].ID, &over)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReleaseOrderReleasesAllActive(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	sellerID := uuid.New()
	a := seedRecord(t, db, models.StockRecord{SellerID: sellerID, PhysicalStock: 10})
	b := seedRecord(t, db, models.StockRecord{SellerID: sellerID, PhysicalStock: 10})
	ctx := context.Background()
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, txErr := svc.ReserveTx(ctx, tx, orderID, sellerID, []Request{
			{ProductID: a.ProductID, Quantity: 3},
			{ProductID: b.ProductID, Quantity: 2},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var released []models.StockReservation
	err = db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		released, txErr = svc.ReleaseOrderTx(ctx, tx, orderID)
		return txErr
	})
	if err != nil {
		t.Fatalf("release order: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("expected 2 released reservations, got %d", len(released))
	}
	if got := loadRecord(t, db, sellerID, a.ProductID); got.ReservedStock != 0 {
		t.Fatalf("expected reserved 0 for product a, got %d", got.ReservedStock)
	}
	if got := loadRecord(t, db, sellerID, b.ProductID); got.ReservedStock != 0 {
		t.Fatalf("expected reserved 0 for product b, got %d", got.ReservedStock)
	}
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	record := seedRecord(t, db, models.StockRecord{PhysicalStock: 10, ReservedStock: 4})

	availability, err := svc.Availability(context.Background(), record.SellerID, record.ProductID)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if availability.Physical != 10 || availability.Reserved != 4 || availability.Available != 6 {
		t.Fatalf("unexpected availability %+v", availability)
	}

	_, err = svc.Availability(context.Background(), uuid.New(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
