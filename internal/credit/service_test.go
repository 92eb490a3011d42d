package credit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/config"
	dbpkg "github.com/orderstack/fulfillment-core/pkg/db"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
)

func testLockConfig() config.CreditConfig {
	return config.CreditConfig{
		LockTTL:         time.Second,
		LockAttempts:    2,
		LockBackoffBase: time.Millisecond,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:credit_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.CreditAccount{}, &models.LedgerEntry{}); err != nil {
		t.Fatalf("migrate credit: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), dbpkg.FromConn(db), testLockConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedAccount(t *testing.T, db *gorm.DB, account models.CreditAccount) models.CreditAccount {
	t.Helper()
	if account.BuyerID == uuid.Nil {
		account.BuyerID = uuid.New()
	}
	if account.SellerID == uuid.Nil {
		account.SellerID = uuid.New()
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestReserveAppendsDebitAndDerivesBalance(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})
	ctx := context.Background()

	entry, err := svc.Reserve(ctx, ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 75000,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if entry.EntryType != enums.LedgerEntryTypeDebit {
		t.Fatalf("expected debit entry, got %s", entry.EntryType)
	}
	if entry.BalanceAfterCents != 75000 {
		t.Fatalf("expected balance_after 75000, got %d", entry.BalanceAfterCents)
	}
	if entry.DueDate == nil {
		t.Fatalf("expected due date on debit")
	}

	balance, err := svc.Balance(ctx, account.BuyerID, account.SellerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.UsedCents != 75000 || balance.AvailableCents != 25000 {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestReserveCompetingAmounts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 75000,
	}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := svc.Reserve(ctx, ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 40000,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}

	balance, err := svc.Balance(ctx, account.BuyerID, account.SellerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.UsedCents != 75000 {
		t.Fatalf("expected used 75000 after rejected attempt, got %d", balance.UsedCents)
	}

	var count int64
	if err := db.Model(&models.LedgerEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("rejected attempt must not write a ledger entry, got %d rows", count)
	}
}

func TestReserveRejectsBlockedAccount(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000, Blocked: true})

	_, err := svc.Reserve(context.Background(), ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 1000,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeAccountBlocked) {
		t.Fatalf("expected account blocked, got %v", err)
	}
}

func TestReserveRejectsOverMaxOrderValue(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{
		CreditLimitCents:   100000,
		MaxOrderValueCents: 20000,
	})

	_, err := svc.Reserve(context.Background(), ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 30000,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredit) {
		t.Fatalf("expected insufficient credit for over-max order, got %v", err)
	}
}

func TestReserveUnknownAccount(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		OrderID:     uuid.New(),
		AmountCents: 1000,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReserveLockTimeoutWhenLeaseHeld(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})

	holder := "competing-owner"
	future := time.Now().Add(time.Minute)
	if err := db.Model(&models.CreditAccount{}).
		Where("buyer_id = ? AND seller_id = ?", account.BuyerID, account.SellerID).
		Updates(map[string]any{"lock_owner": holder, "lock_expires_at": future}).Error; err != nil {
		t.Fatalf("seed lease: %v", err)
	}

	_, err := svc.Reserve(context.Background(), ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 1000,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

func TestReserveReclaimsExpiredLease(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})

	past := time.Now().Add(-time.Minute)
	stale := "stale-owner"
	if err := db.Model(&models.CreditAccount{}).
		Where("buyer_id = ? AND seller_id = ?", account.BuyerID, account.SellerID).
		Updates(map[string]any{"lock_owner": stale, "lock_expires_at": past}).Error; err != nil {
		t.Fatalf("seed stale lease: %v", err)
	}

	if _, err := svc.Reserve(context.Background(), ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 1000,
	}); err != nil {
		t.Fatalf("expected reserve to reclaim expired lease, got %v", err)
	}
}

func TestReleaseReversesDebitOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})
	ctx := context.Background()

	entry, err := svc.Reserve(ctx, ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 40000,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	reversal, err := svc.Release(ctx, entry.ID, "vendor rejected")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if reversal.EntryType != enums.LedgerEntryTypeReversal {
		t.Fatalf("expected reversal entry, got %s", reversal.EntryType)
	}
	if reversal.ReversedEntryID == nil || *reversal.ReversedEntryID != entry.ID {
		t.Fatalf("reversal must point at the original debit")
	}
	if reversal.BalanceAfterCents != 0 {
		t.Fatalf("expected balance_after 0, got %d", reversal.BalanceAfterCents)
	}

	if _, err := svc.Release(ctx, entry.ID, "retry"); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("second release should conflict, got %v", err)
	}

	balance, err := svc.Balance(ctx, account.BuyerID, account.SellerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.UsedCents != 0 {
		t.Fatalf("expected used 0 after reversal, got %d", balance.UsedCents)
	}
}

func TestReleaseRejectsNonDebit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})
	ctx := context.Background()

	payment, err := svc.RecordPayment(ctx, PaymentInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	if _, err := svc.Release(ctx, payment.ID, "oops"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error releasing a credit entry, got %v", err)
	}
}

func TestRecordPaymentLowersUsedCredit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     uuid.New(),
		AmountCents: 60000,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	payment, err := svc.RecordPayment(ctx, PaymentInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		AmountCents: 25000,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if payment.EntryType != enums.LedgerEntryTypeCredit {
		t.Fatalf("expected credit entry, got %s", payment.EntryType)
	}
	if payment.BalanceAfterCents != 35000 {
		t.Fatalf("expected balance_after 35000, got %d", payment.BalanceAfterCents)
	}

	balance, err := svc.Balance(ctx, account.BuyerID, account.SellerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.UsedCents != 35000 || balance.AvailableCents != 65000 {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestReleaseOrderDebitsReversesAll(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	account := seedAccount(t, db, models.CreditAccount{CreditLimitCents: 100000})
	ctx := context.Background()
	orderID := uuid.New()

	if _, err := svc.Reserve(ctx, ReserveInput{
		BuyerID:     account.BuyerID,
		SellerID:    account.SellerID,
		OrderID:     orderID,
		AmountCents: 30000,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var reversals []models.LedgerEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		reversals, txErr = svc.ReleaseOrderDebitsTx(ctx, tx, orderID, "order cancelled")
		return txErr
	})
	if err != nil {
		t.Fatalf("release order debits: %v", err)
	}
	if len(reversals) != 1 {
		t.Fatalf("expected 1 reversal, got %d", len(reversals))
	}

	balance, err := svc.Balance(ctx, account.BuyerID, account.SellerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.UsedCents != 0 {
		t.Fatalf("expected used 0, got %d", balance.UsedCents)
	}

	// Re-running finds nothing outstanding.
	err = db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		reversals, txErr = svc.ReleaseOrderDebitsTx(ctx, tx, orderID, "retry")
		return txErr
	})
	if err != nil {
		t.Fatalf("second release order debits: %v", err)
	}
	if len(reversals) != 0 {
		t.Fatalf("expected no further reversals, got %d", len(reversals))
	}
}

func TestReserveValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	tests := []struct {
		name  string
		input ReserveInput
	}{
		{name: "missing buyer", input: ReserveInput{SellerID: uuid.New(), OrderID: uuid.New(), AmountCents: 1}},
		{name: "missing seller", input: ReserveInput{BuyerID: uuid.New(), OrderID: uuid.New(), AmountCents: 1}},
		{name: "missing order", input: ReserveInput{BuyerID: uuid.New(), SellerID: uuid.New(), AmountCents: 1}},
		{name: "zero amount", input: ReserveInput{BuyerID: uuid.New(), SellerID: uuid.New(), OrderID: uuid.New()}},
		{name: "negative amount", input: ReserveInput{BuyerID: uuid.New(), SellerID: uuid.New(), OrderID: uuid.New(), AmountCents: -5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Reserve(context.Background(), tc.input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
