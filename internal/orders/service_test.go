package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/internal/credit"
	"github.com/orderstack/fulfillment-core/internal/inventory"
	"github.com/orderstack/fulfillment-core/internal/routing"
	"github.com/orderstack/fulfillment-core/pkg/config"
	dbpkg "github.com/orderstack/fulfillment-core/pkg/db"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/outbox"
)

type testEnv struct {
	db      *gorm.DB
	svc     Service
	routing routing.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Buyer{}, &models.Seller{},
		&models.CreditAccount{}, &models.LedgerEntry{},
		&models.StockRecord{}, &models.StockReservation{},
		&models.Order{}, &models.OrderItem{}, &models.OrderEvent{},
		&models.VendorRouting{}, &models.VendorResponse{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runner := dbpkg.FromConn(db)
	ob := outbox.NewService(outbox.NewRepository(db), nil)

	creditSvc, err := credit.NewService(credit.NewRepository(db), runner, config.CreditConfig{
		LockTTL:         time.Second,
		LockAttempts:    2,
		LockBackoffBase: time.Millisecond,
	}, ob, nil, nil)
	if err != nil {
		t.Fatalf("credit service: %v", err)
	}
	invSvc, err := inventory.NewService(inventory.NewRepository(db), ob, nil)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	routingSvc, err := routing.NewService(routing.NewRepository(db), runner, config.RoutingConfig{
		AcceptanceWindow:  15 * time.Minute,
		MaxCandidates:     10,
		DistanceWeight:    0.4,
		PriceWeight:       0.35,
		ReliabilityWeight: 0.25,
	}, ob, nil, nil)
	if err != nil {
		t.Fatalf("routing service: %v", err)
	}
	svc, err := NewService(NewRepository(db), runner, creditSvc, invSvc, routingSvc, ob, nil)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	return &testEnv{db: db, svc: svc, routing: routingSvc}
}

func (e *testEnv) seedBuyer(t *testing.T) models.Buyer {
	t.Helper()
	buyer := models.Buyer{Name: "Retail Co", Latitude: 40.71, Longitude: -74.0}
	if err := e.db.Create(&buyer).Error; err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	return buyer
}

func (e *testEnv) seedSeller(t *testing.T, reliability float64) models.Seller {
	t.Helper()
	seller := models.Seller{
		Name:        "Wholesale Co",
		Latitude:    40.73,
		Longitude:   -73.99,
		Reliability: reliability,
		Active:      true,
	}
	if err := e.db.Create(&seller).Error; err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	return seller
}

func (e *testEnv) seedStock(t *testing.T, sellerID, productID uuid.UUID, physical int, priceCents int64) {
	t.Helper()
	record := models.StockRecord{
		SellerID:       sellerID,
		ProductID:      productID,
		PhysicalStock:  physical,
		UnitPriceCents: priceCents,
	}
	if err := e.db.Create(&record).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func (e *testEnv) seedCredit(t *testing.T, buyerID, sellerID uuid.UUID, limitCents int64) {
	t.Helper()
	account := models.CreditAccount{
		BuyerID:          buyerID,
		SellerID:         sellerID,
		CreditLimitCents: limitCents,
	}
	if err := e.db.Create(&account).Error; err != nil {
		t.Fatalf("seed credit account: %v", err)
	}
}

func (e *testEnv) stockRecord(t *testing.T, sellerID, productID uuid.UUID) models.StockRecord {
	t.Helper()
	var record models.StockRecord
	err := e.db.Where("seller_id = ? AND product_id = ?", sellerID, productID).First(&record).Error
	if err != nil {
		t.Fatalf("load stock record: %v", err)
	}
	return record
}

func (e *testEnv) transition(t *testing.T, orderID uuid.UUID, target enums.OrderStatus) *models.Order {
	t.Helper()
	order, err := e.svc.Transition(context.Background(), TransitionInput{
		OrderID:     orderID,
		Target:      target,
		PerformedBy: "test",
	})
	if err != nil {
		t.Fatalf("transition to %s: %v", target, err)
	}
	return order
}

func TestSubmitCreatesOrder(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.seedBuyer(t)
	ctx := context.Background()

	order, err := env.svc.Submit(ctx, SubmitInput{
		BuyerID: buyer.ID,
		Items: []SubmitItem{
			{ProductID: uuid.New(), Quantity: 3, UnitPriceCents: 1500},
			{ProductID: uuid.New(), Quantity: 2, UnitPriceCents: 2000},
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.Status != enums.OrderStatusCreated {
		t.Fatalf("status = %s, want created", order.Status)
	}
	if order.TotalAmountCents != 8500 {
		t.Fatalf("total = %d, want 8500", order.TotalAmountCents)
	}

	loaded, err := env.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(loaded.Items))
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input SubmitInput
	}{
		{"missing buyer", SubmitInput{Items: []SubmitItem{{ProductID: uuid.New(), Quantity: 1, UnitPriceCents: 100}}}},
		{"no items", SubmitInput{BuyerID: uuid.New()}},
		{"zero quantity", SubmitInput{BuyerID: uuid.New(), Items: []SubmitItem{{ProductID: uuid.New(), UnitPriceCents: 100}}}},
		{"zero price", SubmitInput{BuyerID: uuid.New(), Items: []SubmitItem{{ProductID: uuid.New(), Quantity: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Submit(ctx, tc.input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

// Walks the full happy path and checks each engine's side effects land with
// the transition that triggers them.
func TestHappyPathToFulfilled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.seedBuyer(t)
	seller := env.seedSeller(t, 0.9)
	productID := uuid.New()
	env.seedStock(t, seller.ID, productID, 10, 1500)
	env.seedCredit(t, buyer.ID, seller.ID, 100000)

	order, err := env.svc.Submit(ctx, SubmitInput{
		BuyerID: buyer.ID,
		Items:   []SubmitItem{{ProductID: productID, Quantity: 4, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	order = env.transition(t, order.ID, enums.OrderStatusValidated)
	if order.SellerID == nil || *order.SellerID != seller.ID {
		t.Fatalf("seller not assigned on validation")
	}

	order = env.transition(t, order.ID, enums.OrderStatusCreditReserved)
	var debits int64
	env.db.Model(&models.LedgerEntry{}).
		Where("order_id = ? AND entry_type = ?", order.ID, enums.LedgerEntryTypeDebit).
		Count(&debits)
	if debits != 1 {
		t.Fatalf("debit entries = %d, want 1", debits)
	}

	env.transition(t, order.ID, enums.OrderStatusVendorNotified)
	env.transition(t, order.ID, enums.OrderStatusVendorAccepted)
	record := env.stockRecord(t, seller.ID, productID)
	if record.ReservedStock != 4 {
		t.Fatalf("reserved = %d, want 4", record.ReservedStock)
	}

	order = env.transition(t, order.ID, enums.OrderStatusFulfilled)
	if order.Status != enums.OrderStatusFulfilled {
		t.Fatalf("status = %s, want fulfilled", order.Status)
	}
	record = env.stockRecord(t, seller.ID, productID)
	if record.PhysicalStock != 6 || record.ReservedStock != 0 {
		t.Fatalf("stock after fulfillment = %d/%d, want 6/0", record.PhysicalStock, record.ReservedStock)
	}

	history, err := env.svc.History(ctx, order.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []enums.OrderStatus{
		enums.OrderStatusValidated,
		enums.OrderStatusCreditReserved,
		enums.OrderStatusVendorNotified,
		enums.OrderStatusVendorAccepted,
		enums.OrderStatusFulfilled,
	}
	if len(history) != len(want) {
		t.Fatalf("history length = %d, want %d", len(history), len(want))
	}
	for i, event := range history {
		if event.ToState != want[i] {
			t.Fatalf("history[%d] = %s, want %s", i, event.ToState, want[i])
		}
	}
}

func TestFulfillRequiresCreditReservationHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.seedBuyer(t)
	seller := env.seedSeller(t, 0.9)

	// An order sitting in VENDOR_ACCEPTED whose event log never recorded a
	// credit reservation must not fulfill, whatever its current state claims.
	sellerID := seller.ID
	order := models.Order{
		BuyerID:          buyer.ID,
		SellerID:         &sellerID,
		Status:           enums.OrderStatusVendorAccepted,
		TotalAmountCents: 5000,
	}
	if err := env.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err := env.svc.Transition(ctx, TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusFulfilled,
		PerformedBy: "test",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeCreditNotReserved) {
		t.Fatalf("err = %v, want credit not reserved", err)
	}

	reloaded, err := env.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != enums.OrderStatusVendorAccepted {
		t.Fatalf("status = %s, want vendor_accepted (rolled back)", reloaded.Status)
	}
}

func TestCreditFailureLeavesOrderUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.seedBuyer(t)
	seller := env.seedSeller(t, 0.9)
	productID := uuid.New()
	env.seedStock(t, seller.ID, productID, 10, 1500)
	env.seedCredit(t, buyer.ID, seller.ID, 1000) // far below the order total

	order, err := env.svc.Submit(ctx, SubmitInput{
		BuyerID: buyer.ID,
		Items:   []SubmitItem{{ProductID: productID, Quantity: 4, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.transition(t, order.ID, enums.OrderStatusValidated)

	_, err = env.svc.Transition(ctx, TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusCreditReserved,
		PerformedBy: "test",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredit) {
		t.Fatalf("err = %v, want insufficient credit", err)
	}

	reloaded, err := env.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != enums.OrderStatusValidated {
		t.Fatalf("status = %s, want validated", reloaded.Status)
	}
	var entries int64
	env.db.Model(&models.LedgerEntry{}).Where("order_id = ?", order.ID).Count(&entries)
	if entries != 0 {
		t.Fatalf("ledger entries = %d, want 0", entries)
	}
	var events int64
	env.db.Model(&models.OrderEvent{}).
		Where("order_id = ? AND to_state = ?", order.ID, enums.OrderStatusCreditReserved).
		Count(&events)
	if events != 0 {
		t.Fatalf("credit_reserved events = %d, want 0", events)
	}
}

func TestCancellationReleasesReservationAndCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.seedBuyer(t)
	seller := env.seedSeller(t, 0.9)
	productID := uuid.New()
	env.seedStock(t, seller.ID, productID, 10, 1500)
	env.seedCredit(t, buyer.ID, seller.ID, 100000)

	order, err := env.svc.Submit(ctx, SubmitInput{
		BuyerID: buyer.ID,
		Items:   []SubmitItem{{ProductID: productID, Quantity: 3, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.transition(t, order.ID, enums.OrderStatusValidated)
	env.transition(t, order.ID, enums.OrderStatusCreditReserved)
	env.transition(t, order.ID, enums.OrderStatusVendorNotified)
	env.transition(t, order.ID, enums.OrderStatusVendorAccepted)

	record := env.stockRecord(t, seller.ID, productID)
	if record.ReservedStock != 3 {
		t.Fatalf("reserved before cancel = %d, want 3", record.ReservedStock)
	}

	order = env.transition(t, order.ID, enums.OrderStatusCancelled)
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", order.Status)
	}

	record = env.stockRecord(t, seller.ID, productID)
	if record.ReservedStock != 0 || record.PhysicalStock != 10 {
		t.Fatalf("stock after cancel = %d/%d, want 10/0", record.PhysicalStock, record.ReservedStock)
	}
	var reservation models.StockReservation
	if err := env.db.Where("order_id = ?", order.ID).First(&reservation).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if reservation.Status != enums.ReservationStatusReleased {
		t.Fatalf("reservation status = %s, want released", reservation.Status)
	}
	var reversals int64
	env.db.Model(&models.LedgerEntry{}).
		Where("order_id = ? AND entry_type = ?", order.ID, enums.LedgerEntryTypeReversal).
		Count(&reversals)
	if reversals != 1 {
		t.Fatalf("reversals = %d, want 1", reversals)
	}

	// Terminal: nothing further is allowed.
	_, err = env.svc.Transition(ctx, TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusValidated,
		PerformedBy: "test",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestIllegalEdgeRejected(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.seedBuyer(t)

	order, err := env.svc.Submit(context.Background(), SubmitInput{
		BuyerID: buyer.ID,
		Items:   []SubmitItem{{ProductID: uuid.New(), Quantity: 1, UnitPriceCents: 500}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = env.svc.Transition(context.Background(), TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusFulfilled,
		PerformedBy: "test",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestTransitionUnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Transition(context.Background(), TransitionInput{
		OrderID:     uuid.New(),
		Target:      enums.OrderStatusValidated,
		PerformedBy: "test",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

// When the broadcast race winner differs from the seller the credit was
// reserved against, acceptance repoints the debit inside one transaction.
func TestVendorAcceptedRepointsCreditToRaceWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.seedBuyer(t)
	sellerA := env.seedSeller(t, 0.95)
	sellerB := env.seedSeller(t, 0.4)
	productID := uuid.New()
	env.seedStock(t, sellerA.ID, productID, 10, 1500)
	env.seedStock(t, sellerB.ID, productID, 10, 1500)
	env.seedCredit(t, buyer.ID, sellerA.ID, 100000)
	env.seedCredit(t, buyer.ID, sellerB.ID, 100000)

	order, err := env.svc.Submit(ctx, SubmitInput{
		BuyerID: buyer.ID,
		Items:   []SubmitItem{{ProductID: productID, Quantity: 2, UnitPriceCents: 1500}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	order = env.transition(t, order.ID, enums.OrderStatusValidated)
	if order.SellerID == nil || *order.SellerID != sellerA.ID {
		t.Fatalf("expected the more reliable seller to be pre-assigned")
	}
	env.transition(t, order.ID, enums.OrderStatusCreditReserved)

	// Broadcast, then the lower-ranked seller claims first.
	rt, err := env.routing.RouteToSellers(ctx, order.ID, buyer.ID,
		[]uuid.UUID{sellerA.ID, sellerB.ID})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	env.transition(t, order.ID, enums.OrderStatusVendorNotified)
	result, err := env.routing.AcceptWinner(ctx, rt.ID, sellerB.ID)
	if err != nil {
		t.Fatalf("accept winner: %v", err)
	}
	if !result.Won {
		t.Fatalf("expected seller B to win the claim")
	}

	order = env.transition(t, order.ID, enums.OrderStatusVendorAccepted)
	if order.SellerID == nil || *order.SellerID != sellerB.ID {
		t.Fatalf("order seller = %v, want race winner", order.SellerID)
	}

	var usedA, usedB int64
	env.db.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN entry_type = 'debit' THEN amount_cents ELSE -amount_cents END), 0)").
		Where("buyer_id = ? AND seller_id = ?", buyer.ID, sellerA.ID).
		Scan(&usedA)
	env.db.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN entry_type = 'debit' THEN amount_cents ELSE -amount_cents END), 0)").
		Where("buyer_id = ? AND seller_id = ?", buyer.ID, sellerB.ID).
		Scan(&usedB)
	if usedA != 0 {
		t.Fatalf("seller A exposure = %d, want 0 after repoint", usedA)
	}
	if usedB != 3000 {
		t.Fatalf("seller B exposure = %d, want 3000", usedB)
	}

	record := env.stockRecord(t, sellerB.ID, productID)
	if record.ReservedStock != 2 {
		t.Fatalf("winner reserved stock = %d, want 2", record.ReservedStock)
	}
}
