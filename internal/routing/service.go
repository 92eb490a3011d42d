package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/config"
	dbpkg "github.com/orderstack/fulfillment-core/pkg/db"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
	dbtypes "github.com/orderstack/fulfillment-core/pkg/db/types"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/logger"
	"github.com/orderstack/fulfillment-core/pkg/metrics"
	"github.com/orderstack/fulfillment-core/pkg/outbox"
	"github.com/orderstack/fulfillment-core/pkg/outbox/payloads"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Item is one product line used for candidate matching and price scoring.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// AcceptResult is the typed outcome of one acceptWinner attempt. Losing the
// race is an expected outcome, not an error.
type AcceptResult struct {
	Won             bool `json:"won"`
	AlreadyAccepted bool `json:"already_accepted"`
}

// Service defines the vendor assignment operations: deterministic scored
// selection and the broadcast-and-race protocol.
type Service interface {
	SelectBestSeller(ctx context.Context, buyerID uuid.UUID, items []Item) (uuid.UUID, error)
	Candidates(ctx context.Context, buyerID uuid.UUID, items []Item, limit int) ([]uuid.UUID, error)
	RouteToSellers(ctx context.Context, orderID, buyerID uuid.UUID, candidateIDs []uuid.UUID) (*models.VendorRouting, error)
	RecordResponse(ctx context.Context, routingID, sellerID uuid.UUID, response enums.VendorResponseKind) (*models.VendorResponse, error)
	AcceptWinner(ctx context.Context, routingID, sellerID uuid.UUID) (AcceptResult, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorRouting, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) ([]models.VendorRouting, error)
}

type service struct {
	repo    Repository
	tx      TxRunner
	cfg     config.RoutingConfig
	outbox  *outbox.Service
	metrics *metrics.AdmissionMetrics
	logg    *logger.Logger
}

// NewService wires the vendor assignment service.
func NewService(repo Repository, tx TxRunner, cfg config.RoutingConfig, ob *outbox.Service, m *metrics.AdmissionMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("routing repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cfg.AcceptanceWindow <= 0 {
		cfg.AcceptanceWindow = 15 * time.Minute
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	return &service{repo: repo, tx: tx, cfg: cfg, outbox: ob, metrics: m, logg: logg}, nil
}

// SelectBestSeller scores every active seller able to fulfill all items and
// returns the best. Reads a catalog snapshot, writes nothing shared.
func (s *service) SelectBestSeller(ctx context.Context, buyerID uuid.UUID, items []Item) (uuid.UUID, error) {
	ranked, err := s.rankedCandidates(ctx, buyerID, items)
	if err != nil {
		return uuid.Nil, err
	}
	if len(ranked) == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "no seller can fulfill all items")
	}
	return ranked[0].seller.ID, nil
}

// Candidates returns up to limit seller ids ranked best-first, for building a
// broadcast set.
func (s *service) Candidates(ctx context.Context, buyerID uuid.UUID, items []Item, limit int) ([]uuid.UUID, error) {
	ranked, err := s.rankedCandidates(ctx, buyerID, items)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.MaxCandidates {
		limit = s.cfg.MaxCandidates
	}
	ids := make([]uuid.UUID, 0, limit)
	for _, c := range ranked {
		if len(ids) == limit {
			break
		}
		ids = append(ids, c.seller.ID)
	}
	return ids, nil
}

func (s *service) rankedCandidates(ctx context.Context, buyerID uuid.UUID, items []Item) ([]candidate, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	qtyByProduct := make(map[uuid.UUID]int, len(items))
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "items need a product id and positive quantity")
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Quantity
	}

	buyer, err := s.repo.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading buyer")
	}
	if buyer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
	}
	sellers, err := s.repo.ListActiveSellers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing sellers")
	}
	records, err := s.repo.ListStockForProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stock")
	}

	stockBySeller := make(map[uuid.UUID]map[uuid.UUID]models.StockRecord)
	for _, record := range records {
		m, ok := stockBySeller[record.SellerID]
		if !ok {
			m = make(map[uuid.UUID]models.StockRecord)
			stockBySeller[record.SellerID] = m
		}
		m[record.ProductID] = record
	}

	candidates := make([]candidate, 0, len(sellers))
	for _, seller := range sellers {
		stock, ok := stockBySeller[seller.ID]
		if !ok {
			continue
		}
		var priceCents int64
		covers := true
		for productID, qty := range qtyByProduct {
			record, ok := stock[productID]
			if !ok || record.Available() < qty {
				covers = false
				break
			}
			priceCents += record.UnitPriceCents * int64(qty)
		}
		if !covers {
			continue
		}
		candidates = append(candidates, candidate{seller: seller, priceCents: priceCents})
	}

	return rankCandidates(s.cfg, *buyer, candidates), nil
}

// RouteToSellers opens the broadcast: one routing per order with a bounded
// acceptance window. The broadcast notification is an outbox event so it
// commits atomically with the routing row.
func (s *service) RouteToSellers(ctx context.Context, orderID, buyerID uuid.UUID, candidateIDs []uuid.UUID) (*models.VendorRouting, error) {
	if orderID == uuid.Nil || buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and buyer id are required")
	}
	if len(candidateIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one candidate seller is required")
	}
	if len(candidateIDs) > s.cfg.MaxCandidates {
		candidateIDs = candidateIDs[:s.cfg.MaxCandidates]
	}
	seen := make(map[uuid.UUID]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "candidate seller id is required")
		}
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate candidate seller id")
		}
		seen[id] = struct{}{}
	}

	routing := &models.VendorRouting{
		OrderID:            orderID,
		BuyerID:            buyerID,
		CandidateSellerIDs: dbtypes.UUIDArray(candidateIDs),
		Status:             enums.RoutingStatusPendingResponses,
		ExpiresAt:          time.Now().Add(s.cfg.AcceptanceWindow),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateRouting(ctx, routing); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_vendor_routings_order") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already routed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating vendor routing")
		}
		if s.outbox != nil {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventVendorBroadcast,
				AggregateType: enums.AggregateRouting,
				AggregateID:   routing.ID,
				Data: payloads.VendorBroadcastEvent{
					RoutingID:          routing.ID,
					OrderID:            orderID,
					BuyerID:            buyerID,
					CandidateSellerIDs: candidateIDs,
					ExpiresAt:          routing.ExpiresAt,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return routing, nil
}

func (s *service) RecordResponse(ctx context.Context, routingID, sellerID uuid.UUID, response enums.VendorResponseKind) (*models.VendorResponse, error) {
	if routingID == uuid.Nil || sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "routing id and seller id are required")
	}
	if !response.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid response %q", response))
	}
	routing, err := s.repo.GetRouting(ctx, routingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor routing")
	}
	if routing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor routing not found")
	}
	if !routing.CandidateSellerIDs.Contains(sellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller is not a candidate on this routing")
	}

	row := &models.VendorResponse{
		RoutingID: routingID,
		SellerID:  sellerID,
		Response:  response,
	}
	if err := s.repo.CreateResponse(ctx, row); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_vendor_responses_routing_seller") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "seller already responded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording vendor response")
	}
	return row, nil
}

// AcceptWinner resolves the race with one conditional update. Exactly one
// caller can flip PENDING_RESPONSES to VENDOR_ACCEPTED; everyone else reads
// the settled row to learn whether they are the recorded winner retrying or
// a loser.
func (s *service) AcceptWinner(ctx context.Context, routingID, sellerID uuid.UUID) (AcceptResult, error) {
	if routingID == uuid.Nil || sellerID == uuid.Nil {
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeValidation, "routing id and seller id are required")
	}
	routing, err := s.repo.GetRouting(ctx, routingID)
	if err != nil {
		return AcceptResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor routing")
	}
	if routing == nil {
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "vendor routing not found")
	}
	if !routing.CandidateSellerIDs.Contains(sellerID) {
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeValidation, "seller is not a candidate on this routing")
	}

	now := time.Now()
	var result AcceptResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claimed, err := repo.ClaimWinner(ctx, routingID, sellerID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming routing winner")
		}
		if !claimed {
			return nil
		}
		result = AcceptResult{Won: true}

		response := &models.VendorResponse{
			RoutingID: routingID,
			SellerID:  sellerID,
			Response:  enums.VendorResponseAccepted,
		}
		if err := repo.CreateResponse(ctx, response); err != nil &&
			!dbpkg.IsUniqueViolation(err, "ux_vendor_responses_routing_seller") {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording winning response")
		}
		return s.emitClaimEvents(ctx, tx, routing, sellerID, now)
	})
	if err != nil {
		return AcceptResult{}, err
	}
	if result.Won {
		s.observeRace("won")
		return result, nil
	}

	// Lost the conditional update; read the settled row.
	settled, err := s.repo.GetRouting(ctx, routingID)
	if err != nil {
		return AcceptResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading vendor routing")
	}
	if settled == nil {
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "vendor routing not found")
	}
	switch settled.Status {
	case enums.RoutingStatusVendorAccepted:
		if settled.WinnerID != nil && *settled.WinnerID == sellerID {
			s.observeRace("retry")
			return AcceptResult{Won: true, AlreadyAccepted: true}, nil
		}
		s.observeRace("lost")
		return AcceptResult{Won: false}, nil
	case enums.RoutingStatusExpired:
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeConflict, "routing expired before acceptance")
	default:
		return AcceptResult{}, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("claim failed while routing is %s", settled.Status))
	}
}

// emitClaimEvents queues the winner confirmation and the best-effort loser
// cancellations. Correctness never depends on these signals; the atomic
// claim already decided the race.
func (s *service) emitClaimEvents(ctx context.Context, tx *gorm.DB, routing *models.VendorRouting, winnerID uuid.UUID, at time.Time) error {
	if s.outbox == nil {
		return nil
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventVendorWinnerConfirmed,
		AggregateType: enums.AggregateRouting,
		AggregateID:   routing.ID,
		Data: payloads.VendorWinnerConfirmedEvent{
			RoutingID:  routing.ID,
			OrderID:    routing.OrderID,
			WinnerID:   winnerID,
			AcceptedAt: at,
		},
	})
	if err != nil {
		return err
	}
	for _, candidateID := range routing.CandidateSellerIDs {
		if candidateID == winnerID {
			continue
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorRoutingCancelled,
			AggregateType: enums.AggregateRouting,
			AggregateID:   routing.ID,
			Data: payloads.VendorRoutingCancelledEvent{
				RoutingID: routing.ID,
				OrderID:   routing.OrderID,
				SellerID:  candidateID,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorRouting, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	routing, err := s.repo.GetRoutingByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor routing")
	}
	if routing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor routing not found")
	}
	return routing, nil
}

// ExpireStale sweeps routings whose acceptance window passed. Each row moves
// with a CAS, so a concurrent acceptance beats the sweep. Returns the
// routings that actually expired for the caller to cancel their orders.
func (s *service) ExpireStale(ctx context.Context, now time.Time, limit int) ([]models.VendorRouting, error) {
	stale, err := s.repo.ListStalePending(ctx, now, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stale routings")
	}
	expired := make([]models.VendorRouting, 0, len(stale))
	for _, routing := range stale {
		routing := routing
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.MarkExpired(ctx, routing.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expiring routing")
			}
			if !ok {
				return nil
			}
			routing.Status = enums.RoutingStatusExpired
			expired = append(expired, routing)
			if s.outbox != nil {
				return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventVendorRoutingExpired,
					AggregateType: enums.AggregateRouting,
					AggregateID:   routing.ID,
					Data: payloads.VendorRoutingExpiredEvent{
						RoutingID: routing.ID,
						OrderID:   routing.OrderID,
						ExpiredAt: now,
					},
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return expired, nil
}

func (s *service) observeRace(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRace(outcome)
	}
}
