package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderstack/fulfillment-core/pkg/config"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
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

// Engine is the transaction-scoped surface used by the order state machine so
// that credit side effects commit or roll back with the transition that
// caused them.
type Engine interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, input ReserveInput) (*models.LedgerEntry, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, reason string) (*models.LedgerEntry, error)
	ReleaseOrderDebitsTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.LedgerEntry, error)
}

// Service defines the credit admission operations.
type Service interface {
	Engine
	Reserve(ctx context.Context, input ReserveInput) (*models.LedgerEntry, error)
	Release(ctx context.Context, entryID uuid.UUID, reason string) (*models.LedgerEntry, error)
	RecordPayment(ctx context.Context, input PaymentInput) (*models.LedgerEntry, error)
	Balance(ctx context.Context, buyerID, sellerID uuid.UUID) (*Balance, error)
}

// ReserveInput captures one admission attempt against a credit line.
type ReserveInput struct {
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	OrderID     uuid.UUID
	AmountCents int64
	Actor       enums.LedgerActor
}

// PaymentInput records an incoming payment against a credit line.
type PaymentInput struct {
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	AmountCents int64
	Actor       enums.LedgerActor
}

// Balance is the derived position of one credit line.
type Balance struct {
	BuyerID          uuid.UUID `json:"buyer_id"`
	SellerID         uuid.UUID `json:"seller_id"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	UsedCents        int64     `json:"used_cents"`
	AvailableCents   int64     `json:"available_cents"`
	Blocked          bool      `json:"blocked"`
}

type service struct {
	repo    Repository
	tx      TxRunner
	cfg     config.CreditConfig
	outbox  *outbox.Service
	metrics *metrics.AdmissionMetrics
	logg    *logger.Logger
}

// NewService wires the credit admission service.
func NewService(repo Repository, tx TxRunner, cfg config.CreditConfig, ob *outbox.Service, m *metrics.AdmissionMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credit repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cfg.LockAttempts <= 0 {
		cfg.LockAttempts = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	if cfg.LockBackoffBase <= 0 {
		cfg.LockBackoffBase = 50 * time.Millisecond
	}
	return &service{repo: repo, tx: tx, cfg: cfg, outbox: ob, metrics: m, logg: logg}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.ReserveTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ReserveTx leases the account row, derives the outstanding balance from the
// ledger while holding the lease, and appends the DEBIT entry inside the
// caller's transaction. The lease (not the transaction) is what stops two
// concurrent reservations from reading the same stale balance.
func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, input ReserveInput) (*models.LedgerEntry, error) {
	if err := validateReserveInput(input); err != nil {
		return nil, err
	}
	actor := input.Actor
	if actor == "" {
		actor = enums.LedgerActorSystem
	}

	repo := s.repo.WithTx(tx)
	account, err := repo.GetAccount(ctx, input.BuyerID, input.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading credit account")
	}
	if account == nil {
		s.observeCredit("account_not_found")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
	}

	owner := uuid.NewString()
	if err := s.acquireLease(ctx, repo, input.BuyerID, input.SellerID, owner); err != nil {
		s.observeCredit("lock_timeout")
		return nil, err
	}
	defer s.releaseLease(ctx, repo, input.BuyerID, input.SellerID, owner)

	if account.Blocked {
		s.observeCredit("account_blocked")
		return nil, pkgerrors.New(pkgerrors.CodeAccountBlocked, "credit account is blocked")
	}
	if account.MaxOrderValueCents > 0 && input.AmountCents > account.MaxOrderValueCents {
		s.observeCredit("over_max_order_value")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredit,
			fmt.Sprintf("amount %d exceeds max order value %d", input.AmountCents, account.MaxOrderValueCents))
	}

	used, err := repo.UsedCredit(ctx, input.BuyerID, input.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving used credit")
	}
	available := account.CreditLimitCents - used
	if input.AmountCents > available {
		s.observeCredit("insufficient_credit")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredit,
			fmt.Sprintf("amount %d exceeds available credit %d", input.AmountCents, available))
	}

	orderID := input.OrderID
	dueDate := time.Now().Add(time.Duration(account.MaxOutstandingDays) * 24 * time.Hour)
	entry := &models.LedgerEntry{
		BuyerID:           input.BuyerID,
		SellerID:          input.SellerID,
		OrderID:           &orderID,
		EntryType:         enums.LedgerEntryTypeDebit,
		AmountCents:       input.AmountCents,
		BalanceAfterCents: used + input.AmountCents,
		DueDate:           &dueDate,
		CreatedBy:         actor,
	}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending debit entry")
	}

	if s.outbox != nil {
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditReserved,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Data: payloads.CreditReservedEvent{
				EntryID:     entry.ID,
				OrderID:     input.OrderID,
				BuyerID:     input.BuyerID,
				SellerID:    input.SellerID,
				AmountCents: input.AmountCents,
				DueDate:     dueDate,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	s.observeCredit("granted")
	return entry, nil
}

func (s *service) Release(ctx context.Context, entryID uuid.UUID, reason string) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.ReleaseTx(ctx, tx, entryID, reason)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ReleaseTx appends a REVERSAL for a previously written debit. Reversals take
// the same account lease as forward reservations because they also read the
// derived balance before writing.
func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, reason string) (*models.LedgerEntry, error) {
	if entryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger entry id is required")
	}

	repo := s.repo.WithTx(tx)
	original, err := repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ledger entry")
	}
	if original == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
	}
	if original.EntryType != enums.LedgerEntryTypeDebit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only debit entries can be released")
	}
	existing, err := repo.FindReversal(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking for prior reversal")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ledger entry already reversed")
	}

	owner := uuid.NewString()
	if err := s.acquireLease(ctx, repo, original.BuyerID, original.SellerID, owner); err != nil {
		return nil, err
	}
	defer s.releaseLease(ctx, repo, original.BuyerID, original.SellerID, owner)

	used, err := repo.UsedCredit(ctx, original.BuyerID, original.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving used credit")
	}

	reversedID := original.ID
	reversal := &models.LedgerEntry{
		BuyerID:           original.BuyerID,
		SellerID:          original.SellerID,
		OrderID:           original.OrderID,
		EntryType:         enums.LedgerEntryTypeReversal,
		AmountCents:       original.AmountCents,
		BalanceAfterCents: used - original.AmountCents,
		ReversedEntryID:   &reversedID,
		CreatedBy:         enums.LedgerActorSystem,
	}
	if reason != "" {
		reversal.Reason = &reason
	}
	if err := repo.AppendEntry(ctx, reversal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending reversal entry")
	}

	if s.outbox != nil {
		var orderID uuid.UUID
		if original.OrderID != nil {
			orderID = *original.OrderID
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditReleased,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   reversal.ID,
			Data: payloads.CreditReleasedEvent{
				EntryID:         reversal.ID,
				ReversedEntryID: original.ID,
				OrderID:         orderID,
				BuyerID:         original.BuyerID,
				SellerID:        original.SellerID,
				AmountCents:     original.AmountCents,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return reversal, nil
}

// ReleaseOrderDebitsTx reverses every unreversed debit the order holds. Used
// by cancellation and failure transitions so no credit is left dangling.
func (s *service) ReleaseOrderDebitsTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.LedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	repo := s.repo.WithTx(tx)
	debits, err := repo.OutstandingDebits(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing outstanding debits")
	}
	reversals := make([]models.LedgerEntry, 0, len(debits))
	for _, debit := range debits {
		reversal, err := s.ReleaseTx(ctx, tx, debit.ID, reason)
		if err != nil {
			return nil, err
		}
		reversals = append(reversals, *reversal)
	}
	return reversals, nil
}

func (s *service) RecordPayment(ctx context.Context, input PaymentInput) (*models.LedgerEntry, error) {
	if input.BuyerID == uuid.Nil || input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id and seller id are required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	actor := input.Actor
	if actor == "" {
		actor = enums.LedgerActorAdmin
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.GetAccount(ctx, input.BuyerID, input.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading credit account")
		}
		if account == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
		}

		owner := uuid.NewString()
		if err := s.acquireLease(ctx, repo, input.BuyerID, input.SellerID, owner); err != nil {
			return err
		}
		defer s.releaseLease(ctx, repo, input.BuyerID, input.SellerID, owner)

		used, err := repo.UsedCredit(ctx, input.BuyerID, input.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving used credit")
		}
		entry = &models.LedgerEntry{
			BuyerID:           input.BuyerID,
			SellerID:          input.SellerID,
			EntryType:         enums.LedgerEntryTypeCredit,
			AmountCents:       input.AmountCents,
			BalanceAfterCents: used - input.AmountCents,
			CreatedBy:         actor,
		}
		if err := repo.AppendEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending credit entry")
		}

		if s.outbox != nil {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentRecorded,
				AggregateType: enums.AggregateLedgerEntry,
				AggregateID:   entry.ID,
				Data: payloads.PaymentRecordedEvent{
					EntryID:     entry.ID,
					BuyerID:     input.BuyerID,
					SellerID:    input.SellerID,
					AmountCents: input.AmountCents,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Balance(ctx context.Context, buyerID, sellerID uuid.UUID) (*Balance, error) {
	if buyerID == uuid.Nil || sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id and seller id are required")
	}
	account, err := s.repo.GetAccount(ctx, buyerID, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading credit account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
	}
	used, err := s.repo.UsedCredit(ctx, buyerID, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving used credit")
	}
	return &Balance{
		BuyerID:          buyerID,
		SellerID:         sellerID,
		CreditLimitCents: account.CreditLimitCents,
		UsedCents:        used,
		AvailableCents:   account.CreditLimitCents - used,
		Blocked:          account.Blocked,
	}, nil
}

// acquireLease retries with bounded exponential backoff before surfacing a
// lock timeout. The conditional update both fences on the stored lease and,
// under postgres, holds the account row lock until the caller's transaction
// ends, so no two concurrent reservations can read the same stale balance.
func (s *service) acquireLease(ctx context.Context, repo Repository, buyerID, sellerID uuid.UUID, owner string) error {
	backoff := s.cfg.LockBackoffBase
	for attempt := 0; attempt < s.cfg.LockAttempts; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.IncLockRetry()
			}
			select {
			case <-ctx.Done():
				return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, ctx.Err(), "credit lease wait cancelled")
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		ok, err := repo.AcquireLease(ctx, buyerID, sellerID, owner, s.cfg.LockTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring credit lease")
		}
		if ok {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeLockTimeout, "credit account lease contended")
}

func (s *service) releaseLease(ctx context.Context, repo Repository, buyerID, sellerID uuid.UUID, owner string) {
	if err := repo.ReleaseLease(ctx, buyerID, sellerID, owner); err != nil && s.logg != nil {
		s.logg.Error(ctx, "releasing credit lease", err)
	}
}

func (s *service) observeCredit(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCredit(outcome)
	}
}

func validateReserveInput(input ReserveInput) error {
	if input.BuyerID == uuid.Nil || input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id and seller id are required")
	}
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}
