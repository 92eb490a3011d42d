package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/api/responses"
	"github.com/orderstack/fulfillment-core/api/validators"
	"github.com/orderstack/fulfillment-core/internal/credit"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/logger"
)

// CreditBalance returns the derived position of one credit line.
func CreditBalance(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := parseUUIDParam(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID, err := parseUUIDParam(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), buyerID, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

type recordPaymentRequest struct {
	BuyerID  string `json:"buyer_id" validate:"required,uuid"`
	SellerID string `json:"seller_id" validate:"required,uuid"`
	Amount   string `json:"amount" validate:"required"`
	Actor    string `json:"actor"`
}

// RecordPayment lowers a buyer's used credit with a payment entry.
func RecordPayment(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amountCents, err := parseMoneyCents(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := enums.LedgerActor(req.Actor)
		if req.Actor != "" && !actor.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid actor"))
			return
		}

		entry, err := svc.RecordPayment(r.Context(), credit.PaymentInput{
			BuyerID:     uuid.MustParse(req.BuyerID),
			SellerID:    uuid.MustParse(req.SellerID),
			AmountCents: amountCents,
			Actor:       actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

type releaseEntryRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ReleaseCreditEntry reverses a single debit entry.
func ReleaseCreditEntry(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, err := parseUUIDParam(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req releaseEntryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reversal, err := svc.Release(r.Context(), entryID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reversal)
	}
}
