package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/api/responses"
	"github.com/orderstack/fulfillment-core/api/validators"
	"github.com/orderstack/fulfillment-core/internal/orders"
	"github.com/orderstack/fulfillment-core/internal/routing"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/logger"
)

type broadcastOrderRequest struct {
	CandidateSellerIDs []string `json:"candidate_seller_ids" validate:"omitempty,dive,uuid"`
}

// BroadcastOrder opens the acceptance race for an order. When no explicit
// candidate list is given, scored selection picks the top candidates.
func BroadcastOrder(routingSvc routing.Service, ordersSvc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req broadcastOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := ordersSvc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var candidateIDs []uuid.UUID
		if len(req.CandidateSellerIDs) > 0 {
			for _, raw := range req.CandidateSellerIDs {
				candidateIDs = append(candidateIDs, uuid.MustParse(raw))
			}
		} else {
			items := make([]routing.Item, 0, len(order.Items))
			for _, item := range order.Items {
				items = append(items, routing.Item{ProductID: item.ProductID, Quantity: item.Quantity})
			}
			candidateIDs, err = routingSvc.Candidates(r.Context(), order.BuyerID, items, 0)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		rt, err := routingSvc.RouteToSellers(r.Context(), order.ID, order.BuyerID, candidateIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rt)
	}
}

// RoutingDetail returns the broadcast state for an order.
func RoutingDetail(svc routing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rt, err := svc.GetByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rt)
	}
}

type vendorResponseRequest struct {
	SellerID string `json:"seller_id" validate:"required,uuid"`
	Response string `json:"response" validate:"required"`
}

// RecordVendorResponse records a candidate's accept or reject answer.
func RecordVendorResponse(svc routing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routingID, err := parseUUIDParam(r, "routingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req vendorResponseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseVendorResponseKind(req.Response)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid response"))
			return
		}
		response, err := svc.RecordResponse(r.Context(), routingID, uuid.MustParse(req.SellerID), kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, response)
	}
}

type acceptRoutingRequest struct {
	SellerID string `json:"seller_id" validate:"required,uuid"`
}

// AcceptRouting is the race: the first candidate to claim wins, every later
// claim loses, and a winner's retry is acknowledged idempotently.
func AcceptRouting(svc routing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routingID, err := parseUUIDParam(r, "routingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req acceptRoutingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AcceptWinner(r.Context(), routingID, uuid.MustParse(req.SellerID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
