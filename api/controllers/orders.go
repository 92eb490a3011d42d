package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/orderstack/fulfillment-core/api/responses"
	"github.com/orderstack/fulfillment-core/api/validators"
	"github.com/orderstack/fulfillment-core/internal/orders"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/logger"
)

type submitOrderItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type submitOrderRequest struct {
	BuyerID string            `json:"buyer_id" validate:"required,uuid"`
	Items   []submitOrderItem `json:"items" validate:"required,min=1,dive"`
}

// SubmitOrder creates a new order in its initial state.
func SubmitOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.SubmitInput{BuyerID: uuid.MustParse(req.BuyerID)}
		for _, item := range req.Items {
			priceCents, err := parseMoneyCents(item.UnitPrice)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Items = append(input.Items, orders.SubmitItem{
				ProductID:      uuid.MustParse(item.ProductID),
				Quantity:       item.Quantity,
				UnitPriceCents: priceCents,
			})
		}

		order, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// OrderDetail returns the order with its line items.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderHistory returns the append-only transition log.
func OrderHistory(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.History(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events)
	}
}

type transitionOrderRequest struct {
	Target      string         `json:"target" validate:"required"`
	PerformedBy string         `json:"performed_by" validate:"required"`
	Reason      string         `json:"reason"`
	ActualQtys  map[string]int `json:"actual_qtys"`
}

// TransitionOrder drives one state machine step.
func TransitionOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transitionOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(req.Target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target state"))
			return
		}

		input := orders.TransitionInput{
			OrderID:     orderID,
			Target:      target,
			PerformedBy: req.PerformedBy,
			Reason:      req.Reason,
		}
		if len(req.ActualQtys) > 0 {
			input.ActualQtys = make(map[uuid.UUID]int, len(req.ActualQtys))
			for raw, qty := range req.ActualQtys {
				productID, err := uuid.Parse(raw)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id in actual_qtys"))
					return
				}
				input.ActualQtys[productID] = qty
			}
		}

		order, err := svc.Transition(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
