package controllers

import (
	"net/http"

	"github.com/orderstack/fulfillment-core/api/responses"
	"github.com/orderstack/fulfillment-core/internal/inventory"
	"github.com/orderstack/fulfillment-core/pkg/logger"
)

// StockAvailability returns the available-to-promise position of one
// (seller, product) pair.
func StockAvailability(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := parseUUIDParam(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := parseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := svc.Availability(r.Context(), sellerID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}
