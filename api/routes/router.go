package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orderstack/fulfillment-core/api/controllers"
	"github.com/orderstack/fulfillment-core/api/middleware"
	"github.com/orderstack/fulfillment-core/internal/credit"
	"github.com/orderstack/fulfillment-core/internal/inventory"
	"github.com/orderstack/fulfillment-core/internal/orders"
	"github.com/orderstack/fulfillment-core/internal/routing"
	"github.com/orderstack/fulfillment-core/pkg/logger"
)

// Params bundle the dependencies of the HTTP surface.
type Params struct {
	Logger    *logger.Logger
	Orders    orders.Service
	Credit    credit.Service
	Inventory inventory.Service
	Routing   routing.Service
	Health    map[string]controllers.Pinger
	Metrics   prometheus.Gatherer
}

func NewRouter(params Params) http.Handler {
	logg := params.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(logg, params.Health))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.SubmitOrder(params.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(params.Orders, logg))
			r.Get("/{orderId}/events", controllers.OrderHistory(params.Orders, logg))
			r.Post("/{orderId}/transitions", controllers.TransitionOrder(params.Orders, logg))
			r.Post("/{orderId}/broadcast", controllers.BroadcastOrder(params.Routing, params.Orders, logg))
			r.Get("/{orderId}/routing", controllers.RoutingDetail(params.Routing, logg))
		})

		r.Route("/routings", func(r chi.Router) {
			r.Post("/{routingId}/responses", controllers.RecordVendorResponse(params.Routing, logg))
			r.Post("/{routingId}/accept", controllers.AcceptRouting(params.Routing, logg))
		})

		r.Route("/credit", func(r chi.Router) {
			r.Get("/{buyerId}/{sellerId}", controllers.CreditBalance(params.Credit, logg))
			r.Post("/payments", controllers.RecordPayment(params.Credit, logg))
			r.Post("/entries/{entryId}/release", controllers.ReleaseCreditEntry(params.Credit, logg))
		})

		r.Get("/stock/{sellerId}/{productId}", controllers.StockAvailability(params.Inventory, logg))
	})

	return r
}
