package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/orderstack/fulfillment-core/internal/orders"
	"github.com/orderstack/fulfillment-core/pkg/db/models"
	"github.com/orderstack/fulfillment-core/pkg/enums"
	pkgerrors "github.com/orderstack/fulfillment-core/pkg/errors"
	"github.com/orderstack/fulfillment-core/pkg/logger"
)

const (
	routingExpiryJobName   = "routing_expiry"
	defaultExpiryBatchSize = 100
	expiryActor            = "system:routing-expiry"
)

// RoutingExpiryJobParams configure the acceptance window sweeper.
type RoutingExpiryJobParams struct {
	Logger    *logger.Logger
	Routing   staleRoutingExpirer
	Orders    orderTransitioner
	BatchSize int
}

type staleRoutingExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) ([]models.VendorRouting, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

// NewRoutingExpiryJob builds the job that expires broadcasts whose acceptance
// window lapsed with no winner, cancelling the affected orders.
func NewRoutingExpiryJob(params RoutingExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Routing == nil {
		return nil, fmt.Errorf("routing service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &routingExpiryJob{
		logg:      params.Logger,
		routing:   params.Routing,
		orders:    params.Orders,
		batchSize: batchSize,
	}, nil
}

type routingExpiryJob struct {
	logg      *logger.Logger
	routing   staleRoutingExpirer
	orders    orderTransitioner
	batchSize int
}

func (j *routingExpiryJob) Name() string { return routingExpiryJobName }

func (j *routingExpiryJob) Run(ctx context.Context) error {
	expired, err := j.routing.ExpireStale(ctx, time.Now(), j.batchSize)
	if err != nil {
		return fmt.Errorf("expire stale routings: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	var errs error
	cancelled := 0
	for _, routing := range expired {
		routingCtx := j.logg.WithFields(ctx, map[string]any{
			"routing_id": routing.ID.String(),
			"order_id":   routing.OrderID.String(),
		})
		_, err := j.orders.Transition(ctx, orders.TransitionInput{
			OrderID:     routing.OrderID,
			Target:      enums.OrderStatusCancelled,
			PerformedBy: expiryActor,
			Reason:      "vendor acceptance window expired",
		})
		if err != nil {
			// The order may have settled between the sweep's read and this
			// cancellation; that is not a job failure.
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) ||
				pkgerrors.IsCode(err, pkgerrors.CodeConflict) ||
				pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				j.logg.Warn(routingCtx, "order not cancellable after routing expiry")
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", routing.OrderID, err))
			continue
		}
		cancelled++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired":   len(expired),
		"cancelled": cancelled,
	}), "routing expiry sweep complete")
	return errs
}
