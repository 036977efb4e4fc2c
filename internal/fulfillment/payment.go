package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

// MarkPaid records a confirmed payment for the order. It reports false when
// the order was already paid, in which case nothing is written.
func (s *Service) MarkPaid(ctx context.Context, orderNumber, reference string) (bool, error) {
	if orderNumber == "" {
		return false, apperr.ValidationFields("orderNumber is required", map[string]string{"orderNumber": "required"})
	}

	changed := false
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		order, err := s.orders.GetByOrderNumberTx(ctx, tx, orderNumber)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return apperr.NotFound(fmt.Sprintf("order %s not found", orderNumber))
			}
			return apperr.Persistence("failed to load order", err)
		}
		if orderstate.PaymentStatus(order.PaymentStatus) == orderstate.PaymentPaid {
			return nil
		}
		if orderstate.OrderStatus(order.Status).Final() {
			return apperr.Precondition(ErrOrderClosed)
		}

		now := s.timeNow().UTC()
		previous := order.Status
		order.PaymentStatus = string(orderstate.PaymentPaid)
		if reference != "" {
			order.PaymentReference = &reference
		}
		moved := orderstate.CanTransition(orderstate.OrderStatus(previous), orderstate.OrderPaid)
		if moved {
			order.Status = string(orderstate.OrderPaid)
		}
		order.UpdatedAt = now
		if err := s.orders.UpdateTx(ctx, tx, order); err != nil {
			return apperr.Persistence("failed to update order", err)
		}

		if moved {
			if err := s.history.CreateTx(ctx, tx, &repository.HistoryEntry{
				OrderID:        order.ID,
				PreviousStatus: previous,
				Status:         order.Status,
				Note:           "payment confirmed",
				ChangedBy:      audit.SystemActor,
				ChangedAt:      now,
			}); err != nil {
				return apperr.Persistence("failed to record order history", err)
			}
		}

		if err := s.audit.RecordTx(ctx, tx, audit.Entry{
			Action:     audit.ActionOrderPaid,
			Resource:   audit.ResourceOrder,
			ResourceID: order.ID,
			Details: map[string]any{
				"orderNumber": order.OrderNumber,
				"reference":   reference,
			},
		}); err != nil {
			return apperr.Persistence("failed to record audit entry", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Persistence("failed to commit payment", err)
		}
		return false, err
	}

	if changed {
		s.logger.Info("order marked paid", zap.String("order_number", orderNumber))
	}
	return changed, nil
}
