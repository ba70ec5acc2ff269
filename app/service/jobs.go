package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mpesa/app/entity"
	"github.com/vibast-solutions/ms-go-mpesa/app/provider"
	"github.com/vibast-solutions/ms-go-mpesa/app/repository"
)

// RunReconcileBatch resolves stale Pending transactions whose callback never
// arrived by asking Daraja for the authoritative push result. Rows still
// waiting on the payer are skipped and picked up on a later run.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.jobsCfg.ReconcileStaleAfter)
	items, err := s.txRepo.ListStalePending(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil {
			continue
		}

		start := time.Now()
		result, err := s.daraja.QueryStkStatus(ctx, tx.CheckoutRequestID)
		s.metrics.ObserveProviderCall("stkquery", time.Since(start).Seconds(), err == nil)
		if err != nil {
			if errors.Is(err, provider.ErrResultPending) {
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		oldStatus := tx.Status
		resultCode := result.ResultCode
		tx.ResultCode = &resultCode
		tx.ResultDesc = normalizeOptionalString(result.ResultDesc)
		if resultCode == 0 {
			tx.Status = entity.TransactionStatusSuccess
		} else {
			tx.Status = entity.TransactionStatusFailed
		}
		tx.UpdatedAt = now

		if err := s.txRepo.ResolveIfPending(ctx, tx); err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				// A callback landed between the listing and the update.
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
			TransactionID: tx.ID,
			EventType:     "transaction_reconciled",
			OldStatus:     &oldStatus,
			NewStatus:     tx.Status,
			CreatedAt:     now,
		})

		s.metrics.RecordReconciled()

		logrus.WithFields(logrus.Fields{
			"checkout_request_id": tx.CheckoutRequestID,
			"result_code":         resultCode,
			"status":              entity.StatusLabel(tx.Status),
		}).Info("transaction_reconciled")
	}

	return firstErr
}

func keepFirstErr(current, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
