package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-mpesa/app/entity"
	"github.com/vibast-solutions/ms-go-mpesa/app/repository"
	"github.com/vibast-solutions/ms-go-mpesa/app/types"
)

type CallbackOutcome int32

const (
	CallbackApplied CallbackOutcome = iota
	CallbackAlreadyProcessed
	CallbackIgnoredMissingID
	CallbackIgnoredUnknown
)

type CallbackResult struct {
	Outcome           CallbackOutcome
	CheckoutRequestID string
	Transaction       *entity.Transaction
}

// HandleStkCallback applies the provider's asynchronous result to the stored
// transaction. The terminal write is conditional on the row still being
// Pending, so a redelivered callback never mutates a resolved transaction.
// Every non-error outcome is acknowledged to the provider as success; anything
// else would make Safaricom re-send the callback.
func (s *PaymentService) HandleStkCallback(ctx context.Context, callback *types.StkCallback, rawPayload []byte) (*CallbackResult, error) {
	checkoutRequestID := strings.TrimSpace(callback.CheckoutRequestID)
	if checkoutRequestID == "" {
		s.metrics.RecordCallback("ignored_missing_id")
		return &CallbackResult{Outcome: CallbackIgnoredMissingID}, nil
	}

	tx, err := s.txRepo.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		s.metrics.RecordCallback("ignored_unknown")
		return &CallbackResult{Outcome: CallbackIgnoredUnknown, CheckoutRequestID: checkoutRequestID}, nil
	}
	if entity.TerminalStatus(tx.Status) {
		s.metrics.RecordCallback("already_processed")
		return &CallbackResult{Outcome: CallbackAlreadyProcessed, CheckoutRequestID: checkoutRequestID, Transaction: tx}, nil
	}

	now := time.Now().UTC()
	oldStatus := tx.Status

	resultCode := callback.ResultCode
	tx.ResultCode = &resultCode
	tx.ResultDesc = normalizeOptionalString(callback.ResultDesc)

	if resultCode == 0 {
		tx.Status = entity.TransactionStatusSuccess
		if receipt := callback.ReceiptNumber(); receipt != "" {
			tx.MpesaReceiptNumber = &receipt
		}
	} else {
		tx.Status = entity.TransactionStatusFailed
	}
	tx.UpdatedAt = now

	if err := s.txRepo.ResolveIfPending(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			// Lost the race with a concurrent delivery; the row is terminal now.
			s.metrics.RecordCallback("already_processed")
			resolved, findErr := s.txRepo.FindByCheckoutRequestID(ctx, checkoutRequestID)
			if findErr != nil || resolved == nil {
				resolved = tx
			}
			return &CallbackResult{Outcome: CallbackAlreadyProcessed, CheckoutRequestID: checkoutRequestID, Transaction: resolved}, nil
		}
		return nil, err
	}

	payloadJSON := normalizeOptionalString(string(rawPayload))
	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     "callback_applied",
		OldStatus:     &oldStatus,
		NewStatus:     tx.Status,
		PayloadJSON:   payloadJSON,
		CreatedAt:     now,
	})

	s.metrics.RecordCallback("applied")

	return &CallbackResult{Outcome: CallbackApplied, CheckoutRequestID: checkoutRequestID, Transaction: tx}, nil
}
