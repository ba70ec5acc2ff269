package service

import (
	"context"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-mpesa/app/entity"
	"github.com/vibast-solutions/ms-go-mpesa/app/provider"
	"github.com/vibast-solutions/ms-go-mpesa/app/types"
)

func seedPendingTransaction(repo *serviceTxRepo, checkoutRequestID string) *entity.Transaction {
	now := time.Now().UTC().Add(-time.Minute)
	tx := &entity.Transaction{
		CheckoutRequestID: checkoutRequestID,
		PhoneNumber:       "254712345678",
		Amount:            "100",
		Status:            entity.TransactionStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.Create(context.Background(), tx); err != nil {
		panic(err)
	}
	return tx
}

func successCallback(checkoutRequestID, receipt string) *types.StkCallback {
	return &types.StkCallback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: types.StkCallbackMetadata{
			Item: []types.StkCallbackItem{
				{Name: "Amount", Value: 100.0},
				{Name: "MpesaReceiptNumber", Value: receipt},
				{Name: "PhoneNumber", Value: 254712345678.0},
			},
		},
	}
}

func failureCallback(checkoutRequestID string) *types.StkCallback {
	return &types.StkCallback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}
}

func TestHandleStkCallbackSuccessAppliesResult(t *testing.T) {
	txRepo := newServiceTxRepo()
	eventRepo := &serviceEventRepo{}
	svc := newPaymentServiceForTest(txRepo, eventRepo, &serviceStkClient{})
	seedPendingTransaction(txRepo, "ws_1")

	payload := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_1","ResultCode":0}}}`)
	result, err := svc.HandleStkCallback(context.Background(), successCallback("ws_1", "QWE123"), payload)
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}
	if result.Outcome != CallbackApplied {
		t.Fatalf("expected CallbackApplied, got %d", result.Outcome)
	}

	stored := txRepo.transactions["ws_1"]
	if stored.Status != entity.TransactionStatusSuccess {
		t.Fatalf("expected success status, got %d", stored.Status)
	}
	if stored.MpesaReceiptNumber == nil || *stored.MpesaReceiptNumber != "QWE123" {
		t.Fatalf("expected receipt QWE123, got %v", stored.MpesaReceiptNumber)
	}
	if stored.ResultCode == nil || *stored.ResultCode != 0 {
		t.Fatalf("expected result code 0, got %v", stored.ResultCode)
	}

	if len(eventRepo.events) != 1 {
		t.Fatalf("expected one event, got %d", len(eventRepo.events))
	}
	event := eventRepo.events[0]
	if event.EventType != "callback_applied" {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	if event.PayloadJSON == nil || *event.PayloadJSON != string(payload) {
		t.Fatalf("expected raw payload on event, got %v", event.PayloadJSON)
	}
}

func TestHandleStkCallbackFailureMarksFailed(t *testing.T) {
	txRepo := newServiceTxRepo()
	svc := newPaymentServiceForTest(txRepo, &serviceEventRepo{}, &serviceStkClient{})
	seedPendingTransaction(txRepo, "ws_1")

	result, err := svc.HandleStkCallback(context.Background(), failureCallback("ws_1"), nil)
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}
	if result.Outcome != CallbackApplied {
		t.Fatalf("expected CallbackApplied, got %d", result.Outcome)
	}

	stored := txRepo.transactions["ws_1"]
	if stored.Status != entity.TransactionStatusFailed {
		t.Fatalf("expected failed status, got %d", stored.Status)
	}
	if stored.ResultCode == nil || *stored.ResultCode != 1032 {
		t.Fatalf("expected result code 1032, got %v", stored.ResultCode)
	}
	if stored.MpesaReceiptNumber != nil {
		t.Fatalf("expected no receipt for failed payment, got %v", *stored.MpesaReceiptNumber)
	}
}

func TestHandleStkCallbackIdempotentOnRedelivery(t *testing.T) {
	txRepo := newServiceTxRepo()
	eventRepo := &serviceEventRepo{}
	svc := newPaymentServiceForTest(txRepo, eventRepo, &serviceStkClient{})
	seedPendingTransaction(txRepo, "ws_1")

	first, err := svc.HandleStkCallback(context.Background(), successCallback("ws_1", "QWE123"), nil)
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if first.Outcome != CallbackApplied {
		t.Fatalf("expected CallbackApplied, got %d", first.Outcome)
	}
	afterFirst := *txRepo.transactions["ws_1"]

	// Same callback again, and a contradictory one. Neither must mutate the row.
	second, err := svc.HandleStkCallback(context.Background(), successCallback("ws_1", "QWE123"), nil)
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	if second.Outcome != CallbackAlreadyProcessed {
		t.Fatalf("expected CallbackAlreadyProcessed, got %d", second.Outcome)
	}

	third, err := svc.HandleStkCallback(context.Background(), failureCallback("ws_1"), nil)
	if err != nil {
		t.Fatalf("third delivery failed: %v", err)
	}
	if third.Outcome != CallbackAlreadyProcessed {
		t.Fatalf("expected CallbackAlreadyProcessed, got %d", third.Outcome)
	}

	afterThird := *txRepo.transactions["ws_1"]
	if afterThird != afterFirst {
		t.Fatalf("redelivery mutated the transaction: before=%+v after=%+v", afterFirst, afterThird)
	}
	if len(eventRepo.events) != 1 {
		t.Fatalf("expected one applied event, got %d", len(eventRepo.events))
	}
}

func TestHandleStkCallbackUnknownTransaction(t *testing.T) {
	txRepo := newServiceTxRepo()
	eventRepo := &serviceEventRepo{}
	svc := newPaymentServiceForTest(txRepo, eventRepo, &serviceStkClient{})

	result, err := svc.HandleStkCallback(context.Background(), successCallback("ws_ghost", "QWE123"), nil)
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}
	if result.Outcome != CallbackIgnoredUnknown {
		t.Fatalf("expected CallbackIgnoredUnknown, got %d", result.Outcome)
	}
	if len(txRepo.transactions) != 0 {
		t.Fatalf("expected no stored transactions, got %d", len(txRepo.transactions))
	}
	if len(eventRepo.events) != 0 {
		t.Fatalf("expected no events, got %d", len(eventRepo.events))
	}
}

func TestHandleStkCallbackMissingCheckoutRequestID(t *testing.T) {
	svc := newPaymentServiceForTest(newServiceTxRepo(), &serviceEventRepo{}, &serviceStkClient{})

	result, err := svc.HandleStkCallback(context.Background(), &types.StkCallback{ResultCode: 0}, nil)
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}
	if result.Outcome != CallbackIgnoredMissingID {
		t.Fatalf("expected CallbackIgnoredMissingID, got %d", result.Outcome)
	}
}

func TestInitiateCallbackStatusFlow(t *testing.T) {
	txRepo := newServiceTxRepo()
	client := &serviceStkClient{pushResult: &provider.StkPushResult{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: "ws_1",
		CustomerMessage:   "Success. Request accepted for processing",
	}}
	svc := newPaymentServiceForTest(txRepo, &serviceEventRepo{}, client)

	initiated, err := svc.InitiateStkPush(context.Background(), "0712345678", "100")
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if initiated.Transaction.CheckoutRequestID != "ws_1" {
		t.Fatalf("unexpected checkout request id %s", initiated.Transaction.CheckoutRequestID)
	}

	if _, err := svc.HandleStkCallback(context.Background(), successCallback("ws_1", "RCPT1"), nil); err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}

	status, err := svc.GetStatus(context.Background(), "ws_1")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status.Status != entity.TransactionStatusSuccess {
		t.Fatalf("expected success status, got %d", status.Status)
	}
	if status.MpesaReceiptNumber == nil || *status.MpesaReceiptNumber != "RCPT1" {
		t.Fatalf("expected receipt RCPT1, got %v", status.MpesaReceiptNumber)
	}
}
