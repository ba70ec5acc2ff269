package entity

import "time"

const (
	TransactionStatusPending int32 = 1
	TransactionStatusSuccess int32 = 10
	TransactionStatusFailed  int32 = 20
)

type Transaction struct {
	ID uint64

	CheckoutRequestID string
	MerchantRequestID *string

	PhoneNumber string
	Amount      string

	MpesaReceiptNumber *string
	ResultCode         *int32
	ResultDesc         *string

	Status int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

func TerminalStatus(status int32) bool {
	return status == TransactionStatusSuccess || status == TransactionStatusFailed
}

func StatusLabel(status int32) string {
	switch status {
	case TransactionStatusPending:
		return "Pending"
	case TransactionStatusSuccess:
		return "Success"
	case TransactionStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
