package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-mpesa/app/entity"
	"github.com/vibast-solutions/ms-go-mpesa/app/types"
)

func TransactionToResponse(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		CheckoutRequestID:  item.CheckoutRequestID,
		MerchantRequestID:  derefString(item.MerchantRequestID),
		PhoneNumber:        item.PhoneNumber,
		Amount:             item.Amount,
		Status:             entity.StatusLabel(item.Status),
		ResultCode:         item.ResultCode,
		ResultDesc:         derefString(item.ResultDesc),
		MpesaReceiptNumber: derefString(item.MpesaReceiptNumber),
		CreatedAt:          item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
