package types

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

type InitiateStkPushRequest struct {
	PhoneNumber string      `json:"phone_number"`
	Amount      json.Number `json:"amount"`
}

func NewInitiateStkPushRequestFromContext(ctx echo.Context) (*InitiateStkPushRequest, error) {
	var body InitiateStkPushRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PhoneNumber = strings.TrimSpace(body.PhoneNumber)
	return &body, nil
}

func (r *InitiateStkPushRequest) Validate() error {
	if r.PhoneNumber == "" {
		return errors.New("phone_number is required")
	}
	if strings.TrimSpace(r.Amount.String()) == "" {
		return errors.New("amount is required")
	}
	return nil
}

type StatusRequest struct {
	CheckoutRequestID string
}

func NewStatusRequestFromContext(ctx echo.Context) *StatusRequest {
	return &StatusRequest{
		CheckoutRequestID: strings.TrimSpace(ctx.QueryParam("checkout_request_id")),
	}
}

func (r *StatusRequest) Validate() error {
	if r.CheckoutRequestID == "" {
		return errors.New("checkout_request_id is required")
	}
	return nil
}

type Transaction struct {
	CheckoutRequestID  string `json:"checkout_request_id"`
	MerchantRequestID  string `json:"merchant_request_id,omitempty"`
	PhoneNumber        string `json:"phone_number"`
	Amount             string `json:"amount"`
	Status             string `json:"status"`
	ResultCode         *int32 `json:"result_code,omitempty"`
	ResultDesc         string `json:"result_desc,omitempty"`
	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty"`
	CreatedAt          string `json:"created_at"`
}

type InitiateStkPushResponse struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id,omitempty"`
	CustomerMessage   string `json:"customer_message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// StkCallbackAck is the acknowledgment shape Safaricom expects; any nonzero
// ResultCode is treated as a delivery failure and triggers a retry.
type StkCallbackAck struct {
	ResultCode int32  `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
