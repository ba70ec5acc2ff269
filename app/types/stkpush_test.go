package types

import (
	"encoding/json"
	"testing"
)

func TestInitiateStkPushRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		request InitiateStkPushRequest
		wantErr bool
	}{
		{name: "valid", request: InitiateStkPushRequest{PhoneNumber: "0712345678", Amount: json.Number("100")}},
		{name: "decimal amount", request: InitiateStkPushRequest{PhoneNumber: "0712345678", Amount: json.Number("99.50")}},
		{name: "missing phone", request: InitiateStkPushRequest{Amount: json.Number("100")}, wantErr: true},
		{name: "missing amount", request: InitiateStkPushRequest{PhoneNumber: "0712345678"}, wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.request.Validate()
			if c.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestInitiateStkPushRequestPreservesDecimalAmount(t *testing.T) {
	var request InitiateStkPushRequest
	if err := json.Unmarshal([]byte(`{"phone_number":"0712345678","amount":150.50}`), &request); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if request.Amount.String() != "150.50" {
		t.Fatalf("expected amount 150.50, got %s", request.Amount.String())
	}
}

func TestStatusRequestValidate(t *testing.T) {
	if err := (&StatusRequest{}).Validate(); err == nil {
		t.Fatal("expected error for missing checkout_request_id")
	}
	if err := (&StatusRequest{CheckoutRequestID: "ws_1"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
