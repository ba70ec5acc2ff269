package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StkCallback is the inner payload of Daraja's asynchronous result:
// Body.stkCallback.{CheckoutRequestID, ResultCode, ResultDesc,
// CallbackMetadata.Item[]}.
type StkCallback struct {
	MerchantRequestID string              `json:"MerchantRequestID"`
	CheckoutRequestID string              `json:"CheckoutRequestID"`
	ResultCode        int32               `json:"ResultCode"`
	ResultDesc        string              `json:"ResultDesc"`
	CallbackMetadata  StkCallbackMetadata `json:"CallbackMetadata"`
}

type StkCallbackMetadata struct {
	Item []StkCallbackItem `json:"Item"`
}

type StkCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

func ParseStkCallback(raw []byte) (*StkCallback, error) {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Body.StkCallback == nil {
		return nil, fmt.Errorf("body carries no stkCallback element")
	}
	return envelope.Body.StkCallback, nil
}

// ReceiptNumber returns the first MpesaReceiptNumber metadata entry, or ""
// when the callback carries none (failed pushes have no metadata at all).
func (c *StkCallback) ReceiptNumber() string {
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" {
			continue
		}
		if value, ok := item.Value.(string); ok {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fmt.Sprintf("%v", item.Value))
	}
	return ""
}
