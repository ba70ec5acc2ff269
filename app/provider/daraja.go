package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrPushRejected wraps the provider's own error message when an STK push
	// is refused synchronously.
	ErrPushRejected = errors.New("stk push rejected")
	// ErrResultPending is returned by QueryStkStatus while the push is still
	// waiting for the payer to act.
	ErrResultPending = errors.New("stk result not yet available")
)

type Config struct {
	ConsumerKey       string
	ConsumerSecret    string
	BaseURL           string
	ShortCode         string
	PassKey           string
	CallbackURL       string
	AccountReference  string
	TransactionDesc   string
	Location          *time.Location
	HTTPTimeout       time.Duration
	TokenSafetyMargin time.Duration
}

// DarajaClient talks to Safaricom's Daraja API: OAuth token exchange, STK push
// initiation, and the push status query used for reconciliation.
type DarajaClient struct {
	cfg    Config
	client *http.Client
	tokens *TokenCache
	now    func() time.Time
}

func NewDarajaClient(cfg Config, now func() time.Time) *DarajaClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}

	client := &http.Client{Timeout: timeout}

	return &DarajaClient{
		cfg:    cfg,
		client: client,
		tokens: NewTokenCache(cfg.ConsumerKey, cfg.ConsumerSecret, cfg.BaseURL, cfg.TokenSafetyMargin, client, now),
		now:    now,
	}
}

func (c *DarajaClient) AccessToken(ctx context.Context) (string, error) {
	return c.tokens.AccessToken(ctx)
}

type StkPushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// StkPush submits a push-payment request for the given normalized phone number
// and whole-unit amount. The phone number must already carry the country
// prefix; validation happens before this call.
func (c *DarajaClient) StkPush(ctx context.Context, phoneNumber string, amount int64) (*StkPushResult, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := StkPassword(c.cfg.ShortCode, c.cfg.PassKey, c.now().In(c.cfg.Location))

	payload := &stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  c.cfg.AccountReference,
		TransactionDesc:   c.cfg.TransactionDesc,
	}

	body, status, err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		CustomerMessage     string `json:"CustomerMessage"`
		ErrorMessage        string `json:"errorMessage"`
		Message             string `json:"message"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("stk push response is not valid JSON: %w", err)
	}

	if status >= 400 || response.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s", ErrPushRejected, providerErrorMessage(response.ErrorMessage, response.Message, response.ResponseDescription))
	}
	if strings.TrimSpace(response.CheckoutRequestID) == "" {
		return nil, fmt.Errorf("%w: response carries no CheckoutRequestID", ErrPushRejected)
	}

	return &StkPushResult{
		MerchantRequestID: response.MerchantRequestID,
		CheckoutRequestID: response.CheckoutRequestID,
		CustomerMessage:   response.CustomerMessage,
	}, nil
}

type StkQueryResult struct {
	ResultCode int32
	ResultDesc string
}

// QueryStkStatus asks Daraja for the outcome of an earlier push. Daraja answers
// error code 500.001.1001 while the prompt is still open on the handset; that
// maps to ErrResultPending.
func (c *DarajaClient) QueryStkStatus(ctx context.Context, checkoutRequestID string) (*StkQueryResult, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := StkPassword(c.cfg.ShortCode, c.cfg.PassKey, c.now().In(c.cfg.Location))

	payload := map[string]string{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	body, status, err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("stk query response is not valid JSON: %w", err)
	}

	if response.ErrorCode == "500.001.1001" {
		return nil, ErrResultPending
	}
	if status >= 400 || response.ResponseCode != "0" {
		return nil, fmt.Errorf("stk query failed: %s", providerErrorMessage(response.ErrorMessage, response.ResultDesc, ""))
	}

	resultCode, err := strconv.ParseInt(strings.TrimSpace(response.ResultCode), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("stk query returned unparsable ResultCode %q", response.ResultCode)
	}

	return &StkQueryResult{
		ResultCode: int32(resultCode),
		ResultDesc: response.ResultDesc,
	}, nil
}

func (c *DarajaClient) postJSON(ctx context.Context, path, token string, payload interface{}) ([]byte, int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("daraja request failed: path=%s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("daraja response read failed: path=%s: %w", path, err)
	}

	return body, resp.StatusCode, nil
}

func providerErrorMessage(candidates ...string) string {
	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return "unknown provider error"
}
