package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-mpesa/app/entity"
	"github.com/vibast-solutions/ms-go-mpesa/app/metrics"
	"github.com/vibast-solutions/ms-go-mpesa/app/provider"
	"github.com/vibast-solutions/ms-go-mpesa/app/repository"
	"github.com/vibast-solutions/ms-go-mpesa/config"
)

const defaultBatchSize = int32(100)

var phonePattern = regexp.MustCompile(`^\d{10,12}$`)

type transactionRepository interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*entity.Transaction, error)
	ResolveIfPending(ctx context.Context, tx *entity.Transaction) error
	ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error)
}

type transactionEventRepository interface {
	Create(ctx context.Context, event *entity.TransactionEvent) error
}

type stkClient interface {
	StkPush(ctx context.Context, phoneNumber string, amount int64) (*provider.StkPushResult, error)
	QueryStkStatus(ctx context.Context, checkoutRequestID string) (*provider.StkQueryResult, error)
}

type PaymentService struct {
	txRepo        transactionRepository
	eventRepo     transactionEventRepository
	daraja        stkClient
	metrics       *metrics.Metrics
	countryPrefix string
	jobsCfg       config.JobsConfig
}

func NewPaymentService(
	txRepo transactionRepository,
	eventRepo transactionEventRepository,
	daraja stkClient,
	m *metrics.Metrics,
	countryPrefix string,
	jobsCfg config.JobsConfig,
) *PaymentService {
	return &PaymentService{
		txRepo:        txRepo,
		eventRepo:     eventRepo,
		daraja:        daraja,
		metrics:       m,
		countryPrefix: strings.TrimSpace(countryPrefix),
		jobsCfg:       jobsCfg,
	}
}

type InitiateResult struct {
	Transaction     *entity.Transaction
	CustomerMessage string
}

// InitiateStkPush validates the payer input, submits a push request and, only
// after the provider accepts it, records a Pending transaction keyed by the
// provider's CheckoutRequestID. A rejected push leaves no record behind.
func (s *PaymentService) InitiateStkPush(ctx context.Context, phoneNumber, amount string) (*InitiateResult, error) {
	normalizedPhone, err := normalizePhoneNumber(phoneNumber, s.countryPrefix)
	if err != nil {
		s.metrics.RecordRejected("invalid_phone")
		return nil, err
	}

	parsedAmount, err := parseAmount(amount)
	if err != nil {
		s.metrics.RecordRejected("invalid_amount")
		return nil, err
	}

	start := time.Now()
	pushResult, err := s.daraja.StkPush(ctx, normalizedPhone, parsedAmount.IntPart())
	s.metrics.ObserveProviderCall("stkpush", time.Since(start).Seconds(), err == nil)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrTokenUnavailable):
			s.metrics.RecordRejected("token_unavailable")
		case errors.Is(err, provider.ErrPushRejected):
			s.metrics.RecordRejected("provider_rejected")
		default:
			s.metrics.RecordRejected("transport_error")
		}
		return nil, err
	}

	now := time.Now().UTC()
	tx := &entity.Transaction{
		CheckoutRequestID: pushResult.CheckoutRequestID,
		MerchantRequestID: normalizeOptionalString(pushResult.MerchantRequestID),
		PhoneNumber:       normalizedPhone,
		Amount:            parsedAmount.String(),
		Status:            entity.TransactionStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrTransactionAlreadyExists) {
			return nil, ErrTransactionAlreadyExists
		}
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     "transaction_created",
		NewStatus:     tx.Status,
		CreatedAt:     now,
	})

	s.metrics.RecordInitiated()

	return &InitiateResult{
		Transaction:     tx,
		CustomerMessage: pushResult.CustomerMessage,
	}, nil
}

func (s *PaymentService) GetStatus(ctx context.Context, checkoutRequestID string) (*entity.Transaction, error) {
	tx, err := s.txRepo.FindByCheckoutRequestID(ctx, strings.TrimSpace(checkoutRequestID))
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *PaymentService) batchSize() int32 {
	if s.jobsCfg.BatchSize > 0 {
		return s.jobsCfg.BatchSize
	}
	return defaultBatchSize
}

// normalizePhoneNumber rewrites everything before the last 9 digits with the
// country prefix, so local-format numbers like 0712345678 become 254712345678.
func normalizePhoneNumber(raw, prefix string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !phonePattern.MatchString(raw) {
		return "", ErrInvalidPhoneNumber
	}
	if strings.HasPrefix(raw, prefix) && len(raw) == len(prefix)+9 {
		return raw, nil
	}
	if len(raw) < 9 {
		return "", ErrInvalidPhoneNumber
	}
	return prefix + raw[len(raw)-9:], nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !parsed.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return parsed, nil
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
