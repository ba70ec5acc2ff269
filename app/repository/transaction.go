package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-mpesa/app/entity"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			checkout_request_id, merchant_request_id, phone_number, amount,
			mpesa_receipt_number, result_code, result_desc, status,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		tx.CheckoutRequestID,
		nullableStringValue(tx.MerchantRequestID),
		tx.PhoneNumber,
		tx.Amount,
		nullableStringValue(tx.MpesaReceiptNumber),
		nullableInt32Value(tx.ResultCode),
		nullableStringValue(tx.ResultDesc),
		tx.Status,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = uint64(id)
	return nil
}

func (r *TransactionRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*entity.Transaction, error) {
	query := `
		SELECT id, checkout_request_id, merchant_request_id, phone_number, amount,
			mpesa_receipt_number, result_code, result_desc, status,
			created_at, updated_at
		FROM transactions
		WHERE checkout_request_id = ?
		LIMIT 1
	`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, checkoutRequestID), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

// ResolveIfPending writes the callback result onto a transaction only while it is
// still Pending. Returns ErrTransactionNotFound when the row has already reached a
// terminal status, which makes repeated callback deliveries a no-op.
func (r *TransactionRepository) ResolveIfPending(ctx context.Context, tx *entity.Transaction) error {
	query := `
		UPDATE transactions SET
			mpesa_receipt_number = ?,
			result_code = ?,
			result_desc = ?,
			status = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(tx.MpesaReceiptNumber),
		nullableInt32Value(tx.ResultCode),
		nullableStringValue(tx.ResultDesc),
		tx.Status,
		tx.UpdatedAt,
		tx.ID,
		entity.TransactionStatusPending,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `
		SELECT id, checkout_request_id, merchant_request_id, phone_number, amount,
			mpesa_receipt_number, result_code, result_desc, status,
			created_at, updated_at
		FROM transactions
		WHERE status = ?
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.TransactionStatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		transactions = append(transactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(scan rowScanner, tx *entity.Transaction) error {
	var merchantRequestID sql.NullString
	var receiptNumber sql.NullString
	var resultCode sql.NullInt32
	var resultDesc sql.NullString

	err := scan.Scan(
		&tx.ID,
		&tx.CheckoutRequestID,
		&merchantRequestID,
		&tx.PhoneNumber,
		&tx.Amount,
		&receiptNumber,
		&resultCode,
		&resultDesc,
		&tx.Status,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return err
	}

	tx.MerchantRequestID = stringPtrFromNull(merchantRequestID)
	tx.MpesaReceiptNumber = stringPtrFromNull(receiptNumber)
	tx.ResultCode = int32PtrFromNull(resultCode)
	tx.ResultDesc = stringPtrFromNull(resultDesc)

	return nil
}
