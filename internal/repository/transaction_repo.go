package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asgard/ledger/internal/domain"
)

// Stored timestamps are UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Sentinel errors classifying SQLite constraint failures. The lifecycle
// engine branches on these; raw driver errors never cross the repository
// boundary with a constraint meaning attached.
var (
	ErrDuplicateFingerprint = errors.New("duplicate idempotency key")
	ErrDuplicateID          = errors.New("duplicate transaction id")
	ErrParentMissing        = errors.New("parent transaction missing")
	ErrHasChildren          = errors.New("transaction has child transactions")
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

const transactionColumns = `id, idempotency_key, type, amount, currency,
	merchant_id, order_reference, country_code, parent_id, metadata,
	error_code, status, created_at, status_updated_at, processed_at`

// Insert writes a new row. Uniqueness on id and idempotency_key and the
// parent foreign key are enforced by the schema; violations come back as
// the sentinel errors above so the engine can drive the idempotent
// conflict path.
func (r *TransactionRepo) Insert(tx *domain.Transaction) error {
	metadataJSON, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO transactions
		(id, idempotency_key, type, amount, currency, merchant_id,
		 order_reference, country_code, parent_id, metadata, error_code,
		 status, created_at, status_updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tx.ID, tx.IdempotencyKey, string(tx.Type), tx.Amount, tx.Currency,
		tx.MerchantID, tx.OrderReference, tx.CountryCode,
		nullableString(tx.ParentID), metadataJSON, nullableString(tx.ErrorCode),
		string(tx.Status), tx.CreatedAt.UTC().Format(timeLayout),
		tx.StatusUpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if classified := classifyConstraint(err); classified != nil {
			return classified
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID returns the transaction or (nil, nil) when no row exists.
func (r *TransactionRepo) GetByID(id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

// GetByFingerprint returns the transaction holding the given idempotency
// key, or (nil, nil) when none does.
func (r *TransactionRepo) GetByFingerprint(key string) (*domain.Transaction, error) {
	row := r.db.QueryRow(
		"SELECT "+transactionColumns+" FROM transactions WHERE idempotency_key = ?", key)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

// List returns all transactions newest-created-first. The id tiebreak
// keeps rows created within the same millisecond in insertion order,
// since ids sort by creation time.
func (r *TransactionRepo) List() ([]domain.Transaction, error) {
	rows, err := r.db.Query(
		"SELECT " + transactionColumns + " FROM transactions ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		tx, err := scanTransactionRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *tx)
	}
	return txns, rows.Err()
}

func (r *TransactionRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

// UpdateStatus changes the status and stamps status_updated_at. Returns
// the number of rows affected so callers can detect a vanished row.
func (r *TransactionRepo) UpdateStatus(id string, status domain.TransactionStatus, now time.Time) (int64, error) {
	res, err := r.db.Exec(
		"UPDATE transactions SET status = ?, status_updated_at = ? WHERE id = ?",
		string(status), now.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}
	return res.RowsAffected()
}

// SetProcessedAtIfNull stamps processed_at exactly once. A second call is
// a no-op, preserving the timestamp of the first transition into a final
// state.
func (r *TransactionRepo) SetProcessedAtIfNull(id string, now time.Time) error {
	_, err := r.db.Exec(
		"UPDATE transactions SET processed_at = ? WHERE id = ? AND processed_at IS NULL",
		now.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("set processed_at: %w", err)
	}
	return nil
}

// Delete removes a row. If child transactions still reference it the
// foreign key fires and ErrHasChildren is returned; nothing is deleted.
func (r *TransactionRepo) Delete(id string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrHasChildren
		}
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	return res.RowsAffected()
}

// --- helpers ---

// classifyConstraint maps driver constraint failures on insert to sentinel
// errors. The idempotency_key check runs first: its message contains
// "transactions.id" as a prefix of the column name.
func classifyConstraint(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "transactions.idempotency_key"):
		return ErrDuplicateFingerprint
	case strings.Contains(msg, "UNIQUE constraint failed: transactions.id"):
		return ErrDuplicateID
	case isForeignKeyViolation(err):
		return ErrParentMissing
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func marshalMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func scanTransaction(row *sql.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txnType, status, createdAt, statusUpdatedAt string
	var parentID, metadataJSON, errorCode, processedAt sql.NullString

	err := row.Scan(
		&tx.ID, &tx.IdempotencyKey, &txnType, &tx.Amount, &tx.Currency,
		&tx.MerchantID, &tx.OrderReference, &tx.CountryCode, &parentID,
		&metadataJSON, &errorCode, &status, &createdAt, &statusUpdatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	return hydrateTransaction(&tx, txnType, status, createdAt, statusUpdatedAt,
		parentID, metadataJSON, errorCode, processedAt)
}

func scanTransactionRows(rows *sql.Rows) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txnType, status, createdAt, statusUpdatedAt string
	var parentID, metadataJSON, errorCode, processedAt sql.NullString

	err := rows.Scan(
		&tx.ID, &tx.IdempotencyKey, &txnType, &tx.Amount, &tx.Currency,
		&tx.MerchantID, &tx.OrderReference, &tx.CountryCode, &parentID,
		&metadataJSON, &errorCode, &status, &createdAt, &statusUpdatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	return hydrateTransaction(&tx, txnType, status, createdAt, statusUpdatedAt,
		parentID, metadataJSON, errorCode, processedAt)
}

func hydrateTransaction(
	tx *domain.Transaction,
	txnType, status, createdAt, statusUpdatedAt string,
	parentID, metadataJSON, errorCode, processedAt sql.NullString,
) (*domain.Transaction, error) {
	tx.Type = domain.TransactionType(txnType)
	tx.Status = domain.TransactionStatus(status)

	var err error
	if tx.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if tx.StatusUpdatedAt, err = time.Parse(timeLayout, statusUpdatedAt); err != nil {
		return nil, fmt.Errorf("parse status_updated_at: %w", err)
	}

	if parentID.Valid {
		tx.ParentID = &parentID.String
	}
	if errorCode.Valid {
		tx.ErrorCode = &errorCode.String
	}
	if processedAt.Valid {
		t, err := time.Parse(timeLayout, processedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		tx.ProcessedAt = &t
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return tx, nil
}
