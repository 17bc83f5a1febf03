package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeAuth    TransactionType = "AUTH"
	TypeCapture TransactionType = "CAPTURE"
	TypeRefund  TransactionType = "REFUND"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusApproved   TransactionStatus = "APPROVED"
	StatusDeclined   TransactionStatus = "DECLINED"
	StatusExpired    TransactionStatus = "EXPIRED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusFailed     TransactionStatus = "FAILED"
)

// Allow-lists in declaration order. Validation messages enumerate these
// sets, so the order is part of the API contract.
var (
	AllowedCurrencies = []string{"CLP", "USD", "EUR", "GBP"}
	AllowedTypes      = []TransactionType{TypeAuth, TypeCapture, TypeRefund}
	AllowedStatuses   = []TransactionStatus{
		StatusPending, StatusProcessing, StatusApproved, StatusDeclined,
		StatusExpired, StatusCancelled, StatusFailed,
	}
	AllowedCountryCodes = []string{"CL", "US", "ES", "GB"}
)

// FinalStatuses are the terminal states that stamp processed_at.
var FinalStatuses = []TransactionStatus{
	StatusApproved, StatusDeclined, StatusExpired, StatusCancelled, StatusFailed,
}

func ValidCurrency(c string) bool {
	for _, allowed := range AllowedCurrencies {
		if c == allowed {
			return true
		}
	}
	return false
}

func ValidType(t TransactionType) bool {
	for _, allowed := range AllowedTypes {
		if t == allowed {
			return true
		}
	}
	return false
}

func ValidStatus(s TransactionStatus) bool {
	for _, allowed := range AllowedStatuses {
		if s == allowed {
			return true
		}
	}
	return false
}

func ValidCountryCode(c string) bool {
	for _, allowed := range AllowedCountryCodes {
		if c == allowed {
			return true
		}
	}
	return false
}

func IsFinalStatus(s TransactionStatus) bool {
	for _, final := range FinalStatuses {
		if s == final {
			return true
		}
	}
	return false
}

// Transaction is the single persisted entity. Amount is the canonical
// decimal string, never a binary float. Nullable fields are pointers so
// responses omit them when unset.
type Transaction struct {
	ID              string            `json:"id"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Type            TransactionType   `json:"type"`
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
	MerchantID      string            `json:"merchant_id"`
	OrderReference  string            `json:"order_reference"`
	CountryCode     string            `json:"country_code"`
	ParentID        *string           `json:"parent_id,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	ErrorCode       *string           `json:"error_code,omitempty"`
	Status          TransactionStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	StatusUpdatedAt time.Time         `json:"status_updated_at"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
}

// CanonicalAmount renders d with at least two decimal places, preserving
// any extra precision the caller supplied ("1000" -> "1000.00",
// "10000.50" -> "10000.50", "0.005" -> "0.005"). Rendering goes through
// StringFixed with the preserved exponent: String() trims trailing zeros
// and would turn "100.00" into "100".
func CanonicalAmount(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.StringFixed(-d.Exponent())
}
