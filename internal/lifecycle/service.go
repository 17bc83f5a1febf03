// Package lifecycle implements the transaction lifecycle engine: creation
// with business validation and idempotent deduplication, lookups, status
// transitions, and deletion with a child guard. The engine never touches
// the network and holds no locks of its own; concurrent-create correctness
// rests entirely on the store's uniqueness constraint.
package lifecycle

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/asgard/ledger/internal/domain"
	"github.com/asgard/ledger/internal/idempotency"
	"github.com/asgard/ledger/internal/identifier"
	"github.com/asgard/ledger/internal/repository"
)

// createAttempts bounds the insert-conflict-refetch loop. A refetch can
// miss when the conflicting row is deleted between our insert and the
// lookup; retrying the insert then resolves to a fresh row.
const createAttempts = 3

type Service struct {
	repo         *repository.TransactionRepo
	fingerprints *idempotency.Fingerprinter

	// Injected clock and id source; tests pin these.
	now   func() time.Time
	newID func() string
}

func NewService(repo *repository.TransactionRepo, fingerprints *idempotency.Fingerprinter) *Service {
	return &Service{
		repo:         repo,
		fingerprints: fingerprints,
		now:          time.Now,
		newID:        identifier.New,
	}
}

// CreateRequest carries the client payload into the engine. Amount and
// Metadata stay raw so that a non-numeric amount or a non-object metadata
// value is a business validation error with its own message, not a
// transport decode failure.
type CreateRequest struct {
	Type           string          `json:"type"`
	Amount         json.RawMessage `json:"amount"`
	Currency       string          `json:"currency"`
	MerchantID     string          `json:"merchant_id"`
	OrderReference string          `json:"order_reference"`
	CountryCode    string          `json:"country_code"`
	ParentID       string          `json:"parent_id"`
	Metadata       json.RawMessage `json:"metadata"`
	ErrorCode      string          `json:"error_code"`
}

type CreateResult struct {
	ID          string
	Status      domain.TransactionStatus
	IsDuplicate bool
}

// Create validates the request, fingerprints it, and inserts a PENDING
// row. The idempotency check is an optimistic insert-then-detect-conflict:
// the unique constraint on the fingerprint is the single source of truth,
// so two concurrent identical requests resolve to one row no matter how
// many server processes race.
func (s *Service) Create(req CreateRequest) (CreateResult, error) {
	log.Printf("[lifecycle] creating transaction: type=%s merchant=%s order=%s",
		req.Type, req.MerchantID, req.OrderReference)

	if err := checkRequired(req); err != nil {
		return CreateResult{}, err
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return CreateResult{}, err
	}

	if !domain.ValidCurrency(req.Currency) {
		return CreateResult{}, domain.NewValidationError(
			"currency must be one of %s", strings.Join(domain.AllowedCurrencies, ", "))
	}

	txnType := domain.TransactionType(req.Type)
	if !domain.ValidType(txnType) {
		return CreateResult{}, domain.NewValidationError(
			"type must be one of %s", joinTypes(domain.AllowedTypes))
	}

	if !domain.ValidCountryCode(req.CountryCode) {
		return CreateResult{}, domain.NewValidationError(
			"country_code must be one of %s", strings.Join(domain.AllowedCountryCodes, ", "))
	}

	if err := s.checkParentRules(txnType, req.ParentID); err != nil {
		return CreateResult{}, err
	}

	metadata, err := parseMetadata(req.Metadata)
	if err != nil {
		return CreateResult{}, err
	}

	canonicalAmount := domain.CanonicalAmount(amount)
	now := s.now()
	key := s.fingerprints.Key(req.MerchantID, req.OrderReference,
		canonicalAmount, req.Currency, req.Type, req.CountryCode, now)

	txn := &domain.Transaction{
		IdempotencyKey:  key,
		Type:            txnType,
		Amount:          canonicalAmount,
		Currency:        req.Currency,
		MerchantID:      req.MerchantID,
		OrderReference:  req.OrderReference,
		CountryCode:     req.CountryCode,
		Metadata:        metadata,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}
	if req.ParentID != "" {
		parentID := req.ParentID
		txn.ParentID = &parentID
	}
	if req.ErrorCode != "" {
		errorCode := req.ErrorCode
		txn.ErrorCode = &errorCode
	}

	return s.insertOrResolveDuplicate(txn)
}

func (s *Service) insertOrResolveDuplicate(txn *domain.Transaction) (CreateResult, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		txn.ID = s.newID()

		err := s.repo.Insert(txn)
		switch {
		case err == nil:
			log.Printf("[lifecycle] transaction created: %s", txn.ID)
			return CreateResult{ID: txn.ID, Status: txn.Status}, nil

		case errors.Is(err, repository.ErrDuplicateFingerprint):
			existing, lookupErr := s.repo.GetByFingerprint(txn.IdempotencyKey)
			if lookupErr != nil {
				return CreateResult{}, lookupErr
			}
			if existing != nil {
				log.Printf("[lifecycle] transaction already exists (idempotent): %s", existing.ID)
				return CreateResult{ID: existing.ID, Status: existing.Status, IsDuplicate: true}, nil
			}
			// Conflicting row vanished before the refetch; try again.
			continue

		case errors.Is(err, repository.ErrDuplicateID):
			return CreateResult{}, domain.NewValidationError("transaction id collision")

		case errors.Is(err, repository.ErrParentMissing):
			// Parent deleted between the rule check and the insert.
			return CreateResult{}, domain.NewValidationError("parent transaction not found")

		default:
			return CreateResult{}, err
		}
	}
	return CreateResult{}, domain.NewInternalError("could not resolve idempotent create")
}

// checkParentRules enforces which types may reference which parents.
func (s *Service) checkParentRules(txnType domain.TransactionType, parentID string) error {
	if txnType == domain.TypeCapture || txnType == domain.TypeRefund {
		if parentID == "" {
			return domain.NewValidationError("%s requires parent_id", txnType)
		}

		parent, err := s.repo.GetByID(parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return domain.NewValidationError("parent transaction not found")
		}

		if txnType == domain.TypeCapture && parent.Type != domain.TypeAuth {
			return domain.NewValidationError("capture must reference an auth transaction")
		}
		if txnType == domain.TypeRefund && parent.Type != domain.TypeAuth && parent.Type != domain.TypeCapture {
			return domain.NewValidationError("refund must reference auth or capture")
		}
	}

	if txnType == domain.TypeAuth && parentID != "" {
		return domain.NewValidationError("auth cannot have parent_id")
	}

	return nil
}

// Get retrieves a single transaction.
func (s *Service) Get(id string) (*domain.Transaction, error) {
	log.Printf("[lifecycle] retrieving transaction: %s", id)

	txn, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.NewNotFoundError("transaction not found")
	}
	return txn, nil
}

type ListResult struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
}

// List returns all transactions newest-created-first.
func (s *Service) List() (ListResult, error) {
	log.Printf("[lifecycle] retrieving all transactions")

	txns, err := s.repo.List()
	if err != nil {
		return ListResult{}, err
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	return ListResult{Transactions: txns, Total: len(txns)}, nil
}

type UpdateResult struct {
	ID     string                   `json:"id"`
	Status domain.TransactionStatus `json:"status"`
}

// UpdateStatus applies a status change. Any transition into a final state
// stamps processed_at exactly once; a later transition into another final
// state keeps the original timestamp. No transition graph is enforced
// beyond allowed-set membership.
func (s *Service) UpdateStatus(id string, status domain.TransactionStatus) (UpdateResult, error) {
	log.Printf("[lifecycle] updating transaction %s to status %s", id, status)

	txn, err := s.repo.GetByID(id)
	if err != nil {
		return UpdateResult{}, err
	}
	if txn == nil {
		return UpdateResult{}, domain.NewNotFoundError("transaction %s not found", id)
	}

	if !domain.ValidStatus(status) {
		return UpdateResult{}, domain.NewValidationError(
			"status must be one of %s", joinStatuses(domain.AllowedStatuses))
	}

	now := s.now()
	affected, err := s.repo.UpdateStatus(id, status, now)
	if err != nil {
		return UpdateResult{}, err
	}
	if affected == 0 {
		return UpdateResult{}, domain.NewNotFoundError("transaction %s not found", id)
	}

	if domain.IsFinalStatus(status) {
		if err := s.repo.SetProcessedAtIfNull(id, now); err != nil {
			return UpdateResult{}, err
		}
	}

	log.Printf("[lifecycle] transaction %s updated to %s", id, status)
	return UpdateResult{ID: id, Status: status}, nil
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Delete removes a transaction. The store's foreign key blocks deletion
// while children reference it, which surfaces as a validation error.
func (s *Service) Delete(id string) (DeleteResult, error) {
	log.Printf("[lifecycle] deleting transaction %s", id)

	txn, err := s.repo.GetByID(id)
	if err != nil {
		return DeleteResult{}, err
	}
	if txn == nil {
		return DeleteResult{}, domain.NewNotFoundError("transaction %s not found", id)
	}

	affected, err := s.repo.Delete(id)
	if err != nil {
		if errors.Is(err, repository.ErrHasChildren) {
			return DeleteResult{}, domain.NewValidationError(
				"cannot delete transaction: it has child transactions")
		}
		return DeleteResult{}, err
	}
	if affected == 0 {
		return DeleteResult{}, domain.NewNotFoundError("transaction %s not found", id)
	}

	log.Printf("[lifecycle] transaction %s deleted", id)
	return DeleteResult{ID: id, Deleted: true}, nil
}

// --- validation helpers ---

func checkRequired(req CreateRequest) error {
	if req.Type == "" {
		return domain.NewValidationError("type is required")
	}
	if rawAbsent(req.Amount) {
		return domain.NewValidationError("amount is required")
	}
	if req.Currency == "" {
		return domain.NewValidationError("currency is required")
	}
	if req.MerchantID == "" {
		return domain.NewValidationError("merchant_id is required")
	}
	if req.OrderReference == "" {
		return domain.NewValidationError("order_reference is required")
	}
	if req.CountryCode == "" {
		return domain.NewValidationError("country_code is required")
	}
	return nil
}

func rawAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// parseAmount accepts a JSON number or numeric string and returns the
// exact decimal value. Unparseable input and non-positive values carry
// distinct messages.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if len(text) > 0 && text[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Decimal{}, domain.NewValidationError("invalid amount")
		}
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, domain.NewValidationError("invalid amount")
	}
	if amount.Sign() <= 0 {
		return decimal.Decimal{}, domain.NewValidationError("amount must be greater than zero")
	}
	return amount, nil
}

func parseMetadata(raw json.RawMessage) (map[string]any, error) {
	if rawAbsent(raw) {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, domain.NewValidationError("metadata must be a json object")
	}
	return metadata, nil
}

func joinTypes(types []domain.TransactionType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func joinStatuses(statuses []domain.TransactionStatus) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
