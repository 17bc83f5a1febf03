package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/ledger/internal/domain"
)

func newTestRepo(t *testing.T) *TransactionRepo {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewTransactionRepo(db)
}

func sampleTransaction(id, key string) *domain.Transaction {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Transaction{
		ID:              id,
		IdempotencyKey:  key,
		Type:            domain.TypeAuth,
		Amount:          "100.00",
		Currency:        "USD",
		MerchantID:      "M1",
		OrderReference:  "O1",
		CountryCode:     "US",
		Status:          domain.StatusPending,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	repo := newTestRepo(t)

	txn := sampleTransaction("TXN1", "KEY1")
	txn.Metadata = map[string]any{"channel": "web", "attempt": float64(1)}
	errCode := "E42"
	txn.ErrorCode = &errCode

	require.NoError(t, repo.Insert(txn))

	got, err := repo.GetByID("TXN1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TXN1", got.ID)
	assert.Equal(t, "KEY1", got.IdempotencyKey)
	assert.Equal(t, domain.TypeAuth, got.Type)
	assert.Equal(t, "100.00", got.Amount)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.ProcessedAt)
	assert.Equal(t, "E42", *got.ErrorCode)
	assert.Equal(t, map[string]any{"channel": "web", "attempt": float64(1)}, got.Metadata)
	assert.True(t, got.CreatedAt.Equal(txn.CreatedAt))
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID("NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetByFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(sampleTransaction("TXN1", "KEY1")))

	got, err := repo.GetByFingerprint("KEY1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TXN1", got.ID)

	missing, err := repo.GetByFingerprint("KEY2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertDuplicateFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(sampleTransaction("TXN1", "KEY1")))

	err := repo.Insert(sampleTransaction("TXN2", "KEY1"))
	assert.ErrorIs(t, err, ErrDuplicateFingerprint)
}

func TestInsertDuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(sampleTransaction("TXN1", "KEY1")))

	err := repo.Insert(sampleTransaction("TXN1", "KEY2"))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestInsertMissingParent(t *testing.T) {
	repo := newTestRepo(t)

	txn := sampleTransaction("TXN1", "KEY1")
	txn.Type = domain.TypeCapture
	parent := "GHOST"
	txn.ParentID = &parent

	err := repo.Insert(txn)
	assert.ErrorIs(t, err, ErrParentMissing)
}

func TestDeleteBlockedByChildren(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(sampleTransaction("AUTH1", "KEY1")))

	child := sampleTransaction("CAP1", "KEY2")
	child.Type = domain.TypeCapture
	parent := "AUTH1"
	child.ParentID = &parent
	require.NoError(t, repo.Insert(child))

	_, err := repo.Delete("AUTH1")
	assert.ErrorIs(t, err, ErrHasChildren)

	// Parent row must be untouched after the refused delete.
	got, err := repo.GetByID("AUTH1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Child first, then the parent goes through.
	affected, err := repo.Delete("CAP1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	affected, err = repo.Delete("AUTH1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
}

func TestDeleteMissingRowsAffected(t *testing.T) {
	repo := newTestRepo(t)

	affected, err := repo.Delete("NOPE")
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

func TestUpdateStatus(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(sampleTransaction("TXN1", "KEY1")))

	later := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
	affected, err := repo.UpdateStatus("TXN1", domain.StatusProcessing, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	got, err := repo.GetByID("TXN1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.True(t, got.StatusUpdatedAt.Equal(later))

	affected, err = repo.UpdateStatus("NOPE", domain.StatusProcessing, later)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

func TestSetProcessedAtIfNullIsSetOnce(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Insert(sampleTransaction("TXN1", "KEY1")))

	first := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
	require.NoError(t, repo.SetProcessedAtIfNull("TXN1", first))

	second := first.Add(time.Hour)
	require.NoError(t, repo.SetProcessedAtIfNull("TXN1", second))

	got, err := repo.GetByID("TXN1")
	require.NoError(t, err)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.ProcessedAt.Equal(first))
}

func TestListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)

	older := sampleTransaction("TXN1", "KEY1")
	older.CreatedAt = time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	newer := sampleTransaction("TXN2", "KEY2")
	newer.CreatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(older))
	require.NoError(t, repo.Insert(newer))

	txns, err := repo.List()
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "TXN2", txns[0].ID)
	assert.Equal(t, "TXN1", txns[1].ID)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
