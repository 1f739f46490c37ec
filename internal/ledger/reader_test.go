package ledger

import (
	"context"
	"testing"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/pkg/ids"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupReaderTest(t *testing.T) (*Reader, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Transaction{}))
	return &Reader{DB: db}, db
}

func confirmedTx(unitType ids.ID, sender *ids.ID, receiver ids.ID, kind string, amount float64) *domain.Transaction {
	return &domain.Transaction{
		UnitTypeID: unitType,
		ProjectID:  ids.New(),
		Kind:       kind,
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Status:     domain.TxStatusConfirmed,
	}
}

func TestBalance_DerivedFromConfirmedRows(t *testing.T) {
	r, db := setupReaderTest(t)
	unitType := ids.New()
	alice := ids.New()
	bob := ids.New()

	// Mint 100 to alice, alice sells 30 to bob
	require.NoError(t, db.Create(confirmedTx(unitType, nil, alice, domain.TxKindMint, 100)).Error)
	require.NoError(t, db.Create(confirmedTx(unitType, &alice, bob, domain.TxKindBuy, 30)).Error)

	balance, err := r.Balance(context.Background(), alice, unitType)
	require.NoError(t, err)
	assert.Equal(t, 70.0, balance)

	balance, err = r.Balance(context.Background(), bob, unitType)
	require.NoError(t, err)
	assert.Equal(t, 30.0, balance)
}

func TestBalance_IgnoresPendingAndFailed(t *testing.T) {
	r, db := setupReaderTest(t)
	unitType := ids.New()
	alice := ids.New()
	bob := ids.New()

	require.NoError(t, db.Create(confirmedTx(unitType, nil, alice, domain.TxKindMint, 50)).Error)

	pending := confirmedTx(unitType, &alice, bob, domain.TxKindBuy, 20)
	pending.Status = domain.TxStatusPending
	require.NoError(t, db.Create(pending).Error)

	failed := confirmedTx(unitType, &alice, bob, domain.TxKindBuy, 10)
	failed.Status = domain.TxStatusFailed
	require.NoError(t, db.Create(failed).Error)

	balance, err := r.Balance(context.Background(), alice, unitType)
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance)

	delta, err := r.PendingDelta(context.Background(), alice, unitType)
	require.NoError(t, err)
	assert.Equal(t, -20.0, delta)
}

func TestBalance_ScopedToUnitType(t *testing.T) {
	r, db := setupReaderTest(t)
	unitA := ids.New()
	unitB := ids.New()
	alice := ids.New()

	require.NoError(t, db.Create(confirmedTx(unitA, nil, alice, domain.TxKindMint, 40)).Error)
	require.NoError(t, db.Create(confirmedTx(unitB, nil, alice, domain.TxKindMint, 7)).Error)

	balance, err := r.Balance(context.Background(), alice, unitA)
	require.NoError(t, err)
	assert.Equal(t, 40.0, balance)
}

func TestConfirmedMintTotal(t *testing.T) {
	r, db := setupReaderTest(t)
	unitType := ids.New()
	owner := ids.New()

	require.NoError(t, db.Create(confirmedTx(unitType, nil, owner, domain.TxKindMint, 100)).Error)
	require.NoError(t, db.Create(confirmedTx(unitType, nil, owner, domain.TxKindMint, 25)).Error)

	failedMint := confirmedTx(unitType, nil, owner, domain.TxKindMint, 999)
	failedMint.Status = domain.TxStatusFailed
	require.NoError(t, db.Create(failedMint).Error)

	total, err := r.ConfirmedMintTotal(context.Background(), unitType)
	require.NoError(t, err)
	assert.Equal(t, 125.0, total)
}

func TestBalance_ZeroWhenNoRows(t *testing.T) {
	r, _ := setupReaderTest(t)
	balance, err := r.Balance(context.Background(), ids.New(), ids.New())
	require.NoError(t, err)
	assert.Zero(t, balance)
}
