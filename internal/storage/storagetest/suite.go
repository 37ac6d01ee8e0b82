// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/sentinel-bot/internal/storage"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) storage.Storage

// Run exercises the storage contract against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("WalletReplacedWholesale", func(t *testing.T) { testWalletReplace(t, newStore(t)) })
	t.Run("PositionLifecycle", func(t *testing.T) { testPositionLifecycle(t, newStore(t)) })
	t.Run("CloseIsIdempotent", func(t *testing.T) { testCloseIdempotent(t, newStore(t)) })
	t.Run("BeginCloseAdmitsOnce", func(t *testing.T) { testBeginCloseOnce(t, newStore(t)) })
	t.Run("RiskSettingsDefaults", func(t *testing.T) { testRiskSettings(t, newStore(t)) })
	t.Run("ListPositionsByUser", func(t *testing.T) { testListByUser(t, newStore(t)) })
}

func samplePosition(userID int64) *models.Position {
	return &models.Position{
		UserID:          userID,
		AssetAddress:    "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr",
		InvestedAmount:  100_000_000,
		EntryPrice:      0.0042,
		AssetAmount:     23_809_523_809,
		AmountEstimated: true,
		OpenSignature:   "sig-open",
	}
}

func testWalletReplace(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetWallet(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := &models.Wallet{UserID: 1, PublicKey: "pub-a", EncryptedPrivateKey: []byte{1, 2, 3}, Salt: []byte("salt-a-16-bytes!")}
	require.NoError(t, s.SaveWallet(ctx, first))

	second := &models.Wallet{UserID: 1, PublicKey: "pub-b", EncryptedPrivateKey: []byte{9, 9}, Salt: []byte("salt-b-16-bytes!")}
	require.NoError(t, s.SaveWallet(ctx, second))

	got, err := s.GetWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "pub-b", got.PublicKey)
	assert.Equal(t, []byte{9, 9}, got.EncryptedPrivateKey)
	assert.Equal(t, []byte("salt-b-16-bytes!"), got.Salt)
	assert.False(t, got.CreatedAt.IsZero())
}

func testPositionLifecycle(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	p := samplePosition(10)
	id, err := s.CreatePosition(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.StatusOpen, open[0].Status)
	assert.Equal(t, uint64(23_809_523_809), open[0].AssetAmount)
	assert.True(t, open[0].AmountEstimated)
	assert.Nil(t, open[0].ClosedAt)

	ok, err := s.BeginClose(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	open, err = s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closing, err := s.ListClosingPositions(ctx)
	require.NoError(t, err)
	require.Len(t, closing, 1)

	require.NoError(t, s.ReleaseClose(ctx, id))
	open, err = s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	ok, err = s.BeginClose(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	closedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.ClosePosition(ctx, id, models.CloseDetails{Signature: "sig-close", ExitPrice: 0.0055, ClosedAt: closedAt}))

	got, err := s.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, "sig-close", got.CloseSignature)
	assert.InDelta(t, 0.0055, got.ExitPrice, 1e-12)
	require.NotNil(t, got.ClosedAt)
	assert.WithinDuration(t, closedAt, *got.ClosedAt, time.Millisecond)

	// CLOSED is terminal
	require.NoError(t, s.ReleaseClose(ctx, id))
	ok, err = s.BeginClose(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testCloseIdempotent(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	id, err := s.CreatePosition(ctx, samplePosition(3))
	require.NoError(t, err)

	require.NoError(t, s.ClosePosition(ctx, id, models.CloseDetails{Signature: "first"}))
	require.NoError(t, s.ClosePosition(ctx, id, models.CloseDetails{Signature: "second"}))

	got, err := s.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, "first", got.CloseSignature)

	err = s.ClosePosition(ctx, id+1000, models.CloseDetails{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotErrorIs(t, err, types.ErrPersistence)

	_, err = s.GetPosition(ctx, id+1000)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testBeginCloseOnce(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	id, err := s.CreatePosition(ctx, samplePosition(4))
	require.NoError(t, err)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.BeginClose(ctx, id)
			assert.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func testRiskSettings(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	got, err := s.GetRiskSettings(ctx, 5)
	require.NoError(t, err)
	want := models.DefaultRiskSettings(5)
	assert.Equal(t, want.TakeProfitPct, got.TakeProfitPct)
	assert.Equal(t, want.StopLossPct, got.StopLossPct)
	assert.Equal(t, want.SlippageBps, got.SlippageBps)
	assert.True(t, got.AutoSell)
	assert.True(t, got.SimulationMode)

	got.TakeProfitPct = 50
	got.StopLossPct = 10
	got.SimulationMode = false
	got.SlippageBps = 250
	require.NoError(t, s.SaveRiskSettings(ctx, got))

	again, err := s.GetRiskSettings(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 50.0, again.TakeProfitPct)
	assert.Equal(t, 10.0, again.StopLossPct)
	assert.False(t, again.SimulationMode)
	assert.Equal(t, types.SlippageBps(250), again.SlippageBps)

	bad := again
	bad.StopLossPct = 0
	assert.Error(t, s.SaveRiskSettings(ctx, bad))
}

func testListByUser(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	for _, user := range []int64{1, 2, 1} {
		_, err := s.CreatePosition(ctx, samplePosition(user))
		require.NoError(t, err)
	}

	mine, err := s.ListPositions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Less(t, mine[0].ID, mine[1].ID)

	_, err = s.CreatePosition(ctx, &models.Position{UserID: 1, AssetAddress: "x", EntryPrice: 0, AssetAmount: 1})
	assert.Error(t, err)
}
