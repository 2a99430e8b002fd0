package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toybid/models"
	"toybid/notify"
)

func TestSweep(t *testing.T) {
	now := time.Now()

	t.Run("只結標已過結標時間的拍賣", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		bidder := env.createUser(t, "bidder@example.com")

		expired := env.createAuction(t, owner, 100, 10, now.Add(-time.Minute))
		running := env.createAuction(t, owner, 100, 10, now.Add(time.Hour))
		_, err := env.engine.PlaceBid(ctx, running.ID, bidder, 150, now)
		require.NoError(t, err)

		closed, err := env.engine.Sweep(ctx, now)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, expired.ID, closed[0].ID)
		assert.Equal(t, models.AuctionEnded, closed[0].Status)

		stillRunning, err := env.store.Get(ctx, running.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AuctionActive, stillRunning.Status)
	})

	t.Run("結標時確定得標者、成交價與付款期限", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		bidder := env.createUser(t, "bidder@example.com")

		auction := env.createAuction(t, owner, 100, 10, now.Add(time.Minute))
		_, err := env.engine.PlaceBid(ctx, auction.ID, bidder, 150, now)
		require.NoError(t, err)

		closed, err := env.engine.Sweep(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, closed, 1)

		ended := closed[0]
		require.NotNil(t, ended.WinnerID)
		assert.Equal(t, bidder, *ended.WinnerID)
		require.NotNil(t, ended.FinalPrice)
		assert.Equal(t, int64(150), *ended.FinalPrice)
		require.NotNil(t, ended.PaymentDeadline)
		assert.WithinDuration(t, now.Add(7*time.Minute), *ended.PaymentDeadline, time.Second)

		// END歷史與得標通知
		history, err := env.store.ListHistory(ctx, auction.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.HistoryEnd, history[1].Kind)

		intents := env.emitter.Intents()
		require.Len(t, intents, 2)
		assert.Equal(t, notify.AuctionEnded, intents[1].Type)
		assert.Equal(t, "bidder@example.com", intents[1].Recipient)
		assert.Equal(t, int64(150), intents[1].Amount)
	})

	t.Run("沒有任何出價的拍賣結標後沒有得標者", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		auction := env.createAuction(t, owner, 100, 10, now.Add(-time.Minute))

		closed, err := env.engine.Sweep(ctx, now)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Nil(t, closed[0].WinnerID)
		require.NotNil(t, closed[0].FinalPrice)
		assert.Equal(t, auction.StartingPrice, *closed[0].FinalPrice)

		// 沒有得標者就沒有通知
		assert.Empty(t, env.emitter.Intents())
	})

	t.Run("重複掃描不會重複結標", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		auction := env.createAuction(t, owner, 100, 10, now.Add(-time.Minute))

		closed, err := env.engine.Sweep(ctx, now)
		require.NoError(t, err)
		require.Len(t, closed, 1)

		closed, err = env.engine.Sweep(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, closed)

		history, err := env.store.ListHistory(ctx, auction.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.HistoryEnd, history[0].Kind)
	})

	t.Run("並行掃描同一個拍賣只會結標一次", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		bidder := env.createUser(t, "bidder@example.com")

		auction := env.createAuction(t, owner, 100, 10, now.Add(time.Minute))
		_, err := env.engine.PlaceBid(ctx, auction.ID, bidder, 150, now)
		require.NoError(t, err)

		// 兩次重疊的掃描：版本檢查保證狀態轉移只會套用一次，
		// 晚到的那次看到已結標的狀態後跳過
		var wg sync.WaitGroup
		results := make([][]*models.Auction, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = env.engine.Sweep(ctx, now.Add(2*time.Minute))
			}(i)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, 1, len(results[0])+len(results[1]))

		// 只有一筆END歷史與一次得標通知
		history, err := env.store.ListHistory(ctx, auction.ID)
		require.NoError(t, err)
		endEntries := 0
		for _, entry := range history {
			if entry.Kind == models.HistoryEnd {
				endEntries++
			}
		}
		assert.Equal(t, 1, endEntries)

		ended, err := env.store.Get(ctx, auction.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AuctionEnded, ended.Status)
		require.NotNil(t, ended.WinnerID)
		assert.Equal(t, bidder, *ended.WinnerID)

		endedIntents := 0
		for _, intent := range env.emitter.Intents() {
			if intent.Type == notify.AuctionEnded {
				endedIntents++
			}
		}
		assert.Equal(t, 1, endedIntents)
	})
}

func TestForceClose(t *testing.T) {
	now := time.Now()

	t.Run("未到結標時間也能強制結標", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		auction := env.createAuction(t, owner, 100, 10, now.Add(time.Hour))

		closed, err := env.engine.ForceClose(ctx, auction.ID, now)
		require.NoError(t, err)
		assert.Equal(t, models.AuctionEnded, closed.Status)
	})

	t.Run("已結標的拍賣應返回AlreadyEnded", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		auction := env.createAuction(t, owner, 100, 10, now.Add(time.Hour))

		_, err := env.engine.ForceClose(ctx, auction.ID, now)
		require.NoError(t, err)
		_, err = env.engine.ForceClose(ctx, auction.ID, now)
		assert.ErrorIs(t, err, ErrAlreadyEnded)
	})
}

func TestForceCloseAll(t *testing.T) {
	env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
	ctx := context.Background()
	now := time.Now()
	owner := env.createUser(t, "owner@example.com")

	first := env.createAuction(t, owner, 100, 10, now.Add(time.Hour))
	second := env.createAuction(t, owner, 200, 10, now.Add(2*time.Hour))
	_, err := env.engine.ForceClose(ctx, first.ID, now)
	require.NoError(t, err)

	closed, err := env.engine.ForceCloseAll(ctx, now)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, second.ID, closed[0].ID)

	active, err := env.store.FindActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
