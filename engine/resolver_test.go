package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toybid/models"
	"toybid/notify"
)

// cascadeEnv 建立一個有三位出價者(50、70、90)且已結標的拍賣
func cascadeEnv(t *testing.T, now time.Time) (*testEnv, *models.Auction, map[string]uuid.UUID) {
	t.Helper()
	env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
	ctx := context.Background()

	users := map[string]uuid.UUID{
		"owner": env.createUser(t, "owner@example.com"),
		"alice": env.createUser(t, "alice@example.com"),
		"bob":   env.createUser(t, "bob@example.com"),
		"carol": env.createUser(t, "carol@example.com"),
	}
	auction := env.createAuction(t, users["owner"], 30, 10, now.Add(time.Minute))
	for _, bid := range []struct {
		who    string
		amount int64
	}{
		{who: "alice", amount: 50},
		{who: "bob", amount: 70},
		{who: "carol", amount: 90},
	} {
		_, err := env.engine.PlaceBid(ctx, auction.ID, users[bid.who], bid.amount, now)
		require.NoError(t, err)
	}

	closed, err := env.engine.Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].WinnerID)
	require.Equal(t, users["carol"], *closed[0].WinnerID)
	return env, closed[0], users
}

func TestResolvePaymentTimeout(t *testing.T) {
	now := time.Now()

	t.Run("付款期限未到應返回NotExpired", func(t *testing.T) {
		env, auction, _ := cascadeEnv(t, now)
		_, err := env.engine.ResolvePaymentTimeout(context.Background(), auction.ID, now.Add(3*time.Minute))
		assert.ErrorIs(t, err, ErrNotExpired)
	})

	t.Run("仍在進行中的拍賣應返回NotExpired", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		owner := env.createUser(t, "owner@example.com")
		auction := env.createAuction(t, owner, 100, 10, now.Add(time.Hour))

		_, err := env.engine.ResolvePaymentTimeout(context.Background(), auction.ID, now)
		assert.ErrorIs(t, err, ErrNotExpired)
	})

	t.Run("逾時後依序移轉給下一位出價者直到沒有候選人", func(t *testing.T) {
		env, auction, users := cascadeEnv(t, now)
		ctx := context.Background()

		// carol 逾時 → bob
		overdue := auction.PaymentDeadline.Add(time.Second)
		result, err := env.engine.ResolvePaymentTimeout(ctx, auction.ID, overdue)
		require.NoError(t, err)
		assert.Equal(t, users["bob"], result.NewWinnerID)
		assert.Equal(t, int64(70), result.Amount)
		require.NotNil(t, result.Auction.FinalPrice)
		assert.Equal(t, int64(70), *result.Auction.FinalPrice)
		require.NotNil(t, result.Auction.PaymentDeadline)
		assert.WithinDuration(t, overdue.Add(5*time.Minute), *result.Auction.PaymentDeadline, time.Second)

		// bob 也逾時 → alice
		overdue = result.Auction.PaymentDeadline.Add(time.Second)
		result, err = env.engine.ResolvePaymentTimeout(ctx, auction.ID, overdue)
		require.NoError(t, err)
		assert.Equal(t, users["alice"], result.NewWinnerID)
		assert.Equal(t, int64(50), result.Amount)

		// alice 也逾時 → 沒有候選人
		overdue = result.Auction.PaymentDeadline.Add(time.Second)
		_, err = env.engine.ResolvePaymentTimeout(ctx, auction.ID, overdue)
		assert.ErrorIs(t, err, ErrNoNextBidder)

		// 每次移轉都留下REASSIGN歷史與通知
		history, err := env.store.ListHistory(ctx, auction.ID)
		require.NoError(t, err)
		reassigns := 0
		for i := range history {
			if history[i].Kind == models.HistoryReassign {
				reassigns++
			}
		}
		assert.Equal(t, 2, reassigns)

		intents := env.emitter.Intents()
		require.NotEmpty(t, intents)
		last := intents[len(intents)-1]
		assert.Equal(t, notify.Reassigned, last.Type)
		assert.Equal(t, "alice@example.com", last.Recipient)
	})

	t.Run("只有一位出價者逾時後沒有候選人", func(t *testing.T) {
		env := setupTest(t, Config{PaymentWindow: 5 * time.Minute})
		ctx := context.Background()
		owner := env.createUser(t, "owner@example.com")
		bidder := env.createUser(t, "bidder@example.com")
		auction := env.createAuction(t, owner, 100, 10, now.Add(time.Minute))
		_, err := env.engine.PlaceBid(ctx, auction.ID, bidder, 150, now)
		require.NoError(t, err)
		closed, err := env.engine.ForceClose(ctx, auction.ID, now)
		require.NoError(t, err)

		_, err = env.engine.ResolvePaymentTimeout(ctx, auction.ID, closed.PaymentDeadline.Add(time.Second))
		assert.ErrorIs(t, err, ErrNoNextBidder)
	})

	t.Run("缺少付款期限時修復後繼續處理", func(t *testing.T) {
		env, auction, users := cascadeEnv(t, now)
		ctx := context.Background()

		// 模擬歷史資料缺少付款期限
		require.NoError(t, env.db.Model(&models.Auction{}).
			Where("id = ?", auction.ID).
			Update("payment_deadline", nil).Error)

		result, err := env.engine.ResolvePaymentTimeout(ctx, auction.ID, now.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, users["bob"], result.NewWinnerID)
		require.NotNil(t, result.Auction.PaymentDeadline)
	})

	t.Run("候選人聯絡資訊缺失應返回MissingContact", func(t *testing.T) {
		env, auction, users := cascadeEnv(t, now)
		ctx := context.Background()

		// 候選人的身份紀錄遺失屬於資料完整性錯誤
		require.NoError(t, env.db.Unscoped().
			Where("id = ?", users["bob"]).
			Delete(&models.User{}).Error)

		_, err := env.engine.ResolvePaymentTimeout(ctx, auction.ID, auction.PaymentDeadline.Add(time.Second))
		assert.ErrorIs(t, err, ErrMissingContact)
	})
}

func TestForceExpirePayment(t *testing.T) {
	now := time.Now()
	env, auction, users := cascadeEnv(t, now)

	// 期限未到也立即移轉
	result, err := env.engine.ForceExpirePayment(context.Background(), auction.ID, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, users["bob"], result.NewWinnerID)
	assert.Equal(t, int64(70), result.Amount)
}

func TestResolveOverduePayments(t *testing.T) {
	now := time.Now()
	env, auction, users := cascadeEnv(t, now)
	ctx := context.Background()

	// 另一個沒有候選人的逾時拍賣會被跳過
	soloBidder := env.createUser(t, "solo@example.com")
	solo := env.createAuction(t, users["owner"], 100, 10, now.Add(time.Minute))
	_, err := env.engine.PlaceBid(ctx, solo.ID, soloBidder, 150, now)
	require.NoError(t, err)
	_, err = env.engine.ForceClose(ctx, solo.ID, now)
	require.NoError(t, err)

	results, err := env.engine.ResolveOverduePayments(ctx, auction.PaymentDeadline.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, auction.ID, results[0].Auction.ID)
	assert.Equal(t, users["bob"], results[0].NewWinnerID)
}
