package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"toybid/adapters/store"
	"toybid/models"
	"toybid/notify"
)

// Sweep 掃描所有已過結標時間但仍為 active 的拍賣並逐一結標
// 單一拍賣的失敗只會被記錄，不會中斷整批處理；
// 已被其他次掃描結標的拍賣會被跳過，重複掃描是安全的
func (e *Engine) Sweep(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	const op = "Engine.Sweep"
	expired, err := e.store.FindExpiredActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list expired auctions, err=%w", op, err)
	}
	closed := make([]*models.Auction, 0, len(expired))
	for i := range expired {
		auction, err := e.closeAuction(ctx, &expired[i], now)
		if errors.Is(err, ErrAlreadyEnded) {
			continue
		}
		if err != nil {
			metricSweepErrors.Inc()
			e.logger.Error("Fail to close auction",
				slog.String("op", op),
				slog.String("auctionID", expired[i].ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		closed = append(closed, auction)
	}
	if len(closed) > 0 {
		e.logger.Info("Closed expired auctions", slog.Int("count", len(closed)))
	}
	return closed, nil
}

// ForceClose 立即結標單一拍賣，不論結標時間是否已到
// 已結標的拍賣返回 ErrAlreadyEnded
func (e *Engine) ForceClose(ctx context.Context, auctionID uuid.UUID, now time.Time) (*models.Auction, error) {
	auction, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return e.closeAuction(ctx, auction, now)
}

// ForceCloseAll 立即結標所有仍在進行中的拍賣
func (e *Engine) ForceCloseAll(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	const op = "Engine.ForceCloseAll"
	active, err := e.store.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list active auctions, err=%w", op, err)
	}
	closed := make([]*models.Auction, 0, len(active))
	for i := range active {
		auction, err := e.closeAuction(ctx, &active[i], now)
		if errors.Is(err, ErrAlreadyEnded) {
			continue
		}
		if err != nil {
			e.logger.Error("Fail to force close auction",
				slog.String("op", op),
				slog.String("auctionID", active[i].ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		closed = append(closed, auction)
	}
	e.logger.Info("Force closed auctions", slog.Int("count", len(closed)))
	return closed, nil
}

// closeAuction 執行 active → ended 的狀態轉移
// 得標者與成交價在轉移的同時確定；與並行出價競爭時會以最新狀態重試，
// 狀態檢查保證同一個拍賣只會被結標一次
func (e *Engine) closeAuction(ctx context.Context, auction *models.Auction, now time.Time) (*models.Auction, error) {
	const op = "Engine.closeAuction"
	for attempt := 0; ; attempt++ {
		if auction.Status != models.AuctionActive {
			return nil, ErrAlreadyEnded
		}
		deadline := now.Add(e.config.PaymentWindow)
		patch := store.Patch{
			Status:          lo.ToPtr(models.AuctionEnded),
			FinalPrice:      lo.ToPtr(auction.CurrentPrice),
			PaymentDeadline: &deadline,
			WinnerID:        auction.HighestBidderID,
			History: &models.HistoryEntry{
				Kind:    models.HistoryEnd,
				ActorID: auction.HighestBidderID,
				Amount:  auction.CurrentPrice,
			},
		}
		err := e.store.ConditionalUpdate(ctx, auction.ID, auction.Version, patch)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("[%s] Fail to end auction, err=%w", op, err)
		}
		if attempt+1 >= e.config.MaxCommitRetries {
			return nil, fmt.Errorf("[%s] Fail to end auction, err=%w", op, ErrConcurrencyConflict)
		}
		// 與最後一刻的出價或另一次掃描競爭，重新讀取最新狀態
		auction, err = e.getAuction(ctx, auction.ID)
		if err != nil {
			return nil, err
		}
	}
	metricAuctionsClosed.Inc()
	e.logger.Info("Auction ended",
		slog.String("auctionID", auction.ID.String()),
		slog.Int64("finalPrice", auction.CurrentPrice),
	)

	// 通知得標者，沒有任何出價的拍賣沒有得標者
	if auction.HighestBidderID != nil {
		contact, err := e.resolveWinnerContact(ctx, auction)
		if err != nil {
			// 聯絡資訊缺失不影響結標本身
			e.logger.Warn("Winner contact cannot be resolved",
				slog.String("op", op),
				slog.String("auctionID", auction.ID.String()),
				slog.Any("error", err),
			)
		} else {
			e.emitter.Emit(notify.Intent{
				Type:        notify.AuctionEnded,
				Recipient:   contact,
				AuctionID:   auction.ID,
				AuctionName: auction.Name,
				Amount:      auction.CurrentPrice,
				CreatedAt:   now,
			})
		}
	}

	return e.getAuction(ctx, auction.ID)
}

// resolveWinnerContact 是得標者聯絡資訊的唯一解析入口
// 優先使用拍賣上反正規化的欄位，其次查詢身份紀錄，兩者都沒有時返回 ErrMissingContact
func (e *Engine) resolveWinnerContact(ctx context.Context, auction *models.Auction) (string, error) {
	const op = "Engine.resolveWinnerContact"
	if auction.HighestBidderEmail != "" {
		return auction.HighestBidderEmail, nil
	}
	if auction.HighestBidderID == nil {
		return "", ErrMissingContact
	}
	contact, err := e.contacts.ResolveContact(ctx, *auction.HighestBidderID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrMissingContact
	}
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to resolve contact, err=%w", op, err)
	}
	return contact, nil
}
