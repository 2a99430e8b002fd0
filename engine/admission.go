package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"toybid/adapters/store"
	"toybid/models"
	"toybid/notify"
)

// PlaceBidResult 是出價成功後的結果
type PlaceBidResult struct {
	Auction *models.Auction
	Bid     *models.Bid
}

// PlaceBid 驗證並提交一筆出價
// 驗證依序檢查：拍賣存在、仍在進行中、非物主、非連續出價、金額足夠、未在冷卻中；
// 提交本身是儲存層的原子單位，輸給並行出價時會以最新狀態重新驗證後重試，
// 重試額度用盡以最新價格回報 ErrBidTooLow
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64, now time.Time) (*PlaceBidResult, error) {
	const op = "Engine.PlaceBid"

	auction, err := e.getAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, ErrAuctionNotFound) {
			metricBidsRejected.WithLabelValues(rejectionReason(err)).Inc()
		}
		return nil, err
	}
	if err := e.validateBid(auction, bidderID, amount, now); err != nil {
		metricBidsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	// 冷卻檢查只讀不寫，冷卻本身要等到出價成功之後才啟動，
	// 被拒絕的出價不應該讓出價者被鎖在冷卻期外
	if e.config.BidCooldown > 0 && e.cooldown != nil {
		remain, err := e.cooldown.Check(ctx, cooldownKey(auctionID, bidderID))
		if err != nil {
			// 冷卻檢查失敗不應阻擋出價
			e.logger.Warn("Fail to check bid cooldown", slog.String("op", op), slog.Any("error", err))
		} else if remain > 0 {
			e.logger.Debug("Bid rejected by cooldown",
				slog.String("bidder", bidderID.String()),
				slog.Duration("remain", remain),
			)
			metricBidsRejected.WithLabelValues(rejectionReason(ErrRateLimited)).Inc()
			return nil, ErrRateLimited
		}
	}

	// 解析出價者聯絡資訊，同時反正規化到拍賣上供結標通知使用
	contact, err := e.contacts.ResolveContact(ctx, bidderID)
	if errors.Is(err, store.ErrNotFound) {
		metricBidsRejected.WithLabelValues(rejectionReason(ErrMissingContact)).Inc()
		return nil, ErrMissingContact
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to resolve bidder contact, err=%w", op, err)
	}

	// 取得拍賣的出價鎖
	lockKey := fmt.Sprintf("%sauction:%s:lock", e.config.Redis.KeyPrefix, auctionID)
	dMutex := e.newMutex(lockKey)
	lockCtx, err := dMutex.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err)
	}
	defer func() {
		if _, err := dMutex.Unlock(); err != nil {
			e.logger.Warn("Fail to release bid lock", slog.String("op", op), slog.Any("error", err))
		}
	}()

	// 提交出價，輸給並行更新時重新驗證後重試
	var bid *models.Bid
	for attempt := 0; ; attempt++ {
		bid = &models.Bid{
			ID:        uuid.New(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
		}
		commitErr := e.store.AppendBid(lockCtx, bid, auction.Version, contact)
		if commitErr == nil {
			break
		}
		if !errors.Is(commitErr, store.ErrVersionConflict) {
			return nil, fmt.Errorf("[%s] Fail to commit bid, err=%w", op, commitErr)
		}
		// 重新讀取提交後的最新狀態，針對最新狀態重新驗證
		auction, err = e.getAuction(lockCtx, auctionID)
		if err != nil {
			return nil, err
		}
		if vErr := e.validateBid(auction, bidderID, amount, now); vErr != nil {
			metricBidsRejected.WithLabelValues(rejectionReason(vErr)).Inc()
			return nil, vErr
		}
		if attempt+1 >= e.config.MaxCommitRetries {
			metricBidsRejected.WithLabelValues(rejectionReason(ErrBidTooLow)).Inc()
			return nil, ErrBidTooLow
		}
	}

	auction, err = e.getAuction(lockCtx, auctionID)
	if err != nil {
		return nil, err
	}

	// 出價已成功提交，這時才啟動冷卻
	if e.config.BidCooldown > 0 && e.cooldown != nil {
		if _, _, err := e.cooldown.Arm(lockCtx, cooldownKey(auctionID, bidderID), e.config.BidCooldown); err != nil {
			e.logger.Warn("Fail to arm bid cooldown", slog.String("op", op), slog.Any("error", err))
		}
	}

	e.emitter.Emit(notify.Intent{
		Type:        notify.BidSuccess,
		Recipient:   contact,
		AuctionID:   auctionID,
		AuctionName: auction.Name,
		Amount:      amount,
		CreatedAt:   now,
	})
	metricBidsAdmitted.Inc()
	e.logger.Info("Higher bid occurs",
		slog.String("bidder", bidderID.String()),
		slog.Int64("bid", amount),
		slog.String("auctionID", auctionID.String()),
	)
	return &PlaceBidResult{Auction: auction, Bid: bid}, nil
}

// cooldownKey 組出單一出價者在單一拍賣上的冷卻鍵
func cooldownKey(auctionID, bidderID uuid.UUID) string {
	return fmt.Sprintf("bid:cooldown:%s:%s", auctionID, bidderID)
}

// validateBid 依規則順序檢查一筆出價，必須針對最新讀取的拍賣狀態呼叫
func (e *Engine) validateBid(auction *models.Auction, bidderID uuid.UUID, amount int64, now time.Time) error {
	if auction.Status != models.AuctionActive || !now.Before(auction.ExpiresAt) {
		return ErrExpired
	}
	if auction.OwnerID == bidderID {
		return ErrOwnerBid
	}
	if !e.config.AllowSelfOutbid && auction.HighestBidderID != nil && *auction.HighestBidderID == bidderID {
		return ErrConsecutiveBid
	}
	if amount < auction.CurrentPrice+auction.MinimumBidIncrement {
		return ErrBidTooLow
	}
	return nil
}
