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

// ReassignResult 是付款逾時重新指派的結果
type ReassignResult struct {
	Auction     *models.Auction
	NewWinnerID uuid.UUID
	Amount      int64
}

// ResolvePaymentTimeout 檢查付款期限，逾時時將得標權移轉給下一位出價者
// 付款期限尚未到期時返回 ErrNotExpired
func (e *Engine) ResolvePaymentTimeout(ctx context.Context, auctionID uuid.UUID, now time.Time) (*ReassignResult, error) {
	return e.resolvePaymentTimeout(ctx, auctionID, now, false)
}

// ForceExpirePayment 由管理介面觸發，立即視為付款逾時並重新指派，不檢查期限
func (e *Engine) ForceExpirePayment(ctx context.Context, auctionID uuid.UUID, now time.Time) (*ReassignResult, error) {
	return e.resolvePaymentTimeout(ctx, auctionID, now, true)
}

// ResolveOverduePayments 批次處理所有付款期限已過的拍賣
// 單一拍賣的失敗只會被記錄，不會中斷整批處理
func (e *Engine) ResolveOverduePayments(ctx context.Context, now time.Time) ([]*ReassignResult, error) {
	const op = "Engine.ResolveOverduePayments"
	overdue, err := e.store.FindPaymentOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list overdue auctions, err=%w", op, err)
	}
	results := make([]*ReassignResult, 0, len(overdue))
	for i := range overdue {
		result, err := e.resolvePaymentTimeout(ctx, overdue[i].ID, now, false)
		if errors.Is(err, ErrNoNextBidder) || errors.Is(err, ErrNotExpired) {
			continue
		}
		if err != nil {
			e.logger.Error("Fail to resolve payment timeout",
				slog.String("op", op),
				slog.String("auctionID", overdue[i].ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// resolvePaymentTimeout 將得標權移轉給下一位尚未被嘗試過的出價者
// 候選人的選擇永遠相對於目前的得標者：目前得標者與歷史上所有 REASSIGN/END 的
// 對象都會被排除，因此重複呼叫會沿著出價金額逐級往下，不會回到先前的人選
func (e *Engine) resolvePaymentTimeout(ctx context.Context, auctionID uuid.UUID, now time.Time, force bool) (*ReassignResult, error) {
	const op = "Engine.resolvePaymentTimeout"

	auction, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != models.AuctionEnded {
		return nil, ErrNotExpired
	}
	if auction.PaymentDeadline == nil {
		// 歷史資料可能缺少付款期限，修復為當前時間後繼續，屬於可恢復的異常
		e.logger.Warn("Auction has no payment deadline, repairing",
			slog.String("op", op),
			slog.String("auctionID", auctionID.String()),
		)
		deadline := now
		err := e.store.ConditionalUpdate(ctx, auction.ID, auction.Version, store.Patch{PaymentDeadline: &deadline})
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("[%s] Fail to repair payment deadline, err=%w", op, ErrConcurrencyConflict)
		}
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to repair payment deadline, err=%w", op, err)
		}
		auction.PaymentDeadline = &deadline
		auction.Version++
	}
	if !force && now.Before(*auction.PaymentDeadline) {
		return nil, ErrNotExpired
	}

	// 出價已按金額由高至低排序，同額時較早的出價在前
	bids, err := e.store.ListBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, err)
	}
	bidders := make(map[uuid.UUID]struct{}, len(bids))
	for i := range bids {
		bidders[bids[i].BidderID] = struct{}{}
	}
	if len(bidders) < 2 {
		return nil, ErrNoNextBidder
	}

	// 收集已被嘗試過的得標者：目前的得標者與所有 END/REASSIGN 歷史上的對象
	history, err := e.store.ListHistory(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list history, err=%w", op, err)
	}
	tried := make(map[uuid.UUID]struct{})
	if auction.HighestBidderID != nil {
		tried[*auction.HighestBidderID] = struct{}{}
	}
	for i := range history {
		entry := &history[i]
		if entry.ActorID == nil {
			continue
		}
		if entry.Kind == models.HistoryEnd || entry.Kind == models.HistoryReassign {
			tried[*entry.ActorID] = struct{}{}
		}
	}

	// 第一個尚未被嘗試過的出價者就是下一位候選人(其排序最前的出價即其最高出價)
	var candidate *models.Bid
	for i := range bids {
		bid := &bids[i]
		if bid.BidderID == auction.OwnerID {
			continue
		}
		if _, ok := tried[bid.BidderID]; ok {
			continue
		}
		candidate = bid
		break
	}
	if candidate == nil {
		return nil, ErrNoNextBidder
	}

	// 候選人的聯絡資訊無法解析屬於資料完整性錯誤，不能靜默跳過
	contact, err := e.contacts.ResolveContact(ctx, candidate.BidderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMissingContact
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to resolve candidate contact, err=%w", op, err)
	}

	deadline := now.Add(e.config.PaymentWindow)
	patch := store.Patch{
		HighestBidderID:    &candidate.BidderID,
		HighestBidderEmail: &contact,
		WinnerID:           &candidate.BidderID,
		FinalPrice:         &candidate.Amount,
		PaymentDeadline:    &deadline,
		History: &models.HistoryEntry{
			Kind:    models.HistoryReassign,
			ActorID: &candidate.BidderID,
			Amount:  candidate.Amount,
		},
	}
	err = e.store.ConditionalUpdate(ctx, auction.ID, auction.Version, patch)
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, fmt.Errorf("[%s] Fail to reassign winner, err=%w", op, ErrConcurrencyConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to reassign winner, err=%w", op, err)
	}

	metricReassignments.Inc()
	e.logger.Info("Winner reassigned",
		slog.String("auctionID", auctionID.String()),
		slog.String("newWinner", candidate.BidderID.String()),
		slog.Int64("finalPrice", candidate.Amount),
	)
	e.emitter.Emit(notify.Intent{
		Type:        notify.Reassigned,
		Recipient:   contact,
		AuctionID:   auctionID,
		AuctionName: auction.Name,
		Amount:      candidate.Amount,
		CreatedAt:   now,
	})

	updated, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return &ReassignResult{Auction: updated, NewWinnerID: candidate.BidderID, Amount: candidate.Amount}, nil
}
