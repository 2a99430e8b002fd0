package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toybid/models"
)

// GormStore 實現了 IAuctionStore 與 IContactResolver，以關聯式資料庫作為唯一事實來源
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 建立一個新的 GormStore 實例
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &GormStore{db: db}, nil
}

// Get 讀取單筆拍賣，不存在時返回 ErrNotFound
func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	const op = "GormStore.Get"
	auction := models.Auction{ID: id}
	if result := s.db.WithContext(ctx).First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
	}
	return &auction, nil
}

// Create 建立一筆新的拍賣
func (s *GormStore) Create(ctx context.Context, auction *models.Auction) error {
	const op = "GormStore.Create"
	if auction.ID == uuid.Nil {
		auction.ID = uuid.New()
	}
	if result := s.db.WithContext(ctx).Create(auction); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create auction, err=%w", op, result.Error)
	}
	return nil
}

// ConditionalUpdate 以 version 的 compare-and-swap 套用更新
// 版本不符時返回 ErrVersionConflict，呼叫端必須重新讀取最新狀態後再決定
func (s *GormStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedVersion uint64, patch Patch) error {
	const op = "GormStore.ConditionalUpdate"
	updates := patchToUpdates(patch)
	updates["version"] = expectedVersion + 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Auction{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to update auction, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if result := tx.Model(&models.Auction{}).Where("id = ?", id).Count(&count); result.Error != nil {
				return fmt.Errorf("[%s] Fail to check auction existence, err=%w", op, result.Error)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		if patch.History != nil {
			entry := *patch.History
			entry.ID = uuid.New()
			entry.AuctionID = id
			if result := tx.Create(&entry); result.Error != nil {
				return fmt.Errorf("[%s] Fail to append history, err=%w", op, result.Error)
			}
		}
		return nil
	})
	return err
}

// AppendBid 在單一交易中推進拍賣價格、寫入出價紀錄並附加 BID 歷史
// 這是出價提交的原子單位，兩個並行出價只會有一個成功通過 version 檢查
func (s *GormStore) AppendBid(ctx context.Context, bid *models.Bid, expectedVersion uint64, bidderEmail string) error {
	const op = "GormStore.AppendBid"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Auction{}).
			Where("id = ? AND version = ? AND status = ?", bid.AuctionID, expectedVersion, models.AuctionActive).
			Updates(map[string]any{
				"current_price":        bid.Amount,
				"highest_bidder_id":    bid.BidderID,
				"highest_bidder_email": bidderEmail,
				"version":              expectedVersion + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to advance auction price, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}
		if bid.ID == uuid.Nil {
			bid.ID = uuid.New()
		}
		if result := tx.Create(bid); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create bid, err=%w", op, result.Error)
		}
		entry := models.HistoryEntry{
			ID:        uuid.New(),
			AuctionID: bid.AuctionID,
			Kind:      models.HistoryBid,
			ActorID:   &bid.BidderID,
			Amount:    bid.Amount,
		}
		if result := tx.Create(&entry); result.Error != nil {
			return fmt.Errorf("[%s] Fail to append history, err=%w", op, result.Error)
		}
		return nil
	})
}

// FindExpiredActive 找出所有已過結標時間但仍為 active 的拍賣
func (s *GormStore) FindExpiredActive(ctx context.Context, now time.Time) ([]models.Auction, error) {
	const op = "GormStore.FindExpiredActive"
	var auctions []models.Auction
	result := s.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.AuctionActive, now).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "expires_at"}}).
		Find(&auctions)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list expired auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// FindActive 找出所有仍在進行中的拍賣
func (s *GormStore) FindActive(ctx context.Context) ([]models.Auction, error) {
	const op = "GormStore.FindActive"
	var auctions []models.Auction
	result := s.db.WithContext(ctx).
		Where("status = ?", models.AuctionActive).
		Find(&auctions)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list active auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// FindPaymentOverdue 找出付款期限已過的已結標拍賣
// 付款期限為NULL的異常資料不會被排程撿起，只能透過管理介面修復
func (s *GormStore) FindPaymentOverdue(ctx context.Context, now time.Time) ([]models.Auction, error) {
	const op = "GormStore.FindPaymentOverdue"
	var auctions []models.Auction
	result := s.db.WithContext(ctx).
		Where("status = ? AND payment_deadline IS NOT NULL AND payment_deadline <= ?", models.AuctionEnded, now).
		Find(&auctions)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list overdue auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// ListBidsByAuction 列出拍賣的所有出價，金額高者在前，同額時較早的出價優先
func (s *GormStore) ListBidsByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "GormStore.ListBidsByAuction"
	var bids []models.Bid
	result := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "amount"}, Desc: true},
			{Column: clause.Column{Name: "created_at"}, Desc: false},
		}}).
		Find(&bids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, result.Error)
	}
	return bids, nil
}

// ListHistory 列出拍賣的歷史紀錄，由舊到新
func (s *GormStore) ListHistory(ctx context.Context, auctionID uuid.UUID) ([]models.HistoryEntry, error) {
	const op = "GormStore.ListHistory"
	var entries []models.HistoryEntry
	result := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}}).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list history, err=%w", op, result.Error)
	}
	return entries, nil
}

// ResolveContact 從使用者紀錄解析聯絡資訊，找不到時返回 ErrNotFound
func (s *GormStore) ResolveContact(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "GormStore.ResolveContact"
	user := models.User{ID: userID}
	if result := s.db.WithContext(ctx).First(&user); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
	}
	return user.Email, nil
}

func patchToUpdates(patch Patch) map[string]any {
	updates := make(map[string]any)
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.CurrentPrice != nil {
		updates["current_price"] = *patch.CurrentPrice
	}
	if patch.HighestBidderID != nil {
		updates["highest_bidder_id"] = *patch.HighestBidderID
	}
	if patch.HighestBidderEmail != nil {
		updates["highest_bidder_email"] = *patch.HighestBidderEmail
	}
	if patch.WinnerID != nil {
		updates["winner_id"] = *patch.WinnerID
	}
	if patch.FinalPrice != nil {
		updates["final_price"] = *patch.FinalPrice
	}
	if patch.PaymentDeadline != nil {
		updates["payment_deadline"] = *patch.PaymentDeadline
	}
	return updates
}
