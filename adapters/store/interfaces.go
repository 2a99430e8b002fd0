package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"toybid/models"
)

var (
	// ErrNotFound 表示拍賣不存在
	ErrNotFound = errors.New("auction not found")
	// ErrVersionConflict 表示條件更新因版本不符而失敗，呼叫端需要重新讀取後重試
	ErrVersionConflict = errors.New("auction version conflict")
)

// Patch 描述一次對拍賣的條件更新
// 只有非nil的欄位會被寫入；History若非nil，會在同一個交易中附加一筆歷史紀錄
type Patch struct {
	Status             *models.AuctionStatus
	CurrentPrice       *int64
	HighestBidderID    *uuid.UUID
	HighestBidderEmail *string
	WinnerID           *uuid.UUID
	FinalPrice         *int64
	PaymentDeadline    *time.Time

	History *models.HistoryEntry
}

// IAuctionStore 定義了拍賣儲存層的操作介面
// 所有狀態變更都以 version 的 compare-and-swap 實作，確保並行出價不會互相覆蓋
type IAuctionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	Create(ctx context.Context, auction *models.Auction) error
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedVersion uint64, patch Patch) error
	AppendBid(ctx context.Context, bid *models.Bid, expectedVersion uint64, bidderEmail string) error
	FindExpiredActive(ctx context.Context, now time.Time) ([]models.Auction, error)
	FindActive(ctx context.Context) ([]models.Auction, error)
	FindPaymentOverdue(ctx context.Context, now time.Time) ([]models.Auction, error)
	ListBidsByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	ListHistory(ctx context.Context, auctionID uuid.UUID) ([]models.HistoryEntry, error)
}

// IContactResolver 定義了聯絡資訊解析的操作介面
type IContactResolver interface {
	ResolveContact(ctx context.Context, userID uuid.UUID) (string, error)
}
