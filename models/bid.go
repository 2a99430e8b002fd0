package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bid 代表拍賣的出價紀錄
// 出價一旦建立就不可變更，與拍賣價格更新在同一個交易中寫入
type Bid struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	BidderID  uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Amount    int64     `gorm:"type:bigint;not null;<-:create"`

	// 外鍵關聯
	Bidder  User `gorm:"foreignKey:BidderID"`
	Auction Auction
}
