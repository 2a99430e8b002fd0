package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionStatus 代表拍賣的生命週期狀態
type AuctionStatus string

const (
	AuctionActive AuctionStatus = "active"
	AuctionEnded  AuctionStatus = "ended"
)

// Auction 代表拍賣系統中的一筆拍賣
// 包含商品資訊、起標價、目前最高出價、結標時間與付款期限等資訊
// CurrentPrice 只會單調遞增，所有寫入都必須經過 version 的條件更新
type Auction struct {
	gorm.Model

	ID                  uuid.UUID     `gorm:"type:uuid;primaryKey;<-:create"`
	OwnerID             uuid.UUID     `gorm:"type:uuid;not null;<-:create"`
	Name                string        `gorm:"type:varchar(255);not null;<-:create"`
	Description         string        `gorm:"type:text;not null;<-:create"`
	Category            string        `gorm:"type:varchar(64);not null;<-:create"`
	Status              AuctionStatus `gorm:"type:varchar(16);not null;default:active"`
	StartingPrice       int64         `gorm:"type:bigint;not null;<-:create"`
	CurrentPrice        int64         `gorm:"type:bigint;not null"`
	MinimumBidIncrement int64         `gorm:"type:bigint;not null;<-:create"`
	ExpiresAt           time.Time     `gorm:"type:timestamp with time zone;not null;<-:create"`
	HighestBidderID     *uuid.UUID    `gorm:"type:uuid"`
	HighestBidderEmail  string        `gorm:"type:varchar(255)"`
	WinnerID            *uuid.UUID    `gorm:"type:uuid"`
	FinalPrice          *int64        `gorm:"type:bigint"`
	PaymentDeadline     *time.Time    `gorm:"type:timestamp with time zone"`

	// Version 用於樂觀並行控制，每次狀態變更都會遞增
	Version uint64 `gorm:"type:bigint;not null;default:0"`

	// 外鍵關聯
	Owner   User
	Bids    []Bid          `gorm:"foreignKey:AuctionID"`
	History []HistoryEntry `gorm:"foreignKey:AuctionID"`
}
