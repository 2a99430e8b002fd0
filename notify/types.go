package notify

import (
	"time"

	"github.com/google/uuid"
)

// IntentType 代表通知意圖的種類
type IntentType string

const (
	BidSuccess   IntentType = "bid_success"
	AuctionEnded IntentType = "auction_ended"
	Reassigned   IntentType = "reassigned"
)

// Intent 代表引擎發出的通知意圖
// 引擎只負責發出意圖，實際的投遞由外部的通知系統處理，失敗不會影響拍賣狀態
type Intent struct {
	Type        IntentType
	Recipient   string
	AuctionID   uuid.UUID
	AuctionName string
	Amount      int64
	CreatedAt   time.Time
}
