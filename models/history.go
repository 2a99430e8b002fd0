package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryKind 代表拍賣歷史事件的種類
type HistoryKind string

const (
	HistoryBid      HistoryKind = "BID"
	HistoryEnd      HistoryKind = "END"
	HistoryReassign HistoryKind = "REASSIGN"
)

// HistoryEntry 代表拍賣狀態變更的審計紀錄
// 只允許附加，既有的紀錄永遠不會被修改
type HistoryEntry struct {
	gorm.Model

	ID        uuid.UUID   `gorm:"type:uuid;primaryKey;<-:create"`
	AuctionID uuid.UUID   `gorm:"type:uuid;not null;<-:create"`
	Kind      HistoryKind `gorm:"type:varchar(16);not null;<-:create"`
	ActorID   *uuid.UUID  `gorm:"type:uuid;<-:create"`
	Amount    int64       `gorm:"type:bigint;not null;<-:create"`
}
