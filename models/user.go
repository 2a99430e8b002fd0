package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表拍賣系統中的使用者身份紀錄
// 引擎只讀取聯絡資訊，身份的建立與驗證由外部系統負責
type User struct {
	gorm.Model

	ID    uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Name  string    `gorm:"type:varchar(255);not null;<-:create"`
	Email string    `gorm:"type:varchar(255);not null;<-:create"`
}
