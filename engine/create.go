package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toybid/models"
)

// CreateAuctionParams 是建立拍賣的參數
type CreateAuctionParams struct {
	OwnerID             uuid.UUID
	Name                string
	Description         string
	Category            string
	StartingPrice       int64
	MinimumBidIncrement int64         // 0表示使用預設值
	Duration            time.Duration // 0表示使用預設值
}

// CreateAuction 建立一筆新的拍賣
// 描述會先經過HTML清洗，拍賣以 active 狀態與等於起標價的目前價格建立
func (e *Engine) CreateAuction(ctx context.Context, params CreateAuctionParams, now time.Time) (*models.Auction, error) {
	const op = "Engine.CreateAuction"
	if params.Name == "" || params.StartingPrice <= 0 || params.OwnerID == uuid.Nil {
		return nil, ErrMissingFields
	}
	if !models.ValidCategory(params.Category) {
		return nil, ErrInvalidCategory
	}
	if params.MinimumBidIncrement <= 0 {
		params.MinimumBidIncrement = e.config.DefaultMinIncrement
	}
	if params.Duration <= 0 {
		params.Duration = e.config.DefaultDuration
	}

	auction := &models.Auction{
		ID:                  uuid.New(),
		OwnerID:             params.OwnerID,
		Name:                params.Name,
		Description:         e.htmlChecker.Sanitize(params.Description),
		Category:            params.Category,
		Status:              models.AuctionActive,
		StartingPrice:       params.StartingPrice,
		CurrentPrice:        params.StartingPrice,
		MinimumBidIncrement: params.MinimumBidIncrement,
		ExpiresAt:           now.Add(params.Duration),
	}
	if err := e.store.Create(ctx, auction); err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction, err=%w", op, err)
	}
	return auction, nil
}
