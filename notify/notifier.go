package notify

import (
	"context"
	"log/slog"
)

// INotifier 定義了通知投遞的外部邊界
// 實際的投遞方式(email、站內通知等)由外部系統實作
type INotifier interface {
	Send(ctx context.Context, intent Intent) error
}

// LogNotifier 實現了 INotifier，只將通知寫入日誌
// 作為尚未接上實際投遞系統時的預設實作
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier 建立一個新的 LogNotifier 實例
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("caller", "LogNotifier"))}
}

func (n *LogNotifier) Send(ctx context.Context, intent Intent) error {
	n.logger.Info("Deliver notification",
		slog.String("type", string(intent.Type)),
		slog.String("recipient", intent.Recipient),
		slog.String("auctionID", intent.AuctionID.String()),
		slog.Int64("amount", intent.Amount),
	)
	return nil
}
