package engine

import "time"

// Config 是引擎的配置
// 冷卻時間與自我加價政策在歷史版本中並不一致，因此全部做成可配置項
type Config struct {
	// PaymentWindow 是結標或重新指派後給得標者的付款時間
	PaymentWindow time.Duration
	// BidCooldown 是同一出價者對同一拍賣連續出價的冷卻時間，0表示不限制
	BidCooldown time.Duration
	// AllowSelfOutbid 允許目前最高出價者繼續對自己加價
	AllowSelfOutbid bool
	// DefaultDuration 是建立拍賣時未指定時間的預設拍賣長度
	DefaultDuration time.Duration
	// DefaultMinIncrement 是未指定時的預設最低加價幅度
	DefaultMinIncrement int64
	// MaxCommitRetries 是輸給並行更新後重新驗證並重試的次數上限
	MaxCommitRetries int

	Redis RedisConfig
}

type RedisConfig struct {
	KeyPrefix          string
	NotificationStream string
	ConsumerGroup      string
}

func (c *Config) applyDefaults() {
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 5 * time.Minute
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 5 * time.Minute
	}
	if c.DefaultMinIncrement <= 0 {
		c.DefaultMinIncrement = 10
	}
	if c.MaxCommitRetries <= 0 {
		c.MaxCommitRetries = 3
	}
	if c.Redis.NotificationStream == "" {
		c.Redis.NotificationStream = "toybid-notification-stream"
	}
	if c.Redis.ConsumerGroup == "" {
		c.Redis.ConsumerGroup = "toybid-notifier"
	}
}
