package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cooldownScript 原子性地檢查並啟動冷卻
//  KEYS[1] - 冷卻鍵
//  ARGV[1] - 冷卻時間(毫秒)
//
// 返回值:
//  0  - 冷卻啟動成功，允許操作
//  >0 - 冷卻尚未結束，返回剩餘毫秒數
var cooldownScript = redis.NewScript(`
-- 檢查冷卻鍵是否存在
local remain = redis.call('PTTL', KEYS[1])
if remain > 0 then
    return remain
end

-- 啟動新的冷卻
redis.call('SET', KEYS[1], 1, 'PX', tonumber(ARGV[1]))
return 0
`)

// CooldownGuard 實現了 ICooldownGuard，以 Redis 上的 Lua 腳本提供跨實例的冷卻檢查
type CooldownGuard struct {
	client *redis.Client
	prefix string
}

// NewCooldownGuard 建立一個新的 CooldownGuard 實例
func NewCooldownGuard(client *redis.Client, prefix string) (ICooldownGuard, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	return &CooldownGuard{client: client, prefix: prefix}, nil
}

// Check 回報冷卻剩餘時間，不會啟動或延長冷卻
// 冷卻中返回剩餘時間，未在冷卻中返回零
func (g *CooldownGuard) Check(ctx context.Context, key string) (time.Duration, error) {
	const op = "CooldownGuard.Check"
	remain, err := g.client.PTTL(ctx, g.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to read cooldown ttl, err=%w", op, err)
	}
	// 鍵不存在或沒有過期時間時PTTL為負值
	if remain < 0 {
		return 0, nil
	}
	return remain, nil
}

// Arm 檢查冷卻狀態並在允許時啟動新的冷卻
// 返回是否允許操作以及冷卻剩餘時間；檢查與啟動在腳本內是原子性的
func (g *CooldownGuard) Arm(ctx context.Context, key string, window time.Duration) (bool, time.Duration, error) {
	const op = "CooldownGuard.Arm"
	if window <= 0 {
		return true, 0, nil
	}
	remain, err := cooldownScript.Run(ctx, g.client, []string{g.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("[%s] Fail to run cooldown script, err=%w", op, err)
	}
	if remain > 0 {
		return false, time.Duration(remain) * time.Millisecond, nil
	}
	return true, 0, nil
}
