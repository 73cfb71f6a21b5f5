package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache redis + singleflight；nil *Cache 表示关闭缓存，直接回源
type Cache struct {
	RDB    *redis.Client
	prefix string
	sf     singleflight.Group
}

// New addr 为空时返回 nil
func New(addr, pass string, db int, prefix string) *Cache {
	if addr == "" {
		return nil
	}
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), prefix)
}

func NewWithClient(rdb *redis.Client, prefix string) *Cache {
	return &Cache{RDB: rdb, prefix: prefix}
}

func (c *Cache) key(k string) string { return c.prefix + k }

// Ping 启动时探活；失败只告警，读路径会自动降级
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.RDB.Ping(ctx).Err()
}

// genTTL 代数 key 的存活时间，需长于任何一次回源
const genTTL = 30 * time.Minute

// setIfGen 只有代数没变（回源期间没有 Delete）时才回填
var setIfGen = redis.NewScript(`
local g = redis.call('GET', KEYS[2]) or ''
if g ~= ARGV[3] then
  return 0
end
if ARGV[2] == '0' then
  redis.call('SET', KEYS[1], ARGV[1])
else
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return 1
`)

func genKey(full string) string { return full + ":gen" }

func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return load(ctx)
	}
	full := c.key(key)
	// 先读缓存；redis 故障按未命中处理
	if b, err := c.RDB.Get(ctx, full).Bytes(); err == nil {
		return b, nil
	}
	// single flight 合并回源
	v, err, _ := c.sf.Do(full, func() (any, error) {
		// 代数须在读库之前取，Delete 在读库之后发生时回填会被拒
		gen, genErr := c.RDB.Get(ctx, genKey(full)).Result()
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		if genErr == nil || errors.Is(genErr, redis.Nil) {
			_ = setIfGen.Run(ctx, c.RDB, []string{full, genKey(full)}, b, ttl.Milliseconds(), gen).Err()
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Delete 写路径失效；忽略不存在的 key。同时推进代数，挡住并发回源写回旧值
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	_, err := c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			full := c.key(k)
			p.Del(ctx, full)
			p.Incr(ctx, genKey(full))
			p.Expire(ctx, genKey(full), genTTL)
		}
		return nil
	})
	return err
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.RDB.Close()
}
