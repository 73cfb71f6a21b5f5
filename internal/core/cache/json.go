package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetOrLoadJSON 以 JSON 缓存 load 的结果；load 出错不写缓存
func GetOrLoadJSON[T any](
	c *Cache,
	ctx context.Context,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (*T, error),
) (*T, error) {
	if c == nil {
		return load(ctx)
	}
	b, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, e := load(ctx)
		if e != nil {
			return nil, e
		}
		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}
	var out T
	if string(b) == "null" || json.Unmarshal(b, &out) != nil {
		// 脏数据：删掉并回源
		_ = c.Delete(ctx, key)
		return load(ctx)
	}
	return &out, nil
}
