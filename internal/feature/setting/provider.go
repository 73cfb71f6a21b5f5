package setting

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"blog-account-server/internal/domain"
)

// Provider 按 key 读取配置；ok=false 表示未配置
type Provider interface {
	Lookup(ctx context.Context, key string) (string, bool)
}

// MapProvider 本地配置文件（viper）展开后的 key/value
type MapProvider map[string]string

func (m MapProvider) Lookup(_ context.Context, key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// StoreProvider 读 system_setting；读库失败按未配置处理并记日志
type StoreProvider struct {
	repo domain.SettingRepository
	log  *zap.Logger
}

func NewStoreProvider(repo domain.SettingRepository, l *zap.Logger) *StoreProvider {
	return &StoreProvider{repo: repo, log: l.With(zap.String("component", "setting"))}
}

func (p *StoreProvider) Lookup(ctx context.Context, key string) (string, bool) {
	s, ok, err := p.repo.Get(ctx, key)
	if err != nil {
		p.log.Error("read setting failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if !ok || s.Value == nil {
		return "", false
	}
	return *s.Value, true
}

// Chain 依次查找，先命中者为准
type Chain []Provider

func (c Chain) Lookup(ctx context.Context, key string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.Lookup(ctx, key); ok {
			return v, true
		}
	}
	return "", false
}

func String(ctx context.Context, p Provider, key, def string) string {
	if v, ok := p.Lookup(ctx, key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// Seconds 值为正整数秒；非法值回退 def 并记日志
func Seconds(ctx context.Context, p Provider, l *zap.Logger, key string, def time.Duration) time.Duration {
	v, ok := p.Lookup(ctx, key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		l.Error("invalid duration setting, using default",
			zap.String("key", key), zap.String("value", v), zap.Duration("default", def))
		return def
	}
	return time.Duration(n) * time.Second
}

// Seeder 仅在缺失时写入
type Seeder interface {
	SetIfAbsent(ctx context.Context, key string, value *string) (bool, error)
}

// Seed 把本地配置里的运行期 key 写入库（已存在的不覆盖，库中修改优先）
func Seed(ctx context.Context, s Seeder, local Provider, l *zap.Logger) error {
	for _, key := range RuntimeKeys {
		v, ok := local.Lookup(ctx, key)
		if !ok {
			continue
		}
		wrote, err := s.SetIfAbsent(ctx, key, &v)
		if err != nil {
			return err
		}
		if wrote {
			l.Info("setting seeded", zap.String("key", key))
		}
	}
	return nil
}
