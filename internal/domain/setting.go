package domain

import "context"

const MaxSettingKeyLen = 191

// Setting 全局 key/value；Value 为 nil 表示"未设置"（记录存在）
type Setting struct {
	ID    int64
	Key   string
	Value *string
}

// ValueOr 未设置时返回 def
func (s Setting) ValueOr(def string) string {
	if s.Value == nil {
		return def
	}
	return *s.Value
}

type SettingRepository interface {
	// Get 未知 key 返回 ok=false，不报错
	Get(ctx context.Context, key string) (Setting, bool, error)
	Set(ctx context.Context, key string, value *string) (Setting, error)
	List(ctx context.Context) ([]Setting, error)
}

// RegisterToken 注册激活令牌
type RegisterToken struct {
	ID         int64
	Token      string
	UserID     int64
	ExpiryTime int64 // 毫秒时间戳
	Used       bool
}

func (t RegisterToken) Expired(nowMillis int64) bool { return nowMillis > t.ExpiryTime }

type RegisterTokenRepository interface {
	Create(ctx context.Context, t RegisterToken) (RegisterToken, error)
	FindByToken(ctx context.Context, token string) (RegisterToken, error)
	// HasRedeemed 该用户是否核销过令牌（即曾经激活过）
	HasRedeemed(ctx context.Context, userID int64) (bool, error)
}
