package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/setting"
	"blog-account-server/pkg/utils"
)

// ActivationNotifier 把激活链接送达用户（邮件等）
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, u domain.User, link string, expiresAt time.Time) error
}

// LogNotifier 只写日志，未接入邮件时使用
type LogNotifier struct{ log *zap.Logger }

func NewLogNotifier(l *zap.Logger) *LogNotifier {
	return &LogNotifier{log: l.With(zap.String("component", "activation"))}
}

func (n *LogNotifier) NotifyActivation(_ context.Context, u domain.User, link string, expiresAt time.Time) error {
	n.log.Info("activation link issued",
		zap.Int64("uid", u.ID),
		zap.String("username", u.Username),
		zap.String("link", link),
		zap.Time("expires_at", expiresAt))
	return nil
}

func (s *AuthService) sendActivation(ctx context.Context, u domain.User) error {
	expires := s.now().Add(s.policy.ActivationTTL)
	tok, err := s.tokens.Create(ctx, domain.RegisterToken{
		Token:      utils.NewToken(),
		UserID:     u.ID,
		ExpiryTime: expires.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("create activation token: %w", err)
	}
	link := activationLink(setting.String(ctx, s.settings, setting.KeyActivationURL, ""), tok.Token)
	return s.notifier.NotifyActivation(ctx, u, link, expires)
}

func activationLink(base, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Activate 校验顺序：不存在 → 已使用 → 已过期 → 用户已注销 → 已激活
func (s *AuthService) Activate(ctx context.Context, token string) (domain.User, error) {
	t, err := s.tokens.FindByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, err
	}
	if t.Used {
		return domain.User{}, domain.ErrTokenUsed
	}
	if t.Expired(s.now().UnixMilli()) {
		return domain.User{}, domain.ErrTokenExpired
	}
	u, err := s.users.FindByID(ctx, t.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, err
	}
	if u.Canceled {
		return domain.User{}, domain.ErrAccountCanceled
	}
	if u.Enabled {
		return domain.User{}, &domain.ConflictError{Resource: "user", Field: "enabled", Value: "true"}
	}
	// 并发重复提交时只有一个能通过；账号状态在事务内再查一次
	u, err = s.users.Activate(ctx, u.ID, t.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("user activated", zap.Int64("uid", u.ID))
	return u, nil
}

// ResendActivation 为未激活账号重新签发令牌
func (s *AuthService) ResendActivation(ctx context.Context, identity string) error {
	u, err := s.findByIdentity(ctx, identity)
	if err != nil {
		return err
	}
	if u.Canceled {
		return domain.ErrAccountCanceled
	}
	if u.Enabled {
		return &domain.ConflictError{Resource: "user", Field: "enabled", Value: "true"}
	}
	// 激活过又被禁用的账号只能由管理员恢复
	redeemed, err := s.tokens.HasRedeemed(ctx, u.ID)
	if err != nil {
		return err
	}
	if redeemed {
		return domain.ErrAccountDisabled
	}
	return s.sendActivation(ctx, u)
}
