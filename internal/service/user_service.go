package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"blog-account-server/internal/domain"
	"blog-account-server/pkg/utils"
)

const MinPasswordLen = 8

type UserService struct {
	users domain.UserRepository
	log   *zap.Logger
}

func NewUserService(users domain.UserRepository, l *zap.Logger) *UserService {
	return &UserService{users: users, log: l.With(zap.String("service", "user"))}
}

func (s *UserService) Get(ctx context.Context, id int64) (domain.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, q domain.UserQuery) ([]domain.User, int64, error) {
	return s.users.List(ctx, q)
}

// ProfileInput nil 表示不修改
type ProfileInput struct {
	Email *string
	Phone *string
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (domain.User, error) {
	return s.modify(ctx, id, func(u *domain.User) (bool, error) {
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if err := validateEmail(email); err != nil {
				return false, err
			}
			if email != u.Email && email != "" {
				if err := ensureEmailFree(ctx, s.users, email, u.ID); err != nil {
					return false, err
				}
			}
			u.Email = email
		}
		if in.Phone != nil {
			u.Phone = strings.TrimSpace(*in.Phone)
		}
		return true, nil
	})
}

func (s *UserService) ChangePassword(ctx context.Context, id int64, oldPw, newPw string) error {
	var h string
	_, err := s.modify(ctx, id, func(u *domain.User) (bool, error) {
		if !utils.CheckPassword(oldPw, u.Password) {
			return false, domain.ErrInvalidCredential
		}
		if h == "" {
			if err := validatePassword(newPw); err != nil {
				return false, err
			}
			var err error
			if h, err = utils.HashPassword(newPw); err != nil {
				return false, fmt.Errorf("hash password: %w", err)
			}
		}
		u.Password = h
		return true, nil
	})
	if err != nil {
		return err
	}
	s.log.Info("password changed", zap.Int64("uid", id))
	return nil
}

// maxModifyAttempts 乐观锁冲突时的重试上限
const maxModifyAttempts = 3

// modify 读-改-写；写入以读到的 updateTime 为条件，被并发修改时重读再改。
// fn 返回 false 表示无需写入。
func (s *UserService) modify(ctx context.Context, id int64, fn func(u *domain.User) (bool, error)) (domain.User, error) {
	var stale *domain.StaleError
	for attempt := 1; ; attempt++ {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		changed, err := fn(&u)
		if err != nil || !changed {
			return u, err
		}
		out, err := s.users.Update(ctx, u)
		if errors.As(err, &stale) && attempt < maxModifyAttempts {
			s.log.Debug("concurrent user update, retrying", zap.Int64("uid", id), zap.Int("attempt", attempt))
			continue
		}
		return out, err
	}
}

// Cancel 本人注销，需要再次确认密码；终态
func (s *UserService) Cancel(ctx context.Context, id int64, password string) (domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !utils.CheckPassword(password, u.Password) {
		return domain.User{}, domain.ErrInvalidCredential
	}
	out, err := s.users.SetCanceled(ctx, id, true)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("account canceled", zap.Int64("uid", id))
	return out, nil
}

// 以下为管理端操作

func (s *UserService) SetEnabled(ctx context.Context, id int64, enabled bool) (domain.User, error) {
	u, err := s.users.SetEnabled(ctx, id, enabled)
	if err == nil {
		s.log.Info("user enabled changed", zap.Int64("uid", id), zap.Bool("enabled", enabled))
	}
	return u, err
}

func (s *UserService) SetLocked(ctx context.Context, id int64, locked bool) (domain.User, error) {
	u, err := s.users.SetLocked(ctx, id, locked)
	if err == nil {
		s.log.Info("user lock changed", zap.Int64("uid", id), zap.Bool("locked", locked))
	}
	return u, err
}

func (s *UserService) SetCanceled(ctx context.Context, id int64, canceled bool) (domain.User, error) {
	u, err := s.users.SetCanceled(ctx, id, canceled)
	if err == nil {
		s.log.Info("user canceled by admin", zap.Int64("uid", id))
	}
	return u, err
}

func (s *UserService) SetRole(ctx context.Context, id int64, role string) (domain.User, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return domain.User{}, err
	}
	out, err := s.modify(ctx, id, func(u *domain.User) (bool, error) {
		if u.Role == r {
			return false, nil
		}
		u.Role = r
		return true, nil
	})
	if err == nil {
		s.log.Info("user role changed", zap.Int64("uid", id), zap.String("role", string(r)))
	}
	return out, err
}

func validatePassword(pw string) error {
	switch {
	case len([]rune(pw)) < MinPasswordLen:
		return &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("at least %d characters", MinPasswordLen)}
	case len(pw) > utils.MaxPasswordBytes:
		return &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("at most %d bytes", utils.MaxPasswordBytes)}
	}
	return nil
}

// validateEmail 允许为空；格式由 API 层 binding 细查
func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > domain.MaxEmailLen {
		return &domain.ValidationError{Field: "email", Reason: "too long"}
	}
	if at := strings.IndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return &domain.ValidationError{Field: "email", Reason: "malformed"}
	}
	return nil
}

// ensureEmailFree 邮箱可作为登录名，因此保持唯一
func ensureEmailFree(ctx context.Context, users domain.UserRepository, email string, selfID int64) error {
	other, err := users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != selfID:
		return &domain.ConflictError{Resource: "user", Field: "email", Value: email}
	}
	return nil
}
