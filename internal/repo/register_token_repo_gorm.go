package repo

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/user"
)

type RegisterTokenRepo struct{ db *gorm.DB }

func NewRegisterTokenRepo(db *gorm.DB) *RegisterTokenRepo { return &RegisterTokenRepo{db: db} }

var _ domain.RegisterTokenRepository = (*RegisterTokenRepo)(nil)

func (r *RegisterTokenRepo) Create(ctx context.Context, t domain.RegisterToken) (domain.RegisterToken, error) {
	m := user.TokenFromDomain(t)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isDupKey(err) {
			return domain.RegisterToken{}, &domain.ConflictError{Resource: "register token", Field: "token", Value: t.Token}
		}
		return domain.RegisterToken{}, err
	}
	return m.ToDomain(), nil
}

func (r *RegisterTokenRepo) FindByToken(ctx context.Context, token string) (domain.RegisterToken, error) {
	var m user.RegisterTokenModel
	err := r.db.WithContext(ctx).Where("token = ?", token).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.RegisterToken{}, &domain.NotFoundError{Resource: "register token", Key: token}
	}
	if err != nil {
		return domain.RegisterToken{}, err
	}
	return m.ToDomain(), nil
}

func (r *RegisterTokenRepo) HasRedeemed(ctx context.Context, userID int64) (bool, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&user.RegisterTokenModel{}).
		Where("user_id = ? AND used = ?", userID, true).Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// markUsed 条件更新保证只能用一次；已用返回 ErrTokenUsed。
// tx 由调用方的事务提供。
func markUsed(tx *gorm.DB, id, userID int64) error {
	res := tx.Model(&user.RegisterTokenModel{}).
		Where("id = ? AND user_id = ? AND used = ?", id, userID, false).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := tx.Model(&user.RegisterTokenModel{}).Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Resource: "register token", Key: strconv.FormatInt(id, 10)}
	}
	return domain.ErrTokenUsed
}

// revokePending 删除用户尚未核销的令牌
func revokePending(tx *gorm.DB, userID int64) error {
	return tx.Where("user_id = ? AND used = ?", userID, false).Delete(&user.RegisterTokenModel{}).Error
}
