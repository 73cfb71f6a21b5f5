package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/setting"
)

type SettingRepo struct{ db *gorm.DB }

func NewSettingRepo(db *gorm.DB) *SettingRepo { return &SettingRepo{db: db} }

var _ domain.SettingRepository = (*SettingRepo)(nil)

// key 是 MySQL 保留字，条件一律走 map 让 gorm 加引号
func byKey(key string) map[string]any { return map[string]any{"key": key} }

func (r *SettingRepo) Get(ctx context.Context, key string) (domain.Setting, bool, error) {
	var m setting.SettingModel
	err := r.db.WithContext(ctx).Where(byKey(key)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Setting{Key: key}, false, nil
	}
	if err != nil {
		return domain.Setting{}, false, err
	}
	return m.ToDomain(), true, nil
}

// Set 不存在则插入，存在则原地更新 value；并发插入撞唯一索引时退化为更新
func (r *SettingRepo) Set(ctx context.Context, key string, value *string) (domain.Setting, error) {
	switch {
	case key == "":
		return domain.Setting{}, &domain.ValidationError{Field: "key", Reason: "required"}
	case len(key) > domain.MaxSettingKeyLen:
		return domain.Setting{}, &domain.ValidationError{Field: "key", Reason: "too long"}
	}
	var m setting.SettingModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(byKey(key)).Take(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m = setting.SettingModel{Key: key, Value: value}
			// 嵌套事务即 savepoint，冲突后外层事务仍可用（postgres）
			err = tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&m).Error })
			if !isDupKey(err) {
				return err
			}
			if err := tx.Where(byKey(key)).Take(&m).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}
		m.Value = value
		return tx.Model(&setting.SettingModel{}).Where("id = ?", m.ID).Update("value", value).Error
	})
	if err != nil {
		return domain.Setting{}, err
	}
	return m.ToDomain(), nil
}

// SetIfAbsent 仅在记录不存在时写入；返回是否写入
func (r *SettingRepo) SetIfAbsent(ctx context.Context, key string, value *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&setting.SettingModel{Key: key, Value: value})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SettingRepo) List(ctx context.Context) ([]domain.Setting, error) {
	var ms []setting.SettingModel
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Setting, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ToDomain())
	}
	return out, nil
}
