package setting

import "blog-account-server/internal/domain"

// SettingModel system_setting 表
type SettingModel struct {
	ID    int64   `gorm:"primaryKey;autoIncrement;column:id"`
	Key   string  `gorm:"column:key;size:191;not null;uniqueIndex"`
	Value *string `gorm:"column:value;type:text"`
}

func (SettingModel) TableName() string { return "system_setting" }

func (m SettingModel) ToDomain() domain.Setting {
	return domain.Setting{ID: m.ID, Key: m.Key, Value: m.Value}
}

func FromDomain(s domain.Setting) SettingModel {
	return SettingModel{ID: s.ID, Key: s.Key, Value: s.Value}
}
