package user

import (
	"blog-account-server/internal/domain"
)

// UserModel user 表的存储形态；业务代码只接触 domain.User
type UserModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement;column:id"`
	Username     string `gorm:"column:username;size:120;not null;uniqueIndex:index__username"`
	Password     string `gorm:"column:password;size:120;not null"`
	Role         string `gorm:"column:role;size:20;not null;default:USER"`
	RegisterTime int64  `gorm:"column:register_time;not null"`
	UpdateTime   int64  `gorm:"column:update_time;not null"`
	Email        string `gorm:"column:email;size:255;index"`
	Phone        string `gorm:"column:phone;size:255"` // 开启 crypto.field_key 时为密文
	Enabled      bool   `gorm:"column:enabled;not null;default:false"`
	Locked       bool   `gorm:"column:locked;not null;default:false"`
	Canceled     bool   `gorm:"column:account_canceled;not null;default:false"`
}

func (UserModel) TableName() string { return "user" }

// ToDomain 存储形态 → 业务形态
func (m UserModel) ToDomain() domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Password:     m.Password,
		Role:         domain.Role(m.Role),
		RegisterTime: m.RegisterTime,
		UpdateTime:   m.UpdateTime,
		Email:        m.Email,
		Phone:        m.Phone,
		Enabled:      m.Enabled,
		Locked:       m.Locked,
		Canceled:     m.Canceled,
	}
}

// FromDomain 业务形态 → 存储形态
func FromDomain(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Password:     u.Password,
		Role:         string(u.Role),
		RegisterTime: u.RegisterTime,
		UpdateTime:   u.UpdateTime,
		Email:        u.Email,
		Phone:        u.Phone,
		Enabled:      u.Enabled,
		Locked:       u.Locked,
		Canceled:     u.Canceled,
	}
}

// RegisterTokenModel register_verification_token 表
type RegisterTokenModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement;column:id"`
	Token      string `gorm:"column:token;size:120;not null;uniqueIndex"`
	UserID     int64  `gorm:"column:user_id;not null;index"`
	ExpiryTime int64  `gorm:"column:expiry_time;not null"`
	Used       bool   `gorm:"column:used;not null;default:false"`
}

func (RegisterTokenModel) TableName() string { return "register_verification_token" }

func (m RegisterTokenModel) ToDomain() domain.RegisterToken {
	return domain.RegisterToken{
		ID: m.ID, Token: m.Token, UserID: m.UserID, ExpiryTime: m.ExpiryTime, Used: m.Used,
	}
}

func TokenFromDomain(t domain.RegisterToken) RegisterTokenModel {
	return RegisterTokenModel{
		ID: t.ID, Token: t.Token, UserID: t.UserID, ExpiryTime: t.ExpiryTime, Used: t.Used,
	}
}

// Models AutoMigrate 用
func Models() []any {
	return []any{&UserModel{}, &RegisterTokenModel{}}
}
