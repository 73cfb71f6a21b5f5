package domain

import (
	"context"
	"strings"
)

// 字段长度上限（与 user 表列宽一致）
const (
	MaxUsernameLen = 120
	MaxPasswordLen = 120
	MaxRoleLen     = 20
	MaxEmailLen    = 255
	MaxPhoneLen    = 255
)

type Role string

const (
	RoleUser     Role = "USER"
	RoleReviewer Role = "REVIEWER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// ParseRole 大小写不敏感
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Reason: "unknown role " + s}
	}
	return r, nil
}

// User 业务侧用户（与存储形态 user.UserModel 分离）
// Password 为哈希值；RegisterTime/UpdateTime 为毫秒时间戳。
type User struct {
	ID           int64
	Username     string
	Password     string
	Role         Role
	RegisterTime int64
	UpdateTime   int64
	Email        string
	Phone        string
	Enabled      bool
	Locked       bool
	Canceled     bool
}

// AccountState 由三个独立标志推导，不落库
type AccountState int

const (
	StateActive AccountState = iota
	StateDisabled
	StateLocked
	StateCanceled
)

func (s AccountState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	case StateLocked:
		return "locked"
	case StateCanceled:
		return "canceled"
	}
	return "unknown"
}

// State 优先级：canceled > locked > disabled
func (u User) State() AccountState {
	switch {
	case u.Canceled:
		return StateCanceled
	case u.Locked:
		return StateLocked
	case !u.Enabled:
		return StateDisabled
	default:
		return StateActive
	}
}

func (u User) IsActive() bool { return u.State() == StateActive }

// StateError 非 Active 状态对应的认证错误；Active 返回 nil
func (u User) StateError() error {
	switch u.State() {
	case StateCanceled:
		return ErrAccountCanceled
	case StateLocked:
		return ErrAccountLocked
	case StateDisabled:
		return ErrAccountDisabled
	}
	return nil
}

// Validate 检查字段长度与必填项
func (u User) Validate() error {
	switch {
	case strings.TrimSpace(u.Username) == "":
		return &ValidationError{Field: "username", Reason: "required"}
	case len(u.Username) > MaxUsernameLen:
		return &ValidationError{Field: "username", Reason: "too long"}
	case u.Password == "":
		return &ValidationError{Field: "password", Reason: "required"}
	case len(u.Password) > MaxPasswordLen:
		return &ValidationError{Field: "password", Reason: "too long"}
	case !u.Role.Valid():
		return &ValidationError{Field: "role", Reason: "unknown role " + string(u.Role)}
	case len(u.Email) > MaxEmailLen:
		return &ValidationError{Field: "email", Reason: "too long"}
	case len(u.Phone) > MaxPhoneLen:
		return &ValidationError{Field: "phone", Reason: "too long"}
	}
	return nil
}

type UserRepository interface {
	Create(ctx context.Context, u User) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, q UserQuery) ([]User, int64, error)
	// Update 以 u.UpdateTime 做乐观锁（0 表示不校验）；过期返回 *StaleError
	Update(ctx context.Context, u User) (User, error)
	// Activate 同一事务内核销激活令牌并启用账号
	Activate(ctx context.Context, id, tokenID int64) (User, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) (User, error)
	SetLocked(ctx context.Context, id int64, locked bool) (User, error)
	SetCanceled(ctx context.Context, id int64, canceled bool) (User, error)
	HasUsers(ctx context.Context) (bool, error)
}

type UserQuery struct {
	Offset int
	Limit  int
	Q      string // username/email 模糊匹配
}
