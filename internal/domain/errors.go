package domain

import (
	"errors"
	"fmt"
)

// 分类哨兵：errors.Is(err, ErrNotFound) 等
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("authentication failed")
)

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Resource, e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StaleError 乐观锁失败：写入所依据的 updateTime 已被别的修改推进
type StaleError struct {
	Resource string
	Key      string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.Key)
}

func (e *StaleError) Is(target error) bool { return target == ErrConflict }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type AuthFailure int

const (
	AuthInvalidCredential AuthFailure = iota + 1
	AuthDisabled
	AuthLocked
	AuthCanceled
	AuthInvalidToken
	AuthTokenExpired
	AuthTokenUsed
)

func (k AuthFailure) String() string {
	switch k {
	case AuthInvalidCredential:
		return "invalid credentials"
	case AuthDisabled:
		return "account disabled"
	case AuthLocked:
		return "account locked"
	case AuthCanceled:
		return "account canceled"
	case AuthInvalidToken:
		return "invalid token"
	case AuthTokenExpired:
		return "token expired"
	case AuthTokenUsed:
		return "token already used"
	}
	return "authentication failed"
}

// AuthenticationError 登录/令牌失败；Kind 区分子类
type AuthenticationError struct {
	Kind AuthFailure
}

func (e *AuthenticationError) Error() string { return e.Kind.String() }

// Is 同 Kind 的 AuthenticationError 视为相等；也匹配 ErrAuth
func (e *AuthenticationError) Is(target error) bool {
	if target == ErrAuth {
		return true
	}
	var t *AuthenticationError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

var (
	ErrInvalidCredential = &AuthenticationError{Kind: AuthInvalidCredential}
	ErrAccountDisabled   = &AuthenticationError{Kind: AuthDisabled}
	ErrAccountLocked     = &AuthenticationError{Kind: AuthLocked}
	ErrAccountCanceled   = &AuthenticationError{Kind: AuthCanceled}
	ErrInvalidToken      = &AuthenticationError{Kind: AuthInvalidToken}
	ErrTokenExpired      = &AuthenticationError{Kind: AuthTokenExpired}
	ErrTokenUsed         = &AuthenticationError{Kind: AuthTokenUsed}
)

// ErrCancelTerminal 已注销账号不可恢复
var ErrCancelTerminal = &ValidationError{Field: "canceled", Reason: "account cancellation is terminal"}
