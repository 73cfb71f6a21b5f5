package utils

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes bcrypt 只接受 72 字节以内的明文
const MaxPasswordBytes = 72

// PasswordCost 测试里可调低
var PasswordCost = bcrypt.DefaultCost

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(pw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pw)) == nil
}

// NewToken 激活令牌等一次性随机串
func NewToken() string { return uuid.NewString() }
