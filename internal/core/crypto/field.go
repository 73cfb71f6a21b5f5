// Package crypto 字段级加密（AES-256-GCM），用于手机号等敏感列。
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	KeySize   = 32
	NonceSize = 12

	// 密文前缀，用于区分历史明文数据
	cipherPrefix = "enc:"
)

var (
	ErrInvalidKeySize    = errors.New("field key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// FieldCipher 加解密单个字符串字段；nil 接收者等价于不加密
type FieldCipher struct {
	gcm cipher.AEAD
}

func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &FieldCipher{gcm: gcm}, nil
}

// NewFieldCipherFromHex 空串返回 nil（关闭加密）
func NewFieldCipherFromHex(hexKey string) (*FieldCipher, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode field key: %w", err)
	}
	return NewFieldCipher(key)
}

// Encrypt 空串不加密；输出 enc:base64(nonce||ciphertext||tag)
func (f *FieldCipher) Encrypt(plain string) (string, error) {
	if f == nil || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := f.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return cipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 无前缀的值按明文返回
func (f *FieldCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, cipherPrefix) {
		return stored, nil
	}
	if f == nil {
		return "", ErrDecryptionFailed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, cipherPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < NonceSize+f.gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := f.gcm.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
