package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"blog-account-server/internal/domain"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID Subject 即用户 id
func (c *Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

// JWTer 签名密钥 = Secret + 用户密码哈希，改密码即令旧 token 失效
type JWTer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// WithPolicy 按运行期配置（issuer/有效期）派生一个副本
func (j *JWTer) WithPolicy(issuer string, ttl time.Duration) *JWTer {
	cp := *j
	cp.Issuer = issuer
	cp.TTL = ttl
	return &cp
}

func (j *JWTer) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *JWTer) key(userKey string) []byte {
	k := make([]byte, 0, len(j.Secret)+1+len(userKey))
	k = append(k, j.Secret...)
	k = append(k, ':')
	return append(k, userKey...)
}

// Issue 返回 token 与过期时间
func (j *JWTer) Issue(uid int64, role, userKey string) (string, time.Time, error) {
	now := j.now()
	exp := now.Add(j.TTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(uid, 10),
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(j.key(userKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

// Subject 未验签读取 subject，用于定位用户（再用其密钥验签）
func (j *JWTer) Subject(tokenStr string) (int64, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &c); err != nil {
		return 0, domain.ErrInvalidToken
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}

func (j *JWTer) Parse(tokenStr, userKey string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(60 * time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return j.key(userKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, domain.ErrInvalidToken
}
