package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"blog-account-server/internal/core/auth"
	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/setting"
	"blog-account-server/pkg/utils"
)

const (
	DefaultTokenTTL      = 7 * 24 * time.Hour
	DefaultActivationTTL = 24 * time.Hour
)

// Policy 注册/登录策略（来自 account 配置段）
type Policy struct {
	AutoEnable     bool          // 非首个用户注册后直接启用
	FirstUserAdmin bool          // 首个用户为 ADMIN 且直接启用
	RevealState    bool          // false 时 禁用/锁定/注销 一律报 InvalidCredential
	ActivationTTL  time.Duration // 激活令牌有效期
}

type AuthService struct {
	users    domain.UserRepository
	tokens   domain.RegisterTokenRepository
	settings setting.Provider
	jwt      *auth.JWTer
	notifier ActivationNotifier
	policy   Policy
	log      *zap.Logger
	now      func() time.Time

	dummyHash string
}

type AuthOption func(*AuthService)

func WithNow(now func() time.Time) AuthOption { return func(s *AuthService) { s.now = now } }

func WithNotifier(n ActivationNotifier) AuthOption {
	return func(s *AuthService) { s.notifier = n }
}

func NewAuthService(
	users domain.UserRepository,
	tokens domain.RegisterTokenRepository,
	settings setting.Provider,
	jwter *auth.JWTer,
	policy Policy,
	l *zap.Logger,
	opts ...AuthOption,
) (*AuthService, error) {
	if policy.ActivationTTL <= 0 {
		policy.ActivationTTL = DefaultActivationTTL
	}
	s := &AuthService{
		users:    users,
		tokens:   tokens,
		settings: settings,
		jwt:      jwter,
		policy:   policy,
		log:      l.With(zap.String("service", "auth")),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(l)
	}
	// 未知用户也走一次 bcrypt，避免通过耗时区分用户是否存在
	h, err := utils.HashPassword("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = h
	return s, nil
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
}

type RegisterResult struct {
	User               domain.User
	ActivationRequired bool
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	switch {
	case username == "":
		return RegisterResult{}, &domain.ValidationError{Field: "username", Reason: "required"}
	case strings.Contains(username, "@"):
		// 含 @ 的登录名按邮箱解析
		return RegisterResult{}, &domain.ValidationError{Field: "username", Reason: "must not contain @"}
	}
	if err := validatePassword(in.Password); err != nil {
		return RegisterResult{}, err
	}
	if err := validateEmail(email); err != nil {
		return RegisterResult{}, err
	}
	if email != "" {
		if err := ensureEmailFree(ctx, s.users, email, 0); err != nil {
			return RegisterResult{}, err
		}
	}

	hasUsers, err := s.users.HasUsers(ctx)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("count users: %w", err)
	}
	first := !hasUsers && s.policy.FirstUserAdmin

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		Username: username,
		Password: hash,
		Role:     domain.RoleUser,
		Email:    email,
		Enabled:  first || s.policy.AutoEnable,
	}
	if first {
		u.Role = domain.RoleAdmin
	}
	u, err = s.users.Create(ctx, u)
	if err != nil {
		return RegisterResult{}, err
	}
	s.log.Info("user registered",
		zap.Int64("uid", u.ID), zap.String("role", string(u.Role)), zap.Bool("enabled", u.Enabled))

	res := RegisterResult{User: u, ActivationRequired: !u.Enabled}
	if res.ActivationRequired {
		if err := s.sendActivation(ctx, u); err != nil {
			// 账号已创建；用户可通过 resend 重新获取
			s.log.Error("send activation failed", zap.Int64("uid", u.ID), zap.Error(err))
		}
	}
	return res, nil
}

// Authenticate 解析用户 → 校验密码 → 要求 Active
func (s *AuthService) Authenticate(ctx context.Context, identity, password string) (domain.User, error) {
	u, err := s.findByIdentity(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) {
		utils.CheckPassword(password, s.dummyHash)
		observeAuth(domain.ErrInvalidCredential)
		return domain.User{}, domain.ErrInvalidCredential
	}
	if err != nil {
		return domain.User{}, err
	}
	if !utils.CheckPassword(password, u.Password) {
		observeAuth(domain.ErrInvalidCredential)
		return domain.User{}, domain.ErrInvalidCredential
	}
	if err := u.StateError(); err != nil {
		observeAuth(err)
		if !s.policy.RevealState {
			return domain.User{}, domain.ErrInvalidCredential
		}
		return domain.User{}, err
	}
	observeAuth(nil)
	return u, nil
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

func (s *AuthService) Login(ctx context.Context, identity, password string) (LoginResult, error) {
	u, err := s.Authenticate(ctx, identity, password)
	if err != nil {
		return LoginResult{}, err
	}
	tok, exp, err := s.tokenPolicy(ctx).Issue(u.ID, string(u.Role), u.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.log.Info("user login", zap.Int64("uid", u.ID))
	return LoginResult{Token: tok, ExpiresAt: exp, User: u}, nil
}

// VerifyToken 用 token 所属用户的密钥验签，并要求账号仍是 Active；角色以库中为准
func (s *AuthService) VerifyToken(ctx context.Context, token string) (domain.User, error) {
	uid, err := s.jwt.Subject(token)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.users.FindByID(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.tokenPolicy(ctx).Parse(token, u.Password); err != nil {
		return domain.User{}, err
	}
	if err := u.StateError(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *AuthService) tokenPolicy(ctx context.Context) *auth.JWTer {
	issuer := setting.String(ctx, s.settings, setting.KeyTokenIssuer, s.jwt.Issuer)
	def := s.jwt.TTL
	if def <= 0 {
		def = DefaultTokenTTL
	}
	ttl := setting.Seconds(ctx, s.settings, s.log, setting.KeyTokenExpire, def)
	return s.jwt.WithPolicy(issuer, ttl)
}

func (s *AuthService) findByIdentity(ctx context.Context, identity string) (domain.User, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.User{}, &domain.NotFoundError{Resource: "user", Key: identity}
	}
	if strings.Contains(identity, "@") {
		return s.users.FindByEmail(ctx, identity)
	}
	return s.users.FindByUsername(ctx, identity)
}
