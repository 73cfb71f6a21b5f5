package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"blog-account-server/internal/core/auth"
	"blog-account-server/internal/core/database"
	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/setting"
	"blog-account-server/internal/feature/user"
	"blog-account-server/internal/repo"
	"blog-account-server/pkg/utils"
)

func TestMain(m *testing.M) {
	utils.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type captureNotifier struct {
	mu    sync.Mutex
	links []string
}

func (c *captureNotifier) NotifyActivation(_ context.Context, _ domain.User, link string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link)
	return nil
}

func (c *captureNotifier) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.links) == 0 {
		return ""
	}
	return c.links[len(c.links)-1]
}

type harness struct {
	users    *repo.UserRepo
	tokens   *repo.RegisterTokenRepo
	settings *repo.SettingRepo
	auth     *AuthService
	svc      *UserService
	notifier *captureNotifier
	now      time.Time
}

func (h *harness) clock() time.Time { return h.now }

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func newHarness(t *testing.T, p Policy) *harness {
	t.Helper()
	db, err := database.NewGorm(database.Opts{Driver: "sqlite", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, append(user.Models(), &setting.SettingModel{})...))

	h := &harness{
		users:    repo.NewUserRepo(db),
		tokens:   repo.NewRegisterTokenRepo(db),
		settings: repo.NewSettingRepo(db),
		notifier: &captureNotifier{},
		now:      time.UnixMilli(1700000000000),
	}
	jwter := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "blog", TTL: DefaultTokenTTL, Now: h.clock}
	provider := setting.Chain{setting.NewStoreProvider(h.settings, zap.NewNop())}
	h.auth, err = NewAuthService(h.users, h.tokens, provider, jwter, p, zap.NewNop(),
		WithNow(h.clock), WithNotifier(h.notifier))
	require.NoError(t, err)
	h.svc = NewUserService(h.users, zap.NewNop())
	return h
}

// createUser 直接走存储层，绕开注册策略
func (h *harness) createUser(t *testing.T, name, pw string, enabled bool) domain.User {
	t.Helper()
	hash, err := utils.HashPassword(pw)
	require.NoError(t, err)
	u, err := h.users.Create(context.Background(), domain.User{
		Username: name,
		Password: hash,
		Role:     domain.RoleUser,
		Email:    name + "@x.com",
		Enabled:  enabled,
	})
	require.NoError(t, err)
	return u
}

func defaultPolicy() Policy {
	return Policy{FirstUserAdmin: true, RevealState: true}
}
