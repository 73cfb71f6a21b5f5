package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/repo"
	"blog-account-server/pkg/utils"
)

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)
	h.createUser(t, "bob", "password1", true)

	email, phone := "alice@new.com", " 123 "
	out, err := h.svc.UpdateProfile(ctx, u.ID, ProfileInput{Email: &email, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "alice@new.com", out.Email)
	assert.Equal(t, "123", out.Phone)
	assert.Greater(t, out.UpdateTime, u.UpdateTime)

	// 只改 phone，email 保持
	phone = "456"
	out, err = h.svc.UpdateProfile(ctx, u.ID, ProfileInput{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "alice@new.com", out.Email)

	taken := "bob@x.com"
	_, err = h.svc.UpdateProfile(ctx, u.ID, ProfileInput{Email: &taken})
	assert.ErrorIs(t, err, domain.ErrConflict)

	bad := "not-an-email"
	_, err = h.svc.UpdateProfile(ctx, u.ID, ProfileInput{Email: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.UpdateProfile(ctx, 999, ProfileInput{Phone: &phone})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)

	assert.ErrorIs(t, h.svc.ChangePassword(ctx, u.ID, "wrong-old", "password2"), domain.ErrInvalidCredential)
	assert.ErrorIs(t, h.svc.ChangePassword(ctx, u.ID, "password1", "short"), domain.ErrValidation)

	require.NoError(t, h.svc.ChangePassword(ctx, u.ID, "password1", "password2"))
	got, err := h.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword("password2", got.Password))

	_, err = h.auth.Authenticate(ctx, "alice", "password1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	_, err = h.auth.Authenticate(ctx, "alice", "password2")
	assert.NoError(t, err)
}

func TestCancelIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)

	_, err := h.svc.Cancel(ctx, u.ID, "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	c, err := h.svc.Cancel(ctx, u.ID, "password1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCanceled, c.State())

	_, err = h.svc.SetCanceled(ctx, u.ID, false)
	assert.ErrorIs(t, err, domain.ErrCancelTerminal)

	// 其他标志仍可独立修改，但状态保持 Canceled
	e, err := h.svc.SetEnabled(ctx, u.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCanceled, e.State())

	_, err = h.auth.Login(ctx, "alice", "password1")
	assert.ErrorIs(t, err, domain.ErrAccountCanceled)
}

func TestAdminFlagsAndRole(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)

	l, err := h.svc.SetLocked(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, l.Locked)
	l, err = h.svc.SetLocked(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, l.Locked)

	d, err := h.svc.SetEnabled(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, d.Enabled)
	assert.True(t, d.Locked)

	r, err := h.svc.SetRole(ctx, u.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReviewer, r.Role)

	same, err := h.svc.SetRole(ctx, u.ID, "REVIEWER")
	require.NoError(t, err)
	assert.Equal(t, r.UpdateTime, same.UpdateTime)

	_, err = h.svc.SetRole(ctx, u.ID, "root")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SetRole(ctx, 404, "ADMIN")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, total, err := h.svc.List(ctx, domain.UserQuery{Q: "ali"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "alice", list[0].Username)
}

// racingRepo 在每次 Update 真正写库前先执行 before，模拟读-改-写之间插进来的修改
type racingRepo struct {
	*repo.UserRepo
	before  []func()
	updates int
}

func (r *racingRepo) Update(ctx context.Context, u domain.User) (domain.User, error) {
	r.updates++
	if len(r.before) > 0 {
		f := r.before[0]
		r.before = r.before[1:]
		f()
	}
	return r.UserRepo.Update(ctx, u)
}

func TestProfileUpdateKeepsConcurrentLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)

	rr := &racingRepo{UserRepo: h.users, before: []func(){func() {
		_, err := h.users.SetLocked(ctx, u.ID, true)
		require.NoError(t, err)
	}}}
	svc := NewUserService(rr, zap.NewNop())

	email := "alice@new.com"
	out, err := svc.UpdateProfile(ctx, u.ID, ProfileInput{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, 2, rr.updates, "stale write is retried once")
	assert.True(t, out.Locked)
	assert.Equal(t, "alice@new.com", out.Email)

	got, err := h.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, domain.StateLocked, got.State())
	assert.Equal(t, "alice@new.com", got.Email)
}

func TestRoleChangeGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)

	flip := func(v bool) func() {
		return func() {
			_, err := h.users.SetEnabled(ctx, u.ID, v)
			require.NoError(t, err)
		}
	}
	rr := &racingRepo{UserRepo: h.users, before: []func(){flip(false), flip(true), flip(false)}}
	svc := NewUserService(rr, zap.NewNop())

	_, err := svc.SetRole(ctx, u.ID, "ADMIN")
	var stale *domain.StaleError
	assert.ErrorAs(t, err, &stale)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, maxModifyAttempts, rr.updates)

	got, err := h.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.False(t, got.Enabled, "last admin change wins")
}

func TestPasswordChangeRecheckedAfterConcurrentChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	u := h.createUser(t, "alice", "password1", true)

	rr := &racingRepo{UserRepo: h.users, before: []func(){func() {
		require.NoError(t, h.svc.ChangePassword(ctx, u.ID, "password1", "password9"))
	}}}
	svc := NewUserService(rr, zap.NewNop())

	// 重读后旧密码已经不对了
	err := svc.ChangePassword(ctx, u.ID, "password1", "password2")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	got, err := h.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword("password9", got.Password))
}
