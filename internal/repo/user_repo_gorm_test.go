package repo

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"blog-account-server/internal/core/cache"
	"blog-account-server/internal/core/crypto"
	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/user"
)

var fixedNow = time.UnixMilli(1700000000000)

func fixedClock() time.Time { return fixedNow }

func alice() domain.User {
	return domain.User{
		Username: "alice",
		Password: "$2a$10$abcdefghijklmnopqrstuv",
		Role:     domain.RoleUser,
		Email:    "a@x.com",
	}
}

func TestCreateAssignsIDAndTimes(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t), WithClock(fixedClock))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)
	assert.False(t, u.Enabled)
	assert.False(t, u.Locked)
	assert.False(t, u.Canceled)
	assert.Equal(t, fixedNow.UnixMilli(), u.RegisterTime)
	assert.Equal(t, u.RegisterTime, u.UpdateTime)

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	byName, err := r.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u, byName)
}

func TestCreateDuplicateUsernameConflicts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewUserRepo(db)

	_, err := r.Create(ctx, alice())
	require.NoError(t, err)

	dup := alice()
	dup.Email = "other@x.com"
	_, err = r.Create(ctx, dup)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "username", ce.Field)
	assert.ErrorIs(t, err, domain.ErrConflict)

	var n int64
	require.NoError(t, db.Model(&user.UserModel{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCreateRejectsPresetIDAndInvalidFields(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t))

	u := alice()
	u.ID = 5
	_, err := r.Create(ctx, u)
	assert.ErrorIs(t, err, domain.ErrValidation)

	u = alice()
	u.Username = strings.Repeat("x", domain.MaxUsernameLen+1)
	_, err = r.Create(ctx, u)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFindUnknownIsNotFound(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t))

	_, err := r.FindByID(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = r.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = r.FindByEmail(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateKeepsIdentityAndAdvancesUpdateTime(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t), WithClock(fixedClock))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)

	u.Email = "alice@new.com"
	u.Role = domain.RoleReviewer
	updated, err := r.Update(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, u.RegisterTime, updated.RegisterTime)
	assert.Greater(t, updated.UpdateTime, u.UpdateTime)

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@new.com", got.Email)
	assert.Equal(t, domain.RoleReviewer, got.Role)
	assert.Equal(t, updated.UpdateTime, got.UpdateTime)

	again, err := r.Update(ctx, got)
	require.NoError(t, err)
	assert.Greater(t, again.UpdateTime, got.UpdateTime)
}

func TestUpdateRejections(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	bob := alice()
	bob.Username = "bob"
	_, err = r.Create(ctx, bob)
	require.NoError(t, err)

	missing := u
	missing.ID = 99
	_, err = r.Update(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	noID := u
	noID.ID = 0
	_, err = r.Update(ctx, noID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	moved := u
	moved.RegisterTime = u.RegisterTime + 1000
	_, err = r.Update(ctx, moved)
	assert.ErrorIs(t, err, domain.ErrValidation)

	renamed := u
	renamed.Username = "bob"
	_, err = r.Update(ctx, renamed)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestSetFlagsAreIdempotentAndIndependent(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t), WithClock(fixedClock))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)

	l1, err := r.SetLocked(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, l1.Locked)
	assert.Greater(t, l1.UpdateTime, u.UpdateTime)

	l2, err := r.SetLocked(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, l2.Locked)
	assert.Greater(t, l2.UpdateTime, l1.UpdateTime)

	e, err := r.SetEnabled(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, e.Enabled)
	assert.True(t, e.Locked)
	assert.False(t, e.Canceled)
	assert.Equal(t, domain.StateLocked, e.State())

	_, err = r.SetLocked(ctx, 404, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCanceledIsTerminal(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	c, err := r.SetCanceled(ctx, u.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCanceled, c.State())

	_, err = r.SetCanceled(ctx, u.ID, true)
	require.NoError(t, err)

	_, err = r.SetCanceled(ctx, u.ID, false)
	assert.ErrorIs(t, err, domain.ErrCancelTerminal)

	cur, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	cur.Canceled = false
	_, err = r.Update(ctx, cur)
	assert.ErrorIs(t, err, domain.ErrCancelTerminal)

	e, err := r.SetEnabled(ctx, u.ID, true)
	require.NoError(t, err)
	l, err := r.SetLocked(ctx, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCanceled, l.State())
}

func TestPhoneIsEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	f, err := crypto.NewFieldCipherFromHex(strings.Repeat("ab", 32))
	require.NoError(t, err)
	r := NewUserRepo(db, WithCipher(f))

	in := alice()
	in.Phone = "+1 555 0100"
	u, err := r.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "+1 555 0100", u.Phone)

	var raw user.UserModel
	require.NoError(t, db.Where("id = ?", u.ID).Take(&raw).Error)
	assert.True(t, strings.HasPrefix(raw.Phone, "enc:"))
	assert.NotContains(t, raw.Phone, "555")

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "+1 555 0100", got.Phone)

	// 历史明文数据照常读出
	require.NoError(t, db.Model(&user.UserModel{}).Where("id = ?", u.ID).Update("phone", "legacy").Error)
	got, err = r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "legacy", got.Phone)
}

func TestCachedLookupsAreEvictedOnWrite(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:")
	r := NewUserRepo(newTestDB(t), WithCache(c, time.Minute))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)

	_, err = r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	_, err = r.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, mr.Exists("t:user:id:1"))
	assert.True(t, mr.Exists("t:user:name:alice"))

	_, err = r.SetLocked(ctx, u.ID, true)
	require.NoError(t, err)
	assert.False(t, mr.Exists("t:user:id:1"))
	assert.False(t, mr.Exists("t:user:name:alice"))

	got, err := r.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Locked)
}

func TestListFiltersAndCounts(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t))

	for _, name := range []string{"alice", "bob", "carol"} {
		u := alice()
		u.Username = name
		u.Email = name + "@x.com"
		_, err := r.Create(ctx, u)
		require.NoError(t, err)
	}

	all, total, err := r.List(ctx, domain.UserQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Username)

	page, total, err := r.List(ctx, domain.UserQuery{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "bob", page[0].Username)

	hit, total, err := r.List(ctx, domain.UserQuery{Q: "car"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "carol", hit[0].Username)

	byEmail, err := r.FindByEmail(ctx, "bob@x.com")
	require.NoError(t, err)
	assert.Equal(t, "bob", byEmail.Username)
}

func TestHasUsers(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t))

	ok, err := r.HasUsers(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Create(ctx, alice())
	require.NoError(t, err)
	ok, err = r.HasUsers(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateDoesNotRevertConcurrentLock(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(newTestDB(t), WithClock(fixedClock))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)

	cur, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	_, err = r.SetLocked(ctx, u.ID, true)
	require.NoError(t, err)

	cur.Email = "new@x.com"
	_, err = r.Update(ctx, cur)
	var stale *domain.StaleError
	require.ErrorAs(t, err, &stale)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked, "lock survives the rejected write")
	assert.Equal(t, "a@x.com", got.Email)

	// 基于新版本重试成功，锁仍在
	got.Email = "new@x.com"
	out, err := r.Update(ctx, got)
	require.NoError(t, err)
	assert.True(t, out.Locked)
	assert.Equal(t, "new@x.com", out.Email)
}

func TestStaleUpdateEvictsCachedCopy(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:")
	r := NewUserRepo(db, WithCache(c, time.Minute))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	cached, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)

	// 绕过仓储直接改库，缓存里留着旧版本
	require.NoError(t, db.Model(&user.UserModel{}).Where("id = ?", u.ID).
		Updates(map[string]any{"locked": true, "update_time": cached.UpdateTime + 1}).Error)

	cached.Email = "new@x.com"
	_, err = r.Update(ctx, cached)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, mr.Exists("t:user:id:1"))

	fresh, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Locked)
	assert.Equal(t, cached.UpdateTime+1, fresh.UpdateTime)
}

func TestCacheFillRacingLockIsDiscarded(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:")
	r := NewUserRepo(db, WithCache(c, time.Minute))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)

	// 读库之后、回填缓存之前插入一次加锁
	var armed atomic.Bool
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:lock_after_read", func(*gorm.DB) {
		if armed.CompareAndSwap(true, false) {
			_, err := r.SetLocked(ctx, u.ID, true)
			require.NoError(t, err)
		}
	}))
	armed.Store(true)

	before, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, before.Locked, "read happened before the lock")
	assert.False(t, mr.Exists("t:user:id:1"))

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, domain.StateLocked, got.State())
}

func TestPoisonedCacheEntryReloads(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:")
	r := NewUserRepo(newTestDB(t), WithCache(c, time.Minute))

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	require.NoError(t, mr.Set("t:user:id:1", "null"))
	require.NoError(t, mr.Set("t:user:name:alice", "null"))

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	got, err = r.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestActivateRedeemsTokenAtomically(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewUserRepo(db, WithClock(fixedClock))
	tokens := NewRegisterTokenRepo(db)

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	tok, err := tokens.Create(ctx, domain.RegisterToken{Token: "t-a", UserID: u.ID, ExpiryTime: 1})
	require.NoError(t, err)

	// 账号已被启用：激活失败，令牌不被消耗
	_, err = r.SetEnabled(ctx, u.ID, true)
	require.NoError(t, err)
	_, err = r.Activate(ctx, u.ID, tok.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	got, err := tokens.FindByToken(ctx, "t-a")
	require.NoError(t, err)
	assert.False(t, got.Used)

	// 令牌属于别人
	bob := alice()
	bob.Username = "bob"
	b, err := r.Create(ctx, bob)
	require.NoError(t, err)
	_, err = r.Activate(ctx, b.ID, tok.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bobTok, err := tokens.Create(ctx, domain.RegisterToken{Token: "t-b", UserID: b.ID, ExpiryTime: 1})
	require.NoError(t, err)
	out, err := r.Activate(ctx, b.ID, bobTok.ID)
	require.NoError(t, err)
	assert.True(t, out.Enabled)
	assert.Greater(t, out.UpdateTime, b.UpdateTime)

	redeemed, err := tokens.HasRedeemed(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, redeemed)
	redeemed, err = tokens.HasRedeemed(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, redeemed)
}

func TestDisableDropsPendingTokens(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewUserRepo(db)
	tokens := NewRegisterTokenRepo(db)

	u, err := r.Create(ctx, alice())
	require.NoError(t, err)
	used, err := tokens.Create(ctx, domain.RegisterToken{Token: "t-used", UserID: u.ID, ExpiryTime: 1})
	require.NoError(t, err)
	_, err = r.Activate(ctx, u.ID, used.ID)
	require.NoError(t, err)
	_, err = tokens.Create(ctx, domain.RegisterToken{Token: "t-pending", UserID: u.ID, ExpiryTime: 1})
	require.NoError(t, err)

	_, err = r.SetEnabled(ctx, u.ID, false)
	require.NoError(t, err)

	_, err = tokens.FindByToken(ctx, "t-pending")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := tokens.FindByToken(ctx, "t-used")
	require.NoError(t, err)
	assert.True(t, got.Used, "redeemed tokens are kept as history")
}
