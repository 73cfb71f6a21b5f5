package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"blog-account-server/internal/core/cache"
	"blog-account-server/internal/core/crypto"
	"blog-account-server/internal/domain"
	"blog-account-server/internal/feature/user"
)

const defaultUserCacheTTL = 10 * time.Minute

type UserRepo struct {
	db     *gorm.DB
	cache  *cache.Cache
	ttl    time.Duration
	cipher *crypto.FieldCipher
	now    func() time.Time
}

type UserRepoOption func(*UserRepo)

func WithClock(now func() time.Time) UserRepoOption {
	return func(r *UserRepo) { r.now = now }
}

// WithCache c 为 nil 时等价于不缓存
func WithCache(c *cache.Cache, ttl time.Duration) UserRepoOption {
	return func(r *UserRepo) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithCipher 手机号落库加密
func WithCipher(f *crypto.FieldCipher) UserRepoOption {
	return func(r *UserRepo) { r.cipher = f }
}

func NewUserRepo(db *gorm.DB, opts ...UserRepoOption) *UserRepo {
	r := &UserRepo{db: db, ttl: defaultUserCacheTTL, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ domain.UserRepository = (*UserRepo)(nil)

func idKey(id int64) string { return "user:id:" + strconv.FormatInt(id, 10) }

func nameKey(name string) string { return "user:name:" + name }

func userNotFound(key string) error { return &domain.NotFoundError{Resource: "user", Key: key} }

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID != 0 {
		return domain.User{}, &domain.ValidationError{Field: "id", Reason: "assigned by the store"}
	}
	if err := u.Validate(); err != nil {
		return domain.User{}, err
	}
	m, err := r.toModel(u)
	if err != nil {
		return domain.User{}, err
	}
	ts := nowMillis(r.now)
	m.RegisterTime, m.UpdateTime = ts, ts

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 快速路径；最终以唯一索引为准
		var n int64
		if err := tx.Model(&user.UserModel{}).Where("username = ?", m.Username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &domain.ConflictError{Resource: "user", Field: "username", Value: m.Username}
		}
		if err := tx.Create(&m).Error; err != nil {
			if isDupKey(err) {
				return &domain.ConflictError{Resource: "user", Field: "username", Value: m.Username}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	out := m.ToDomain()
	out.Phone = u.Phone
	return out, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (domain.User, error) {
	key := strconv.FormatInt(id, 10)
	m, err := cache.GetOrLoadJSON(r.cache, ctx, idKey(id), r.ttl, func(ctx context.Context) (*user.UserModel, error) {
		return r.load(r.db.WithContext(ctx), "id = ?", id, key)
	})
	if err != nil {
		return domain.User{}, err
	}
	if m == nil {
		return domain.User{}, userNotFound(key)
	}
	return r.toDomain(*m)
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	m, err := cache.GetOrLoadJSON(r.cache, ctx, nameKey(username), r.ttl, func(ctx context.Context) (*user.UserModel, error) {
		return r.load(r.db.WithContext(ctx), "username = ?", username, username)
	})
	if err != nil {
		return domain.User{}, err
	}
	if m == nil {
		return domain.User{}, userNotFound(username)
	}
	return r.toDomain(*m)
}

// FindByEmail email 不唯一，取最早注册的一条
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).Where("email = ?", email).Order("id ASC").Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, userNotFound(email)
	}
	if err != nil {
		return domain.User{}, err
	}
	return r.toDomain(m)
}

func (r *UserRepo) List(ctx context.Context, q domain.UserQuery) ([]domain.User, int64, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	tx := r.db.WithContext(ctx).Model(&user.UserModel{})
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + s + "%"
		tx = tx.Where("username LIKE ? OR email LIKE ?", like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ms []user.UserModel
	if err := tx.Order("id ASC").Offset(q.Offset).Limit(q.Limit).Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.User, 0, len(ms))
	for _, m := range ms {
		u, err := r.toDomain(m)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, nil
}

// Update 覆盖可变字段；id/registerTime 以库中为准。
// u.UpdateTime 非 0 时必须等于库中当前值，写入本身也以读到的 update_time 为条件，
// 期间有别的修改（包括 Set* 改标志位）则返回 *StaleError，不会覆盖对方。
func (r *UserRepo) Update(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == 0 {
		return domain.User{}, &domain.ValidationError{Field: "id", Reason: "required"}
	}
	if err := u.Validate(); err != nil {
		return domain.User{}, err
	}
	next, err := r.toModel(u)
	if err != nil {
		return domain.User{}, err
	}

	key := strconv.FormatInt(u.ID, 10)
	var prev user.UserModel
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := r.load(tx, "id = ?", u.ID, key)
		if err != nil {
			return err
		}
		prev = *cur
		if u.UpdateTime != 0 && u.UpdateTime != prev.UpdateTime {
			return &domain.StaleError{Resource: "user", Key: key}
		}
		if u.RegisterTime != 0 && u.RegisterTime != prev.RegisterTime {
			return &domain.ValidationError{Field: "registerTime", Reason: "immutable"}
		}
		if prev.Canceled && !next.Canceled {
			return domain.ErrCancelTerminal
		}
		if next.Username != prev.Username {
			var n int64
			if err := tx.Model(&user.UserModel{}).Where("username = ? AND id <> ?", next.Username, u.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return &domain.ConflictError{Resource: "user", Field: "username", Value: next.Username}
			}
		}
		next.ID = prev.ID
		next.RegisterTime = prev.RegisterTime
		next.UpdateTime = nextUpdateTime(r.now, prev.UpdateTime)
		res := tx.Model(&user.UserModel{}).
			Where("id = ? AND update_time = ?", next.ID, prev.UpdateTime).
			Updates(map[string]any{
				"username":         next.Username,
				"password":         next.Password,
				"role":             next.Role,
				"update_time":      next.UpdateTime,
				"email":            next.Email,
				"phone":            next.Phone,
				"enabled":          next.Enabled,
				"locked":           next.Locked,
				"account_canceled": next.Canceled,
			})
		if isDupKey(res.Error) {
			return &domain.ConflictError{Resource: "user", Field: "username", Value: next.Username}
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &domain.StaleError{Resource: "user", Key: key}
		}
		return nil
	})
	var stale *domain.StaleError
	if errors.As(err, &stale) {
		// 调用方多半读的是缓存里的旧值，清掉后重读才能拿到新版本
		r.evict(ctx, u.ID, prev.Username, u.Username)
	}
	if err != nil {
		return domain.User{}, err
	}
	r.evict(ctx, prev.ID, prev.Username, next.Username)
	out := next.ToDomain()
	out.Phone = u.Phone
	return out, nil
}

func (r *UserRepo) SetEnabled(ctx context.Context, id int64, enabled bool) (domain.User, error) {
	return r.setFlag(ctx, id, "enabled", enabled)
}

func (r *UserRepo) SetLocked(ctx context.Context, id int64, locked bool) (domain.User, error) {
	return r.setFlag(ctx, id, "locked", locked)
}

// SetCanceled 注销为终态：canceled=false 只在本来就未注销时成功
func (r *UserRepo) SetCanceled(ctx context.Context, id int64, canceled bool) (domain.User, error) {
	return r.setFlag(ctx, id, "account_canceled", canceled)
}

// setFlag 幂等；即使值未变也推进 update_time。
// 禁用时一并作废未核销的激活令牌，免得旧链接把账号重新启用。
func (r *UserRepo) setFlag(ctx context.Context, id int64, column string, v bool) (domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := r.load(tx, "id = ?", id, strconv.FormatInt(id, 10))
		if err != nil {
			return err
		}
		m = *cur
		switch column {
		case "enabled":
			m.Enabled = v
			if !v {
				if err := revokePending(tx, id); err != nil {
					return err
				}
			}
		case "locked":
			m.Locked = v
		case "account_canceled":
			if m.Canceled && !v {
				return domain.ErrCancelTerminal
			}
			m.Canceled = v
		default:
			return fmt.Errorf("unknown flag column %q", column)
		}
		m.UpdateTime = nextUpdateTime(r.now, cur.UpdateTime)
		return tx.Model(&user.UserModel{}).Where("id = ?", id).Updates(map[string]any{
			column:        v,
			"update_time": m.UpdateTime,
		}).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	r.evict(ctx, m.ID, m.Username)
	return r.toDomain(m)
}

// Activate 核销令牌与启用账号同成同败：账号状态不允许激活时令牌保持未用
func (r *UserRepo) Activate(ctx context.Context, id, tokenID int64) (domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := r.load(tx, "id = ?", id, strconv.FormatInt(id, 10))
		if err != nil {
			return err
		}
		m = *cur
		switch {
		case m.Canceled:
			return domain.ErrAccountCanceled
		case m.Enabled:
			return &domain.ConflictError{Resource: "user", Field: "enabled", Value: "true"}
		}
		if err := markUsed(tx, tokenID, id); err != nil {
			return err
		}
		m.Enabled = true
		m.UpdateTime = nextUpdateTime(r.now, cur.UpdateTime)
		return tx.Model(&user.UserModel{}).Where("id = ?", id).Updates(map[string]any{
			"enabled":     true,
			"update_time": m.UpdateTime,
		}).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	r.evict(ctx, m.ID, m.Username)
	return r.toDomain(m)
}

func (r *UserRepo) HasUsers(ctx context.Context) (bool, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&user.UserModel{}).Limit(1).Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (r *UserRepo) load(tx *gorm.DB, cond string, arg any, key string) (*user.UserModel, error) {
	var m user.UserModel
	err := tx.Where(cond, arg).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userNotFound(key)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *UserRepo) evict(ctx context.Context, id int64, names ...string) {
	keys := []string{idKey(id)}
	for _, n := range names {
		keys = append(keys, nameKey(n))
	}
	// 失效失败不影响写入结果，TTL 兜底
	_ = r.cache.Delete(ctx, keys...)
}

func (r *UserRepo) toModel(u domain.User) (user.UserModel, error) {
	m := user.FromDomain(u)
	enc, err := r.cipher.Encrypt(u.Phone)
	if err != nil {
		return user.UserModel{}, fmt.Errorf("encrypt phone: %w", err)
	}
	if len(enc) > domain.MaxPhoneLen {
		return user.UserModel{}, &domain.ValidationError{Field: "phone", Reason: "too long"}
	}
	m.Phone = enc
	return m, nil
}

func (r *UserRepo) toDomain(m user.UserModel) (domain.User, error) {
	u := m.ToDomain()
	plain, err := r.cipher.Decrypt(m.Phone)
	if err != nil {
		return domain.User{}, fmt.Errorf("decrypt phone of user %d: %w", m.ID, err)
	}
	u.Phone = plain
	return u, nil
}
