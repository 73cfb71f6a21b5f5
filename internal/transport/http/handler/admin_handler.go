package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"blog-account-server/internal/core/errlog"
	"blog-account-server/internal/domain"
	"blog-account-server/internal/transport/http/ez"
	mdw "blog-account-server/internal/transport/http/middleware"
)

type UserAdminAPI interface {
	Get(ctx context.Context, id int64) (domain.User, error)
	List(ctx context.Context, q domain.UserQuery) ([]domain.User, int64, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) (domain.User, error)
	SetLocked(ctx context.Context, id int64, locked bool) (domain.User, error)
	SetCanceled(ctx context.Context, id int64, canceled bool) (domain.User, error)
	SetRole(ctx context.Context, id int64, role string) (domain.User, error)
}

// AdminHandler /admin/v1/*：分组已要求 ADMIN
type AdminHandler struct {
	users    UserAdminAPI
	settings domain.SettingRepository
	errs     *errlog.Ring
}

func NewAdminHandler(users UserAdminAPI, settings domain.SettingRepository, errs *errlog.Ring) *AdminHandler {
	return &AdminHandler{users: users, settings: settings, errs: errs}
}

func (h *AdminHandler) MountAdmin(e ez.EZ) {
	h.mountUsers(e)
	h.mountSettings(e)
	h.mountErrors(e)
}

func (h *AdminHandler) mountUsers(e ez.EZ) {
	type listQ struct {
		Offset int    `form:"offset,default=0" binding:"min=0"`
		Limit  int    `form:"limit,default=20"`
		Q      string `form:"q"` // 按 username/email 模糊搜
	}
	type listOut struct {
		Total int64      `json:"total"`
		Items []UserView `json:"items"`
	}
	ez.RegisterAction(e, ez.Action[listQ, listOut]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listQ) (listOut, error) {
			if in.Limit <= 0 || in.Limit > 100 {
				in.Limit = 20
			}
			us, total, err := h.users.List(c.Request.Context(), domain.UserQuery{
				Offset: in.Offset, Limit: in.Limit, Q: strings.TrimSpace(in.Q),
			})
			if err != nil {
				return listOut{}, err
			}
			return listOut{Total: total, Items: toViews(us)}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, UserView]{
		Method: http.MethodGet,
		Path:   "/users/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (UserView, error) {
			id, err := ez.PathID(c)
			if err != nil {
				return UserView{}, err
			}
			u, err := h.users.Get(c.Request.Context(), id)
			if err != nil {
				return UserView{}, err
			}
			return ToView(u), nil
		},
	})

	type flagIn struct {
		Value *bool `json:"value" binding:"required"`
	}
	flag := func(path string, set func(ctx context.Context, id int64, v bool) (domain.User, error)) {
		ez.RegisterAction(e, ez.Action[flagIn, UserView]{
			Method: http.MethodPut,
			Path:   "/users/:id/" + path,
			Binder: ez.BindJSON,
			Handler: func(c *gin.Context, in *flagIn) (UserView, error) {
				id, err := ez.PathID(c)
				if err != nil {
					return UserView{}, err
				}
				// 管理员不能停用自己
				if id == mdw.UserID(c) && (*in.Value != (path == "enabled")) {
					return UserView{}, ez.BadRequest("cannot change own " + path + " state")
				}
				u, err := set(c.Request.Context(), id, *in.Value)
				if err != nil {
					return UserView{}, err
				}
				return ToView(u), nil
			},
		})
	}
	flag("enabled", h.users.SetEnabled)
	flag("locked", h.users.SetLocked)
	flag("canceled", h.users.SetCanceled)

	type roleIn struct {
		Role string `json:"role" binding:"required"`
	}
	ez.RegisterAction(e, ez.Action[roleIn, UserView]{
		Method: http.MethodPut,
		Path:   "/users/:id/role",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *roleIn) (UserView, error) {
			id, err := ez.PathID(c)
			if err != nil {
				return UserView{}, err
			}
			if id == mdw.UserID(c) && strings.ToUpper(strings.TrimSpace(in.Role)) != string(domain.RoleAdmin) {
				return UserView{}, ez.BadRequest("cannot demote yourself")
			}
			u, err := h.users.SetRole(c.Request.Context(), id, in.Role)
			if err != nil {
				return UserView{}, err
			}
			return ToView(u), nil
		},
	})
}

type SettingView struct {
	ID    int64   `json:"id"`
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

const maskedValue = "****"

// 口令类配置只回显掩码
func settingView(s domain.Setting) SettingView {
	v := SettingView{ID: s.ID, Key: s.Key, Value: s.Value}
	if s.Value != nil && strings.Contains(strings.ToLower(s.Key), "password") {
		m := maskedValue
		v.Value = &m
	}
	return v
}

func settingKey(c *gin.Context) (string, error) {
	k := strings.TrimSpace(c.Param("key"))
	if k == "" || len(k) > domain.MaxSettingKeyLen {
		return "", ez.BadRequest("invalid setting key")
	}
	return k, nil
}

func (h *AdminHandler) mountSettings(e ez.EZ) {
	ez.RegisterAction(e, ez.Action[struct{}, []SettingView]{
		Method: http.MethodGet,
		Path:   "/settings",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) ([]SettingView, error) {
			ss, err := h.settings.List(c.Request.Context())
			if err != nil {
				return nil, err
			}
			out := make([]SettingView, 0, len(ss))
			for _, s := range ss {
				out = append(out, settingView(s))
			}
			return out, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, SettingView]{
		Method: http.MethodGet,
		Path:   "/settings/:key",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (SettingView, error) {
			k, err := settingKey(c)
			if err != nil {
				return SettingView{}, err
			}
			s, ok, err := h.settings.Get(c.Request.Context(), k)
			if err != nil {
				return SettingView{}, err
			}
			if !ok {
				return SettingView{}, &domain.NotFoundError{Resource: "setting", Key: k}
			}
			return settingView(s), nil
		},
	})

	// value 为 null 表示清空（记录保留）
	type setIn struct {
		Value *string `json:"value"`
	}
	ez.RegisterAction(e, ez.Action[setIn, SettingView]{
		Method: http.MethodPut,
		Path:   "/settings/:key",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *setIn) (SettingView, error) {
			k, err := settingKey(c)
			if err != nil {
				return SettingView{}, err
			}
			s, err := h.settings.Set(c.Request.Context(), k, in.Value)
			if err != nil {
				return SettingView{}, err
			}
			return settingView(s), nil
		},
	})
}

func (h *AdminHandler) mountErrors(e ez.EZ) {
	type errorsOut struct {
		Total int             `json:"total"`
		Items []errlog.Record `json:"items"`
	}
	ez.RegisterAction(e, ez.Action[struct{}, errorsOut]{
		Method: http.MethodGet,
		Path:   "/errors",
		Binder: ez.BindNone,
		Handler: func(_ *gin.Context, _ *struct{}) (errorsOut, error) {
			if h.errs == nil {
				return errorsOut{Items: []errlog.Record{}}, nil
			}
			items := h.errs.List()
			return errorsOut{Total: len(items), Items: items}, nil
		},
	})
}
