package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/service"
	"blog-account-server/internal/transport/http/ez"
	mdw "blog-account-server/internal/transport/http/middleware"
)

type AccountAPI interface {
	Get(ctx context.Context, id int64) (domain.User, error)
	UpdateProfile(ctx context.Context, id int64, in service.ProfileInput) (domain.User, error)
	ChangePassword(ctx context.Context, id int64, oldPw, newPw string) error
	Cancel(ctx context.Context, id int64, password string) (domain.User, error)
}

// AccountHandler /me/*：当前登录用户自助
type AccountHandler struct {
	svc  AccountAPI
	auth gin.HandlerFunc
}

func NewAccountHandler(svc AccountAPI, auth gin.HandlerFunc) *AccountHandler {
	return &AccountHandler{svc: svc, auth: auth}
}

func (h *AccountHandler) MountAPI(e ez.EZ) {
	me := e.Group("/me", h.auth)

	ez.RegisterAction(me, ez.Action[struct{}, UserView]{
		Method: http.MethodGet,
		Path:   "",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (UserView, error) {
			u, err := h.svc.Get(c.Request.Context(), mdw.UserID(c))
			if err != nil {
				return UserView{}, err
			}
			return ToView(u), nil
		},
	})

	type profileIn struct {
		Email *string `json:"email" binding:"omitempty,max=255"`
		Phone *string `json:"phone" binding:"omitempty,max=64"`
	}
	ez.RegisterAction(me, ez.Action[profileIn, UserView]{
		Method: http.MethodPut,
		Path:   "",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *profileIn) (UserView, error) {
			u, err := h.svc.UpdateProfile(c.Request.Context(), mdw.UserID(c), service.ProfileInput{
				Email: in.Email, Phone: in.Phone,
			})
			if err != nil {
				return UserView{}, err
			}
			return ToView(u), nil
		},
	})

	type passwordIn struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	ez.RegisterAction(me, ez.Action[passwordIn, gin.H]{
		Method: http.MethodPut,
		Path:   "/password",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *passwordIn) (gin.H, error) {
			if err := h.svc.ChangePassword(c.Request.Context(), mdw.UserID(c), in.OldPassword, in.NewPassword); err != nil {
				return nil, err
			}
			return gin.H{"changed": true}, nil
		},
	})

	type cancelIn struct {
		Password string `json:"password" binding:"required"`
	}
	ez.RegisterAction(me, ez.Action[cancelIn, UserView]{
		Method: http.MethodPost,
		Path:   "/cancel",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *cancelIn) (UserView, error) {
			u, err := h.svc.Cancel(c.Request.Context(), mdw.UserID(c), in.Password)
			if err != nil {
				return UserView{}, err
			}
			return ToView(u), nil
		},
	})
}
