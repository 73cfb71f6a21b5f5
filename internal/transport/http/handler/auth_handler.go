package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/service"
	"blog-account-server/internal/transport/http/ez"
)

type AuthAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (service.RegisterResult, error)
	Login(ctx context.Context, identity, password string) (service.LoginResult, error)
	Activate(ctx context.Context, token string) (domain.User, error)
	ResendActivation(ctx context.Context, identity string) error
}

// AuthHandler /auth/*：公开接口，按 IP 限速
type AuthHandler struct {
	svc     AuthAPI
	limiter gin.HandlerFunc
}

func NewAuthHandler(svc AuthAPI, limiter gin.HandlerFunc) *AuthHandler {
	return &AuthHandler{svc: svc, limiter: limiter}
}

func (h *AuthHandler) Priority() int { return 10 }

func (h *AuthHandler) MountAPI(e ez.EZ) {
	var mw []gin.HandlerFunc
	if h.limiter != nil {
		mw = append(mw, h.limiter)
	}
	g := e.Group("/auth", mw...)

	type registerIn struct {
		Username string `json:"username" binding:"required,max=120"`
		Password string `json:"password" binding:"required"`
		Email    string `json:"email"    binding:"omitempty,email,max=255"`
	}
	type registerOut struct {
		User               UserView `json:"user"`
		ActivationRequired bool     `json:"activationRequired"`
	}
	ez.RegisterAction(g, ez.Action[registerIn, registerOut]{
		Method: http.MethodPost,
		Path:   "/register",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *registerIn) (registerOut, error) {
			res, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
				Username: in.Username, Password: in.Password, Email: in.Email,
			})
			if err != nil {
				return registerOut{}, err
			}
			return registerOut{User: ToView(res.User), ActivationRequired: res.ActivationRequired}, nil
		},
	})

	// username 可以是用户名或邮箱
	type loginIn struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	type loginOut struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
		User      UserView  `json:"user"`
	}
	ez.RegisterAction(g, ez.Action[loginIn, loginOut]{
		Method: http.MethodPost,
		Path:   "/login",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (loginOut, error) {
			res, err := h.svc.Login(c.Request.Context(), in.Username, in.Password)
			if err != nil {
				return loginOut{}, err
			}
			return loginOut{Token: res.Token, ExpiresAt: res.ExpiresAt, User: ToView(res.User)}, nil
		},
	})

	type activateIn struct {
		Token string `form:"token" binding:"required"`
	}
	ez.RegisterAction(g, ez.Action[activateIn, UserView]{
		Method: http.MethodGet,
		Path:   "/activate",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *activateIn) (UserView, error) {
			u, err := h.svc.Activate(c.Request.Context(), in.Token)
			if err != nil {
				return UserView{}, err
			}
			return ToView(u), nil
		},
	})

	type resendIn struct {
		Username string `json:"username" binding:"required"`
	}
	ez.RegisterAction(g, ez.Action[resendIn, gin.H]{
		Method: http.MethodPost,
		Path:   "/activation/resend",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *resendIn) (gin.H, error) {
			if err := h.svc.ResendActivation(c.Request.Context(), in.Username); err != nil {
				return nil, err
			}
			return gin.H{"sent": true}, nil
		},
	})
}
