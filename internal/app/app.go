// Package app 两个进程共用的装配：配置 → 数据库 → 配置表 → 缓存 → 仓储 → 服务 → 路由模块。
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"blog-account-server/internal/core/auth"
	"blog-account-server/internal/core/cache"
	"blog-account-server/internal/core/config"
	"blog-account-server/internal/core/crypto"
	"blog-account-server/internal/core/database"
	"blog-account-server/internal/core/errlog"
	"blog-account-server/internal/core/logger"
	"blog-account-server/internal/core/server"
	"blog-account-server/internal/feature/setting"
	"blog-account-server/internal/feature/user"
	"blog-account-server/internal/repo"
	"blog-account-server/internal/service"
	"blog-account-server/internal/transport/http/handler"
	mdw "blog-account-server/internal/transport/http/middleware"
	"blog-account-server/internal/transport/http/router"
)

type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Cache    *cache.Cache
	Settings setting.Provider
	Errs     *errlog.Ring

	SettingRepo *repo.SettingRepo
	Auth        *service.AuthService
	Users       *service.UserService
}

// New 任一步失败都会释放已打开的资源
func New(ctx context.Context, cfg *config.Config, l *zap.Logger, opts ...service.AuthOption) (_ *App, err error) {
	a := &App{Cfg: cfg, Log: l, Errs: errlog.NewRing(errlog.DefaultSize)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 数据库连接信息只能来自本地配置
	local := cfg.LocalSettings()
	dbOpts := database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
	}.WithProvider(ctx, local)

	if a.DB, err = database.NewGorm(dbOpts, l); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))
	if cfg.DB.AutoMigrate {
		models := append(user.Models(), &setting.SettingModel{})
		if err = database.Migrate(a.DB, models...); err != nil {
			return nil, err
		}
		l.Info("automigrate done")
	}

	// 运行期配置：库优先，本地兜底
	a.SettingRepo = repo.NewSettingRepo(a.DB)
	if err = setting.Seed(ctx, a.SettingRepo, local, l); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	a.Settings = setting.Chain{setting.NewStoreProvider(a.SettingRepo, l), local}

	a.Cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if perr := a.Cache.Ping(ctx); perr != nil {
		l.Warn("redis unavailable, falling back to db reads", zap.Error(perr))
	}

	cipher, err := crypto.NewFieldCipherFromHex(cfg.Crypto.FieldKey)
	if err != nil {
		return nil, fmt.Errorf("crypto.field_key: %w", err)
	}

	users := repo.NewUserRepo(a.DB,
		repo.WithCache(a.Cache, time.Duration(cfg.Redis.UserTTLSec)*time.Second),
		repo.WithCipher(cipher),
	)
	jwter := &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.JWT.ExpireSec) * time.Second,
	}
	policy := service.Policy{
		AutoEnable:     cfg.Account.AutoEnable,
		FirstUserAdmin: cfg.Account.FirstUserAdmin,
		RevealState:    cfg.Account.RevealState,
		ActivationTTL:  time.Duration(cfg.Account.ActivationTTLHours) * time.Hour,
	}
	a.Auth, err = service.NewAuthService(users, repo.NewRegisterTokenRepo(a.DB), a.Settings, jwter, policy, l, opts...)
	if err != nil {
		return nil, err
	}
	a.Users = service.NewUserService(users, l)
	return a, nil
}

// Modules 用户端 + 管理端的路由模块
func (a *App) Modules() *router.Registry {
	var limiter gin.HandlerFunc
	if a.Cfg.Account.LoginRPS > 0 {
		limiter = mdw.RateLimitPerIP(rate.Limit(a.Cfg.Account.LoginRPS), max(a.Cfg.Account.LoginBurst, 1))
	}
	return router.NewRegistry(
		handler.NewAuthHandler(a.Auth, limiter),
		handler.NewAccountHandler(a.Users, mdw.AuthJWT(a.Auth)),
		handler.NewAdminHandler(a.Users, a.SettingRepo, a.Errs),
	)
}

func (a *App) RouterDeps() router.Deps {
	return router.Deps{
		Log:      a.Log,
		Verifier: a.Auth,
		Errs:     a.Errs,
		Modules:  a.Modules(),
		Server: server.Options{
			Name:         a.Cfg.App.Name,
			Mode:         ginMode(a.Cfg.App.Env),
			AllowOrigins: a.Cfg.App.CORS.AllowOrigins,
		},
	}
}

func ginMode(env string) string {
	switch env {
	case "prod", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	}
	return gin.DebugMode
}

func (a *App) Close() {
	if err := a.Cache.Close(); err != nil {
		a.Log.Warn("close redis", zap.Error(err))
	}
	if a.DB == nil {
		return
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// NewLogger 按 log 配置段构建；开启 rotate 时同时写文件
func NewLogger(cfg *config.Config) (*zap.Logger, func()) {
	return logger.Build(logger.Options{
		Level:   cfg.Log.Level,
		JSON:    cfg.Log.JSON,
		Service: cfg.App.Name,
		Rotate:  logger.FileRotate(cfg.Log.Rotate),
	})
}

// CaptureStd gin 与标准库 log 的输出统一走 zap；返回恢复函数
func CaptureStd(l *zap.Logger) func() {
	gin.DefaultWriter = logger.ToWriter(l, zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(l, zapcore.ErrorLevel)
	return logger.RedirectStdLog(l, zapcore.InfoLevel)
}
