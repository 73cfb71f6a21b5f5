package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"blog-account-server/internal/core/errlog"
	"blog-account-server/internal/core/server"
	mdw "blog-account-server/internal/transport/http/middleware"
)

// Deps 两个引擎共用的装配参数
type Deps struct {
	Log      *zap.Logger
	Verifier mdw.TokenVerifier
	Errs     *errlog.Ring
	Modules  *Registry
	Server   server.Options

	// 0 值使用默认
	RPS         rate.Limit
	Burst       int
	MaxInFlight int64
	MaxBody     int64
	Timeout     time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.RPS <= 0 {
		d.RPS = 200
	}
	if d.Burst <= 0 {
		d.Burst = 400
	}
	if d.MaxInFlight <= 0 {
		d.MaxInFlight = 300
	}
	if d.MaxBody <= 0 {
		d.MaxBody = 1 << 20
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	return d
}

// newEngine 公共中间件链 + /health + /metrics
func newEngine(d Deps, name string) *gin.Engine {
	r := server.NewRouter(d.Log, d.Server)
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(d.RPS, d.Burst),
		mdw.ConcurrencyLimit(d.MaxInFlight),
		mdw.MaxBodyBytes(d.MaxBody),
		mdw.Timeout(d.Timeout),
		mdw.Recovery(d.Log, d.Errs),
		mdw.Metrics(name),
		mdw.AccessLog(d.Log),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
