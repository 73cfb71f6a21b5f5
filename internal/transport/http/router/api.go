package router

import (
	"github.com/gin-gonic/gin"

	"blog-account-server/internal/transport/http/ez"
)

// NewAPIEngine 用户端：/api/v1
func NewAPIEngine(d Deps) *gin.Engine {
	d = d.withDefaults()
	r := newEngine(d, "api")

	api := ez.New(r.Group("/api/v1"), d.Log, d.Errs)
	d.Modules.MountAllAPI(api)
	return r
}
