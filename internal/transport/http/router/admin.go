package router

import (
	"github.com/gin-gonic/gin"

	"blog-account-server/internal/domain"
	"blog-account-server/internal/transport/http/ez"
	mdw "blog-account-server/internal/transport/http/middleware"
)

// NewAdminEngine 管理端：/admin/v1，统一要求 ADMIN 角色
func NewAdminEngine(d Deps) *gin.Engine {
	d = d.withDefaults()
	r := newEngine(d, "admin")

	admin := ez.New(r.Group("/admin/v1", mdw.AuthJWT(d.Verifier, domain.RoleAdmin)), d.Log, d.Errs)
	d.Modules.MountAllAdmin(admin)
	return r
}
