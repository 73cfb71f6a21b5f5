package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"blog-account-server/internal/domain"
	resp "blog-account-server/internal/transport/http/response"
)

// TokenVerifier 由 service.AuthService 实现
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (domain.User, error)
}

// BearerToken Authorization: Bearer xxx 优先，其次 ?token=
func BearerToken(c *gin.Context) string {
	if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

// AuthJWT 校验 token 并把当前用户写入上下文；roles 非空时要求其一
func AuthJWT(v TokenVerifier, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "missing token"))
			return
		}
		u, err := v.VerifyToken(c.Request.Context(), tok)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusOK, resp.FromError(err))
			return
		}
		if len(roles) > 0 && !hasRole(u.Role, roles) {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		c.Set(KeyUserID, u.ID)
		c.Set(KeyRole, string(u.Role))
		c.Set(KeyUser, u)
		c.Next()
	}
}

func hasRole(r domain.Role, roles []domain.Role) bool {
	for _, want := range roles {
		if r == want {
			return true
		}
	}
	return false
}
