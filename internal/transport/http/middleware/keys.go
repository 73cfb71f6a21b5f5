package middleware

import (
	"github.com/gin-gonic/gin"

	"blog-account-server/internal/domain"
)

// gin.Context 中的鉴权信息
const (
	KeyUserID = "userId" // int64
	KeyRole   = "role"   // string
	KeyUser   = "user"   // domain.User
)

func UserID(c *gin.Context) int64 { return c.GetInt64(KeyUserID) }

func CurrentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(KeyUser)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok
}
