package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blog-account-server/internal/core/errlog"
	resp "blog-account-server/internal/transport/http/response"
)

// Recovery panic → 500，同时写日志和错误记录
func Recovery(l *zap.Logger, ring *errlog.Ring) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				l.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("rid", c.GetString(KeyRequestID)),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))
				if ring != nil {
					ring.Add(errlog.Record{
						RequestID: c.GetString(KeyRequestID),
						Method:    c.Request.Method,
						Path:      c.Request.URL.Path,
						UserID:    UserID(c),
						Msg:       "panic",
						Err:       fmt.Sprint(rec),
					})
				}
				c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeServerError, "internal error"))
			}
		}()
		c.Next()
	}
}
