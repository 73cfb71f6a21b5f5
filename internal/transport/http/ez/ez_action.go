package ez

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blog-account-server/internal/core/errlog"
	"blog-account-server/internal/domain"
	mdw "blog-account-server/internal/transport/http/middleware"
	resp "blog-account-server/internal/transport/http/response"
)

// EZ 路由分组 + 统一的错误出口
type EZ struct {
	g    *gin.RouterGroup
	log  *zap.Logger
	errs *errlog.Ring
}

func New(g *gin.RouterGroup, l *zap.Logger, errs *errlog.Ring) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l, errs: errs}
}

// Group 子分组，沿用同一个日志/错误记录
func (e EZ) Group(path string, handlers ...gin.HandlerFunc) EZ {
	return EZ{g: e.g.Group(path, handlers...), log: e.log, errs: e.errs}
}

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr 动作错误，Code 即响应 code
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// Action I 入参，O 出参
type Action[I any, O any] struct {
	Method  string        // "GET" | "POST" | "PUT" | "DELETE"
	Path    string        // 例："/auth/login"、"/users/:id/lock"
	Binder  Binder        // 绑定方式
	Auth    bool          // 是否要求登录（检查 userId）
	Roles   []domain.Role // 限定角色（可选）
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		// 1) 鉴权/角色（分组中间件已写入 userId/role）
		if a.Auth || len(a.Roles) > 0 {
			if mdw.UserID(c) == 0 {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			if len(a.Roles) > 0 && !roleAllowed(c.GetString(mdw.KeyRole), a.Roles) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		// 2) 绑定入参
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(bindErr, &tooLarge) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeTooLarge, "request body too large"))
				return
			}
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		// 3) 执行
		out, err := a.Handler(c, &in)

		// 4) 统一错误映射
		if err != nil {
			e.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

func (e EZ) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	var ae *AErr
	code := resp.CodeOf(err)
	msg := err.Error()
	if errors.As(err, &ae) {
		code, msg = ae.Code, ae.Error()
	}
	if code != resp.CodeServerError {
		c.JSON(http.StatusOK, resp.Error(code, msg))
		return
	}
	// 500：记录详情，只回通用信息
	e.log.Error("action failed",
		zap.String("rid", c.GetString(mdw.KeyRequestID)),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	if e.errs != nil {
		e.errs.Add(errlog.Record{
			RequestID: c.GetString(mdw.KeyRequestID),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			UserID:    mdw.UserID(c),
			Msg:       msg,
			Err:       err.Error(),
		})
	}
	if ae == nil {
		msg = ""
	}
	c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, msg))
}

func roleAllowed(role string, roles []domain.Role) bool {
	for _, r := range roles {
		if role == string(r) {
			return true
		}
	}
	return false
}

// PathID 读取 :id 路径参数
func PathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest("invalid id")
	}
	return id, nil
}
