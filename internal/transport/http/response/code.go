package response

import (
	"errors"

	"blog-account-server/internal/domain"
)

// 业务错误码（直接基于 HTTP 语义；HTTP 状态恒为 200）
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeGone            = 410
	CodeTooLarge        = 413
	CodeLocked          = 423
	CodeTooManyRequests = 429
	CodeServerError     = 500
	CodeUnavailable     = 503
	CodeTimeout         = 504
)

var CodeMsgMap = map[int]string{
	CodeOK:              "OK",
	CodeBadRequest:      "Bad Request",
	CodeUnauthorized:    "Unauthorized",
	CodeForbidden:       "Forbidden",
	CodeNotFound:        "Not Found",
	CodeConflict:        "Conflict",
	CodeGone:            "Gone",
	CodeTooLarge:        "Request Entity Too Large",
	CodeLocked:          "Locked",
	CodeTooManyRequests: "Too Many Requests",
	CodeServerError:     "Internal Server Error",
	CodeUnavailable:     "Service Unavailable",
	CodeTimeout:         "Gateway Timeout",
}

// CodeOf 领域错误 → 错误码；未知错误为 500
func CodeOf(err error) int {
	var ae *domain.AuthenticationError
	switch {
	case err == nil:
		return CodeOK
	case errors.As(err, &ae):
		switch ae.Kind {
		case domain.AuthDisabled:
			return CodeForbidden
		case domain.AuthLocked:
			return CodeLocked
		case domain.AuthCanceled, domain.AuthTokenUsed:
			return CodeGone
		}
		return CodeUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return CodeBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	}
	return CodeServerError
}
