package repo

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// isDupKey 唯一约束冲突；优先用 TranslateError 的结果，再按驱动文案兜底
func isDupKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}

func nowMillis(now func() time.Time) int64 { return now().UnixMilli() }

// nextUpdateTime 保证 updateTime 严格递增（同一毫秒内多次写入）
func nextUpdateTime(now func() time.Time, prev int64) int64 {
	t := nowMillis(now)
	if t <= prev {
		return prev + 1
	}
	return t
}
