package repo

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"blog-account-server/internal/feature/setting"
	"blog-account-server/internal/feature/user"
)

// newTestDB 每个测试一个独立的内存库；单连接保证看到同一个库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	models := append(user.Models(), &setting.SettingModel{})
	require.NoError(t, db.AutoMigrate(models...))
	return db
}
