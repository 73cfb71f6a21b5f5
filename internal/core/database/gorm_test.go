package database

import (
	"context"
	"testing"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blog-account-server/internal/feature/setting"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	got, err := normalizeMySQLDSN(
		"jdbc:mysql://127.0.0.1:3306/blog?useSSL=false&serverTimezone=GMT%2B8&characterEncoding=utf8&useUnicode=true&zeroDateTimeBehavior=convertToNull",
		"root", "pw")
	require.NoError(t, err)
	cfg, err := mysqldrv.ParseDSN(got)
	require.NoError(t, err, got)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "pw", cfg.Passwd)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "127.0.0.1:3306", cfg.Addr)
	assert.Equal(t, "blog", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Empty(t, cfg.TLSConfig)
	assert.Equal(t, "Etc/GMT-8", cfg.Loc.String())
	assert.Contains(t, got, "charset=utf8")
	assert.NotContains(t, got, "useUnicode")
	assert.NotContains(t, got, "zeroDateTimeBehavior")

	got, err = normalizeMySQLDSN("mysql://app:secret@db:3306/blog?useSSL=true", "", "")
	require.NoError(t, err)
	cfg, err = mysqldrv.ParseDSN(got)
	require.NoError(t, err, got)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "true", cfg.TLSConfig)
	assert.Contains(t, got, "charset=utf8mb4")

	// 原生 DSN 只替换账号
	got, err = normalizeMySQLDSN("u:p@tcp(h:3306)/db?parseTime=true", "", "pw2")
	require.NoError(t, err)
	cfg, err = mysqldrv.ParseDSN(got)
	require.NoError(t, err, got)
	assert.Equal(t, "u", cfg.User)
	assert.Equal(t, "pw2", cfg.Passwd)
	assert.Equal(t, "h:3306", cfg.Addr)

	got, err = normalizeMySQLDSN("  ", "", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = normalizeMySQLDSN("jdbc:mysql://h/db?serverTimezone=Mars%2FOlympus", "", "")
	assert.Error(t, err)
}

func TestMaskDSN(t *testing.T) {
	m := maskDSN("root:pw@tcp(h:3306)/db")
	assert.Contains(t, m, "root:****@")
	assert.NotContains(t, m, "pw@")
	assert.Equal(t, "<unparsable dsn>", maskDSN("not a dsn"))
}

func TestOptsWithProvider(t *testing.T) {
	o := Opts{Driver: "mysql", DSN: "fallback", Username: "u0"}
	p := setting.MapProvider{
		setting.KeyDatabaseURL:      "jdbc:mysql://h/db",
		setting.KeyDatabasePassword: "pw",
	}
	got := o.WithProvider(context.Background(), p)
	assert.Equal(t, "jdbc:mysql://h/db", got.DSN)
	assert.Equal(t, "u0", got.Username)
	assert.Equal(t, "pw", got.Password)
}

func TestNewGormSQLite(t *testing.T) {
	db, err := NewGorm(Opts{Driver: "sqlite", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)

	_, err = NewGorm(Opts{Driver: "oracle"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
