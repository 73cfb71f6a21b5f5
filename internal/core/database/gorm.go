package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Etc/GMT±N 等时区在精简镜像里也可用

	"github.com/glebarez/sqlite"
	mysqldrv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"blog-account-server/internal/feature/setting"
)

var ErrUnsupportedDriver = errors.New("unsupported db driver")

type Opts struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	LogLevel           string
}

// WithProvider 用配置源里的 database.url/username/password 覆盖连接信息
func (o Opts) WithProvider(ctx context.Context, p setting.Provider) Opts {
	o.DSN = setting.String(ctx, p, setting.KeyDatabaseURL, o.DSN)
	o.Username = setting.String(ctx, p, setting.KeyDatabaseUsername, o.Username)
	o.Password = setting.String(ctx, p, setting.KeyDatabasePassword, o.Password)
	return o
}

func NewGorm(o Opts, l *zap.Logger) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch o.Driver {
	case "postgres":
		dial = postgres.Open(o.DSN)
	case "mysql":
		dsn, err := normalizeMySQLDSN(o.DSN, o.Username, o.Password)
		if err != nil {
			return nil, err
		}
		l.Info("[db] final mysql dsn", zap.String("dsn", maskDSN(dsn)))
		dial = mysql.Open(dsn)
	case "sqlite":
		dsn := o.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dial = sqlite.Open(dsn)
		// 内存库每个连接是独立的库
		if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
			o.MaxOpenConns = 1
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, o.Driver)
	}
	lvl := logger.Warn
	switch o.LogLevel {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger:         logger.Default.LogMode(lvl),
		TranslateError: true, // 唯一约束冲突 → gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	sqlDB.SetMaxIdleConns(max(o.MaxIdleConns, 1))
	sqlDB.SetConnMaxLifetime(time.Duration(o.ConnMaxLifetimeMin) * time.Minute)
	db = db.
		Session(&gorm.Session{
			PrepareStmt:            o.Driver != "sqlite", // 预编译缓存，提高 QPS；单连接的 sqlite 不开
			SkipDefaultTransaction: true,                 // 只在需要时手动开 Tx
		})
	return db, nil
}

// Migrate 建表；models 由各 feature 提供
func Migrate(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// maskDSN 日志用；密码替换为 ****
func maskDSN(dsn string) string {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "<unparsable dsn>"
	}
	if cfg.Passwd != "" {
		cfg.Passwd = "****"
	}
	return cfg.FormatDSN()
}

// normalizeMySQLDSN 接受 jdbc:mysql://、mysql:// 或驱动原生 DSN，统一输出 go-sql-driver 语法；
// user/pass 非空时覆盖其中的账号
func normalizeMySQLDSN(input, user, pass string) (string, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return "", nil
	}
	in = strings.TrimPrefix(in, "jdbc:")

	var cfg *mysqldrv.Config
	var err error
	if strings.HasPrefix(in, "mysql://") {
		cfg, err = configFromURL(in)
	} else {
		cfg, err = mysqldrv.ParseDSN(in)
	}
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	if user != "" {
		cfg.User = user
	}
	if pass != "" {
		cfg.Passwd = pass
	}
	return cfg.FormatDSN(), nil
}

// configFromURL 只翻译认识的 JDBC 参数；其余丢弃（驱动会把未知参数当成会话变量）
func configFromURL(raw string) (*mysqldrv.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	q := u.Query()

	cfg := mysqldrv.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	if v := q.Get("user"); v != "" {
		cfg.User = v
	}
	if v := q.Get("password"); v != "" {
		cfg.Passwd = v
	}

	charset := "utf8mb4"
	if v := q.Get("characterEncoding"); v != "" {
		charset = v
	}
	if v := q.Get("charset"); v != "" {
		charset = v
	}
	cfg.Params = map[string]string{"charset": charset}

	switch strings.ToLower(q.Get("useSSL")) {
	case "true", "1":
		cfg.TLSConfig = "true"
	case "skip-verify", "preferred":
		cfg.TLSConfig = strings.ToLower(q.Get("useSSL"))
	}

	if tz := q.Get("serverTimezone"); tz != "" {
		loc, err := jdbcLocation(tz)
		if err != nil {
			return nil, err
		}
		cfg.Loc = loc
	}
	return cfg, nil
}

// jdbcLocation 支持 IANA 名称以及 GMT+8 / UTC-5 这类偏移写法
func jdbcLocation(tz string) (*time.Location, error) {
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	for _, p := range []string{"GMT", "UTC"} {
		rest, ok := strings.CutPrefix(tz, p)
		if !ok {
			continue
		}
		h, err := strconv.Atoi(rest)
		if err != nil || h < -12 || h > 14 {
			break
		}
		// Etc/GMT 的符号与习惯相反
		return time.LoadLocation(fmt.Sprintf("Etc/GMT%+d", -h))
	}
	return nil, fmt.Errorf("unknown serverTimezone %q", tz)
}
