package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"blog-account-server/internal/feature/setting"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}
type AdminHTTP struct {
	Host string
	Port int
}

type CORS struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
	CORS  CORS `mapstructure:"cors"`
}

type Rotate struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level  string
	JSON   bool
	Rotate Rotate
}

// JWT Secret 只在本地配置；Issuer/ExpireSec 是 system_setting 的初始值
type JWT struct {
	Secret    string
	Issuer    string
	ExpireSec int64
}

type Redis struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Prefix     string `mapstructure:"prefix"`
	UserTTLSec int    `mapstructure:"user_ttl_sec"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Account 注册/登录策略
type Account struct {
	AutoEnable         bool   `mapstructure:"auto_enable"`
	FirstUserAdmin     bool   `mapstructure:"first_user_admin"`
	RevealState        bool   `mapstructure:"reveal_state"`
	ActivationTTLHours int    `mapstructure:"activation_ttl_hours"`
	ActivationURL      string `mapstructure:"activation_url"`
	// 登录/注册接口按 IP 限速
	LoginRPS   float64 `mapstructure:"login_rps"`
	LoginBurst int     `mapstructure:"login_burst"`
}

type Crypto struct {
	FieldKey string `mapstructure:"field_key"` // 64 位 hex；为空则手机号明文存储
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	DB      DB
	Redis   Redis `mapstructure:"redis"`
	Account Account
	Crypto  Crypto
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "blog-account")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 10)
	v.SetDefault("app.http.writetimeoutsec", 15)
	v.SetDefault("app.http.idletimeoutsec", 60)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.issuer", "blog")
	v.SetDefault("jwt.expiresec", 7*24*3600)
	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.maxopenconns", 50)
	v.SetDefault("db.maxidleconns", 10)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.automigrate", true)
	v.SetDefault("db.loglevel", "warn")
	v.SetDefault("redis.prefix", "blog:")
	v.SetDefault("redis.user_ttl_sec", 600)
	v.SetDefault("account.auto_enable", false)
	v.SetDefault("account.first_user_admin", true)
	v.SetDefault("account.reveal_state", true)
	v.SetDefault("account.activation_ttl_hours", 24)
	v.SetDefault("account.login_rps", 2)
	v.SetDefault("account.login_burst", 10)
	v.SetDefault("crypto.field_key", "")
}

// Read 读取配置文件并应用 APP_ 前缀的环境变量覆盖
func Read(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) *Config {
	c, err := Read(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return c
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	return nil
}

// LocalSettings 本地配置作为 setting.Provider；数据库打开之前唯一可用的配置源
func (c *Config) LocalSettings() setting.MapProvider {
	m := setting.MapProvider{
		setting.KeyDatabaseURL:      c.DB.DSN,
		setting.KeyDatabaseUsername: c.DB.Username,
		setting.KeyDatabasePassword: c.DB.Password,
	}
	if c.JWT.Issuer != "" {
		m[setting.KeyTokenIssuer] = c.JWT.Issuer
	}
	if c.JWT.ExpireSec > 0 {
		m[setting.KeyTokenExpire] = strconv.FormatInt(c.JWT.ExpireSec, 10)
	}
	if c.Account.ActivationURL != "" {
		m[setting.KeyActivationURL] = c.Account.ActivationURL
	}
	return m
}
