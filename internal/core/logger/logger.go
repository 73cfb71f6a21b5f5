package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006-01-02 15:04:05.000"

// FileRotate 文件输出与切割，字段与配置 log.rotate 一一对应
type FileRotate struct {
	Enable     bool
	Filename   string // 如 logs/account.log
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Options struct {
	Level    string // debug / info / warn / error，无法识别时按 info
	JSON     bool
	Service  string // 非空时每条日志带 service 字段
	NoStdout bool   // 只写文件
	Rotate   FileRotate
}

// Build 返回 logger 与收尾函数（Sync + 关闭切割文件）
func Build(opt Options) (*zap.Logger, func()) {
	lvl, err := zapcore.ParseLevel(opt.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cores []zapcore.Core
	if !opt.NoStdout {
		cores = append(cores, zapcore.NewCore(encoder(opt.JSON, true), zapcore.Lock(os.Stdout), lvl))
	}

	var file *lumberjack.Logger
	if opt.Rotate.Enable {
		file = rotator(opt.Rotate)
		// 文件里不写颜色
		cores = append(cores, zapcore.NewCore(encoder(opt.JSON, false), zapcore.AddSync(file), lvl))
	}

	// 同一秒内同一条消息前 100 条照写，之后每 100 条留 1 条
	core := zapcore.NewSamplerWithOptions(zapcore.NewTee(cores...), time.Second, 100, 100)

	zopts := []zap.Option{zap.AddCaller()}
	if !opt.JSON {
		zopts = append(zopts, zap.Development())
	}
	if opt.Service != "" {
		zopts = append(zopts, zap.Fields(zap.String("service", opt.Service)))
	}
	l := zap.New(core, zopts...)

	return l, func() {
		_ = l.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
}

func encoder(json, color bool) zapcore.Encoder {
	if json {
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeCaller = zapcore.ShortCallerEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	if color {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

func rotator(r FileRotate) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   r.Filename,
		MaxSize:    max(1, r.MaxSizeMB),
		MaxBackups: max(0, r.MaxBackups),
		MaxAge:     max(0, r.MaxAgeDays),
		Compress:   r.Compress,
	}
}

// lineWriter 把一次 Write 当作一条日志
type lineWriter struct {
	l     *zap.Logger
	level zapcore.Level
}

func (w lineWriter) Write(p []byte) (int, error) {
	if ce := w.l.Check(w.level, strings.TrimRight(string(p), "\r\n")); ce != nil {
		ce.Write()
	}
	return len(p), nil
}

// ToWriter 给 gin.DefaultWriter 之类只认 io.Writer 的地方用
func ToWriter(l *zap.Logger, level zapcore.Level) io.Writer {
	return lineWriter{l: l, level: level}
}

// RedirectStdLog 标准库 log 改走 zap，返回恢复函数
func RedirectStdLog(l *zap.Logger, level zapcore.Level) func() {
	undo, err := zap.RedirectStdLogAt(l, level)
	if err != nil {
		return func() {}
	}
	return undo
}
