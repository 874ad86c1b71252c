// Package logging はアプリケーション全体で使う zap ロガーを組み立てる
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"camwatch/internal/config"
)

// Logger は zap.SugaredLogger と、それが書き込むファイルをまとめたもの
type Logger struct {
	*zap.SugaredLogger
	file *lumberjack.Logger
}

// New は設定からロガーを作成する。out が nil なら標準エラー出力に書く
//
// File が指定されていれば、同じログを JSON 形式でローテーション付きのファイルにも書く。
func New(cfg config.LogConfig, out io.Writer) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル %q: %w", cfg.Level, err)
	}
	if out == nil {
		out = os.Stderr
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig(zapcore.CapitalLevelEncoder))
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalColorLevelEncoder))
	default:
		return nil, fmt.Errorf("無効なログ形式: %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(out), level),
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		fileEncoder := zapcore.NewJSONEncoder(encoderConfig(zapcore.CapitalLevelEncoder))
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return &Logger{SugaredLogger: logger.Sugar(), file: file}, nil
}

// Nop は何も出力しないロガーを返す
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Close はバッファを書き出し、ログファイルを閉じる
func (l *Logger) Close() error {
	// 端末への Sync はプラットフォームによって失敗するので無視する
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func encoderConfig(levelEncoder zapcore.LevelEncoder) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
