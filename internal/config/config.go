package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"camwatch/internal/camera"
)

// Duration は設定ファイルで "1s" のような文字列として書ける time.Duration
type Duration time.Duration

// UnmarshalText は文字列を time.ParseDuration で解釈する
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText は time.Duration の文字列表現を返す
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std は time.Duration に変換する
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Camera  CameraConfig  `yaml:"camera" toml:"camera"`
	Hotplug HotplugConfig `yaml:"hotplug" toml:"hotplug"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"` // リッスンするホスト
	Port int    `yaml:"port" toml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  Duration `yaml:"read_timeout" toml:"read_timeout"`   // 読み込みタイムアウト
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"` // 書き込みタイムアウト（0で無効）
}

// CameraConfig はデバイス監視とキャプチャの設定
type CameraConfig struct {
	InputFormat  string   `yaml:"input_format" toml:"input_format"`   // 空なら OS から決める
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"` // 定期再同期の間隔
	SysfsRoot    string   `yaml:"sysfs_root" toml:"sysfs_root"`       // v4l2 の列挙に使う sysfs

	// キャプチャ設定（0 ならデバイスのデフォルト）
	FPS    int `yaml:"fps" toml:"fps"`
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`
}

// HotplugConfig はデバイスノードの監視設定
type HotplugConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Dir     string   `yaml:"dir" toml:"dir"`
	Prefix  string   `yaml:"prefix" toml:"prefix"`
	Delay   Duration `yaml:"delay" toml:"delay"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // console, json

	// File を指定するとローテーション付きでファイルにも書き出す
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  Duration(DefaultReadTimeout),
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			PollInterval: Duration(camera.DefaultInterval),
			SysfsRoot:    camera.DefaultSysfsRoot,
		},
		Hotplug: HotplugConfig{
			Enabled: true,
			Dir:     camera.DefaultDevRoot,
			Prefix:  DefaultHotplugPrefix,
			Delay:   Duration(camera.DefaultHotplugDelay),
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値 → path の設定ファイル（空なら読まない）→ 環境変数 の順に上書きし、最後に検証する。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile は拡張子で形式を判断して設定ファイルを読む
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("サポートされていない設定ファイル形式: %q", ext)
	}
	if err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() error {
	c.Server.Host = getEnvOrDefault("CAMWATCH_HOST", c.Server.Host)
	c.Camera.InputFormat = getEnvOrDefault("CAMWATCH_INPUT_FORMAT", c.Camera.InputFormat)
	c.Log.Level = getEnvOrDefault("CAMWATCH_LOG_LEVEL", c.Log.Level)

	var err error
	if value := os.Getenv("PORT"); value != "" {
		port, convErr := strconv.Atoi(value)
		if convErr != nil {
			err = multierr.Append(err, fmt.Errorf("PORT: %w", convErr))
		} else {
			c.Server.Port = port
		}
	}
	if value := os.Getenv("CAMWATCH_POLL_INTERVAL"); value != "" {
		var interval Duration
		if parseErr := interval.UnmarshalText([]byte(value)); parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("CAMWATCH_POLL_INTERVAL: %w", parseErr))
		} else {
			c.Camera.PollInterval = interval
		}
	}
	return err
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var err error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		err = multierr.Append(err, errors.New("タイムアウトに負の値は指定できません"))
	}

	// カメラ設定の検証
	if c.Camera.PollInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("無効な監視間隔: %v", c.Camera.PollInterval.Std()))
	}
	if _, formatErr := c.Camera.Format(); formatErr != nil {
		err = multierr.Append(err, formatErr)
	}
	if c.Camera.FPS < 0 || c.Camera.Width < 0 || c.Camera.Height < 0 {
		err = multierr.Append(err, errors.New("キャプチャ設定に負の値は指定できません"))
	}

	if c.Hotplug.Enabled && c.Hotplug.Dir == "" {
		err = multierr.Append(err, errors.New("ホットプラグ監視のディレクトリが指定されていません"))
	}

	// ログ設定の検証
	if _, levelErr := zapcore.ParseLevel(c.Log.Level); levelErr != nil {
		err = multierr.Append(err, fmt.Errorf("無効なログレベル: %q", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		err = multierr.Append(err, fmt.Errorf("無効なログ形式: %q", c.Log.Format))
	}

	return err
}

// Format は入力フォーマットを返す。未指定なら空文字列
func (c CameraConfig) Format() (camera.InputFormat, error) {
	if c.InputFormat == "" {
		return "", nil
	}
	return camera.ParseInputFormat(c.InputFormat)
}

// CaptureSettings はキャプチャ設定を返す
func (c CameraConfig) CaptureSettings() camera.CaptureSettings {
	return camera.CaptureSettings{Width: c.Width, Height: c.Height, FPS: c.FPS}
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
