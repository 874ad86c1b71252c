package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"camwatch/internal/camera"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗しました: %v", err)
	}
	return path
}

// clearEnv は上書きに使う環境変数をテスト中だけ空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CAMWATCH_HOST", "PORT", "CAMWATCH_INPUT_FORMAT", "CAMWATCH_POLL_INTERVAL", "CAMWATCH_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

// TestConfigLoad_Defaults はファイル無しでデフォルト値が使われることをテストする
func TestConfigLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != DefaultHost || cfg.Server.Port != DefaultPort {
		t.Errorf("サーバー設定が不正です: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout.Std() != DefaultReadTimeout {
		t.Errorf("読み込みタイムアウトが不正です: %v", cfg.Server.ReadTimeout.Std())
	}
	if cfg.Camera.PollInterval.Std() != camera.DefaultInterval {
		t.Errorf("監視間隔が不正です: %v", cfg.Camera.PollInterval.Std())
	}
	if cfg.Camera.InputFormat != "" {
		t.Errorf("入力フォーマットは空であるべきです: %q", cfg.Camera.InputFormat)
	}
	if !cfg.Hotplug.Enabled || cfg.Hotplug.Dir != camera.DefaultDevRoot {
		t.Errorf("ホットプラグ設定が不正です: %+v", cfg.Hotplug)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("ログ設定が不正です: %+v", cfg.Log)
	}
}

// TestConfigLoad_YAML はYAMLファイルの読み込みをテストする
func TestConfigLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "camwatch.yaml", `
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 3s
camera:
  input_format: v4l2
  poll_interval: 500ms
  width: 1280
  height: 720
  fps: 30
hotplug:
  enabled: false
log:
  level: debug
  format: json
  file: /tmp/camwatch.log
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.ServerAddress() != "127.0.0.1:9090" {
		t.Errorf("アドレスが不正です: %s", cfg.ServerAddress())
	}
	if cfg.Server.ReadTimeout.Std() != 3*time.Second {
		t.Errorf("読み込みタイムアウトが不正です: %v", cfg.Server.ReadTimeout.Std())
	}
	if cfg.Camera.PollInterval.Std() != 500*time.Millisecond {
		t.Errorf("監視間隔が不正です: %v", cfg.Camera.PollInterval.Std())
	}
	format, err := cfg.Camera.Format()
	if err != nil || format != camera.FormatV4L2 {
		t.Errorf("入力フォーマットが不正です: %s, %v", format, err)
	}
	if got := cfg.Camera.CaptureSettings(); got != (camera.CaptureSettings{Width: 1280, Height: 720, FPS: 30}) {
		t.Errorf("キャプチャ設定が不正です: %+v", got)
	}
	if cfg.Hotplug.Enabled {
		t.Error("ホットプラグは無効であるべきです")
	}
	if cfg.Log.Format != "json" || cfg.Log.File != "/tmp/camwatch.log" {
		t.Errorf("ログ設定が不正です: %+v", cfg.Log)
	}
	// ファイルに無い値はデフォルトのまま
	if cfg.Log.MaxBackups != DefaultLogMaxBackups {
		t.Errorf("max_backups はデフォルトのままであるべきです: %d", cfg.Log.MaxBackups)
	}
}

// TestConfigLoad_TOML はTOMLファイルの読み込みをテストする
func TestConfigLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "camwatch.toml", `
[server]
port = 8181

[camera]
input_format = "dshow"
poll_interval = "2s"

[hotplug]
enabled = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 8181 {
		t.Errorf("ポートが不正です: %d", cfg.Server.Port)
	}
	if cfg.Camera.PollInterval.Std() != 2*time.Second {
		t.Errorf("監視間隔が不正です: %v", cfg.Camera.PollInterval.Std())
	}
	if cfg.Camera.InputFormat != "dshow" {
		t.Errorf("入力フォーマットが不正です: %q", cfg.Camera.InputFormat)
	}
}

// TestConfigLoad_EnvOverrides は環境変数による上書きをテストする
func TestConfigLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "camwatch.yml", "server:\n  port: 9000\n")

	t.Setenv("CAMWATCH_HOST", "localhost")
	t.Setenv("PORT", "9999")
	t.Setenv("CAMWATCH_INPUT_FORMAT", "avfoundation")
	t.Setenv("CAMWATCH_POLL_INTERVAL", "250ms")
	t.Setenv("CAMWATCH_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.ServerAddress() != "localhost:9999" {
		t.Errorf("環境変数が優先されていません: %s", cfg.ServerAddress())
	}
	if cfg.Camera.InputFormat != "avfoundation" {
		t.Errorf("入力フォーマットが不正です: %q", cfg.Camera.InputFormat)
	}
	if cfg.Camera.PollInterval.Std() != 250*time.Millisecond {
		t.Errorf("監視間隔が不正です: %v", cfg.Camera.PollInterval.Std())
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("ログレベルが不正です: %q", cfg.Log.Level)
	}
}

// TestConfigLoad_Errors は読み込みエラーをテストする
func TestConfigLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "存在しないファイル",
			setup:   func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.yaml") },
			wantErr: "設定ファイルの読み込みに失敗",
		},
		{
			name:    "未対応の拡張子",
			setup:   func(t *testing.T) string { return writeTempConfig(t, "camwatch.json", "{}") },
			wantErr: "サポートされていない設定ファイル形式",
		},
		{
			name:    "不正なYAML",
			setup:   func(t *testing.T) string { return writeTempConfig(t, "camwatch.yaml", "server: [") },
			wantErr: "設定ファイルの解析に失敗",
		},
		{
			name: "不正な監視間隔",
			setup: func(t *testing.T) string {
				return writeTempConfig(t, "camwatch.toml", "[camera]\npoll_interval = \"soon\"\n")
			},
			wantErr: "設定ファイルの解析に失敗",
		},
		{
			name: "不正な環境変数",
			setup: func(t *testing.T) string {
				t.Setenv("PORT", "http")
				return ""
			},
			wantErr: "環境変数の読み込みに失敗",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			path := tc.setup(t)

			_, err := Load(path)
			if err == nil {
				t.Fatal("エラーが返されるべきです")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("エラーメッセージが不正です: %v", err)
			}
		})
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "無効なポート番号",
			modify:    func(c *Config) { c.Server.Port = 0 },
			expectErr: true,
		},
		{
			name:      "範囲外のポート番号",
			modify:    func(c *Config) { c.Server.Port = 70000 },
			expectErr: true,
		},
		{
			name:      "監視間隔が0",
			modify:    func(c *Config) { c.Camera.PollInterval = 0 },
			expectErr: true,
		},
		{
			name:      "不明な入力フォーマット",
			modify:    func(c *Config) { c.Camera.InputFormat = "gdigrab" },
			expectErr: true,
		},
		{
			name:      "負の解像度",
			modify:    func(c *Config) { c.Camera.Width = -1 },
			expectErr: true,
		},
		{
			name:      "ホットプラグのディレクトリが空",
			modify:    func(c *Config) { c.Hotplug.Dir = "" },
			expectErr: true,
		},
		{
			name: "ホットプラグ無効ならディレクトリは不要",
			modify: func(c *Config) {
				c.Hotplug.Enabled = false
				c.Hotplug.Dir = ""
			},
			expectErr: false,
		},
		{
			name:      "不明なログレベル",
			modify:    func(c *Config) { c.Log.Level = "verbose" },
			expectErr: true,
		},
		{
			name:      "不明なログ形式",
			modify:    func(c *Config) { c.Log.Format = "xml" },
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが返されませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("エラーが期待されませんでしたが、エラーが返されました: %v", err)
			}
		})
	}
}

// TestDuration_Text は Duration の文字列変換をテストする
func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText に失敗しました: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("期待値 90s, 実際 %v", d.Std())
	}

	text, err := d.MarshalText()
	if err != nil || string(text) != "1m30s" {
		t.Errorf("MarshalText の結果が不正です: %s, %v", text, err)
	}
}
