package config

import "time"

// デフォルト設定値
const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8080
	DefaultReadTimeout = 10 * time.Second

	DefaultHotplugPrefix = "video"

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
)
