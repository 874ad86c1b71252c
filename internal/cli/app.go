// Package cli は camwatch コマンドのサブコマンドを定義する
package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"camwatch/internal/camera"
	"camwatch/internal/config"
	"camwatch/internal/logging"
)

// フラグ名
const (
	flagConfig   = "config"
	flagFormat   = "format"
	flagLogLevel = "log-level"
	flagHost     = "host"
	flagPort     = "port"
	flagTUI      = "tui"
	flagIndex    = "index"
	flagPath     = "path"
	flagOutput   = "output"
	flagTimeout  = "timeout"
)

// NewApp は camwatch の cli.App を作成する
func NewApp() *cli.App {
	return &cli.App{
		Name:  "camwatch",
		Usage: "カメラの接続と切断を監視する",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "設定ファイル `FILE` を読み込む (.yaml / .toml)",
				EnvVars: []string{"CAMWATCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    flagFormat,
				Aliases: []string{"f"},
				Usage:   "入力フォーマット (dshow, v4l2, avfoundation, mediadevices)。省略時は OS から決める",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "ログレベル (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			listCommand(),
			watchCommand(),
			formatsCommand(),
			snapshotCommand(),
		},
	}
}

// env はサブコマンドが共有する設定とロガー
type env struct {
	cfg    *config.Config
	logger *logging.Logger
}

// setup は設定を読み込み、グローバルフラグで上書きしてロガーを作る
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	if format := c.String(flagFormat); format != "" {
		cfg.Camera.InputFormat = format
	}
	if level := c.String(flagLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	logger, err := logging.New(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// sourceRegistry は設定の sysfs ルートを使う v4l2 Source を登録したレジストリを返す
func (e *env) sourceRegistry() *camera.SourceRegistry {
	registry := camera.DefaultSourceRegistry()
	sysfsRoot := e.cfg.Camera.SysfsRoot
	registry.Register(camera.FormatV4L2, func(camera.InputFormat) (camera.Source, error) {
		return camera.NewV4L2Source(sysfsRoot), nil
	})
	return registry
}

// newWatcher は設定から Watcher を作成する。metrics は nil でもよい
func (e *env) newWatcher(ctx context.Context, metrics *camera.Metrics) (*camera.Watcher, error) {
	format, err := e.cfg.Camera.Format()
	if err != nil {
		return nil, err
	}

	factory := camera.NewFFmpegFactory(e.logger.SugaredLogger).
		WithSettings(e.cfg.Camera.CaptureSettings())

	opts := []camera.Option{
		camera.WithInterval(e.cfg.Camera.PollInterval.Std()),
		camera.WithSourceRegistry(e.sourceRegistry()),
		camera.WithFactory(factory),
		camera.WithLogger(e.logger.SugaredLogger),
		camera.WithMetrics(metrics),
	}
	if format != "" {
		opts = append(opts, camera.WithInputFormat(format))
	}

	watcher, err := camera.NewWatcher(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("カメラ監視の初期化に失敗しました: %w", err)
	}
	return watcher, nil
}

// defaultFormat は設定か OS から決まる入力フォーマットを返す
func (e *env) defaultFormat() (camera.InputFormat, error) {
	format, err := e.cfg.Camera.Format()
	if err != nil || format != "" {
		return format, err
	}
	return camera.ResolveInputFormat(runtime.GOOS)
}

// close は watcher とロガーを解放する
func (e *env) close(watcher *camera.Watcher) error {
	var err error
	if watcher != nil {
		err = multierr.Append(err, watcher.Dispose())
	}
	return multierr.Append(err, e.logger.Close())
}
