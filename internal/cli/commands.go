package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"camwatch/internal/camera"
	"camwatch/internal/server"
	"camwatch/internal/ui"
)

// defaultSnapshotTimeout は snapshot コマンドがフレームを待つ時間
const defaultSnapshotTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "HTTP API とイベント配信を起動する",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagHost, Usage: "リッスンするホスト"},
			&cli.IntFlag{Name: flagPort, Usage: "リッスンするポート"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) (err error) {
	e, err := setup(c)
	if err != nil {
		return err
	}
	if host := c.String(flagHost); host != "" {
		e.cfg.Server.Host = host
	}
	if c.IsSet(flagPort) {
		e.cfg.Server.Port = c.Int(flagPort)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := camera.NewMetrics(registry)
	if err != nil {
		_ = e.logger.Close()
		return err
	}

	watcher, err := e.newWatcher(ctx, metrics)
	if err != nil {
		_ = e.logger.Close()
		return err
	}
	defer func() {
		if closeErr := e.close(watcher); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := watcher.StartWatching(ctx); err != nil {
		return fmt.Errorf("監視の開始に失敗しました: %w", err)
	}

	srv := server.New(e.cfg, watcher, registry, server.WithLogger(e.logger.SugaredLogger))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	// デバイスノードの増減で即座に再同期する
	if e.cfg.Hotplug.Enabled && watcher.InputFormat() == camera.FormatV4L2 {
		trigger, err := camera.NewHotplugTrigger(e.cfg.Hotplug.Dir, e.cfg.Hotplug.Prefix,
			e.cfg.Hotplug.Delay.Std(), watcher, e.logger.SugaredLogger)
		if err != nil {
			e.logger.Warnw("ホットプラグ監視を開始できません。定期再同期のみで監視します", "error", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				return trigger.Close()
			})
		}
	}

	e.logger.Infow("camwatch を起動しました",
		"addr", e.cfg.ServerAddress(),
		"format", watcher.InputFormat(),
		"devices", watcher.Devices().Len(),
	)
	return g.Wait()
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "接続中のカメラを一覧表示する",
		Action: func(c *cli.Context) (err error) {
			e, err := setup(c)
			if err != nil {
				return err
			}
			watcher, err := e.newWatcher(c.Context, nil)
			if err != nil {
				_ = e.logger.Close()
				return err
			}
			defer func() { err = multierr.Append(err, e.close(watcher)) }()

			return printDevices(c.App.Writer, watcher.Devices())
		},
	}
}

// printDevices はデバイス一覧を表形式で出力する
func printDevices(w io.Writer, set camera.DeviceSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tPATH")
	for i, d := range set.Devices() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, lo.Ternary(d.Name == "", "-", d.Name), d.Path)
	}
	return tw.Flush()
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "カメラの接続と切断を表示し続ける",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: flagTUI, Usage: "ターミナル UI で表示する"},
		},
		Action: runWatch,
	}
}

func runWatch(c *cli.Context) (err error) {
	e, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := e.newWatcher(ctx, nil)
	if err != nil {
		_ = e.logger.Close()
		return err
	}
	defer func() { err = multierr.Append(err, e.close(watcher)) }()

	if c.Bool(flagTUI) {
		model := ui.NewModel(watcher)
		defer model.Close()
		if err := watcher.StartWatching(ctx); err != nil {
			return fmt.Errorf("監視の開始に失敗しました: %w", err)
		}
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}

	out := c.App.Writer
	if err := printDevices(out, watcher.Devices()); err != nil {
		return err
	}

	unsubscribe := []func(){
		watcher.OnDeviceAdded(func(d camera.DeviceInfo) error {
			fmt.Fprintf(out, "+ %s\n", d)
			return nil
		}),
		watcher.OnDeviceRemoved(func(d camera.DeviceInfo) error {
			fmt.Fprintf(out, "- %s\n", d)
			return nil
		}),
		watcher.OnError(func(err error) {
			fmt.Fprintf(out, "! %v\n", err)
		}),
	}
	defer func() {
		for _, u := range unsubscribe {
			u()
		}
	}()

	if err := watcher.StartWatching(ctx); err != nil {
		return fmt.Errorf("監視の開始に失敗しました: %w", err)
	}
	<-ctx.Done()
	return nil
}

func formatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "formats",
		Usage: "利用できる入力フォーマットを表示する (* は既定値)",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Close() }()

			// 未対応プラットフォームでは既定値が無いだけで一覧は出す
			current, _ := e.defaultFormat()
			for _, format := range e.sourceRegistry().Formats() {
				fmt.Fprintf(c.App.Writer, "%s %s\n", lo.Ternary(format == current, "*", " "), format)
			}
			return nil
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "カメラから静止画を1枚取得して JPEG で保存する",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: flagIndex, Aliases: []string{"i"}, Usage: "デバイスの番号"},
			&cli.StringFlag{Name: flagPath, Aliases: []string{"p"}, Usage: "デバイスのパス (index より優先)"},
			&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Value: "snapshot.jpg", Usage: "出力先。- で標準出力"},
			&cli.DurationFlag{Name: flagTimeout, Value: defaultSnapshotTimeout, Usage: "フレームを待つ時間"},
		},
		Action: runSnapshot,
	}
}

func runSnapshot(c *cli.Context) (err error) {
	e, err := setup(c)
	if err != nil {
		return err
	}
	watcher, err := e.newWatcher(c.Context, nil)
	if err != nil {
		_ = e.logger.Close()
		return err
	}
	defer func() { err = multierr.Append(err, e.close(watcher)) }()

	var selector camera.Selector = camera.Index(c.Int(flagIndex))
	if path := c.String(flagPath); path != "" {
		selector = camera.Path(path)
	}

	handle, err := watcher.Camera(c.Context, selector)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, handle.Close()) }()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration(flagTimeout))
	defer cancel()
	frame, err := camera.FirstFrame(ctx, handle)
	if err != nil {
		return err
	}

	output := c.String(flagOutput)
	if output == "-" {
		_, err = c.App.Writer.Write(frame)
		return err
	}
	if err := os.WriteFile(output, frame, 0o644); err != nil {
		return fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	e.logger.Infow("静止画を保存しました", "device", handle.Device().String(), "output", output, "bytes", len(frame))
	return nil
}
