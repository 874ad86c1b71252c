package camera

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultHotplugDelay はデバイスノードの変化をまとめる待ち時間
const DefaultHotplugDelay = 250 * time.Millisecond

// Resynchronizer は再同期を要求できる対象
type Resynchronizer interface {
	Resynchronize(ctx context.Context) error
}

// HotplugTrigger はデバイスノードの作成・削除を検知して再同期を要求する
//
// 接続直後は複数のノードが続けて作られるので、一定時間内の変化は1回の再同期にまとめる。
type HotplugTrigger struct {
	watcher   *fsnotify.Watcher
	target    Resynchronizer
	prefix    string
	debounced func(func())
	logger    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewHotplugTrigger は dir 以下で prefix から始まるノードを監視する HotplugTrigger を作成する
func NewHotplugTrigger(dir, prefix string, delay time.Duration, target Resynchronizer, logger *zap.SugaredLogger) (*HotplugTrigger, error) {
	if delay <= 0 {
		delay = DefaultHotplugDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("%s の監視に失敗: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	trigger := &HotplugTrigger{
		watcher:   watcher,
		target:    target,
		prefix:    prefix,
		debounced: debounce.New(delay),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	trigger.wg.Add(1)
	go trigger.run()

	logger.Debugw("ホットプラグ監視を開始しました", "dir", dir, "prefix", prefix)
	return trigger, nil
}

func (h *HotplugTrigger) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if h.matches(event) {
				h.logger.Debugw("デバイスノードの変化を検出", "name", event.Name, "op", event.Op.String())
				h.debounced(h.resynchronize)
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warnw("ファイル監視でエラーが発生しました", "error", err)
		}
	}
}

func (h *HotplugTrigger) matches(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), h.prefix)
}

func (h *HotplugTrigger) resynchronize() {
	if h.closed.Load() {
		return
	}
	if err := h.target.Resynchronize(h.ctx); err != nil && !errors.Is(err, ErrDisposed) {
		h.logger.Warnw("ホットプラグによる再同期に失敗しました", "error", err)
	}
}

// Close は監視を停止する
func (h *HotplugTrigger) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.cancel()
	err := h.watcher.Close()
	h.wg.Wait()
	return err
}
