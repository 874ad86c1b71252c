package camera

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultInterval は定期再同期のデフォルト間隔
const DefaultInterval = time.Second

type options struct {
	format   InputFormat
	source   Source
	registry *SourceRegistry
	factory  Factory
	clock    clock.Clock
	interval time.Duration
	logger   *zap.SugaredLogger
	metrics  *Metrics
	goos     string
}

// Option は Watcher の構築オプション
type Option func(*options)

// WithInputFormat は入力フォーマットを明示する。省略時はホストの OS から決める
func WithInputFormat(format InputFormat) Option {
	return func(o *options) { o.format = format }
}

// WithSource はレジストリを使わずに Source を直接渡す。Source の所有権は Watcher に移る
func WithSource(source Source) Option {
	return func(o *options) { o.source = source }
}

// WithSourceRegistry は Source の確保に使うレジストリを差し替える
func WithSourceRegistry(registry *SourceRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithFactory はキャプチャセッションを作る Factory を差し替える
func WithFactory(factory Factory) Option {
	return func(o *options) { o.factory = factory }
}

// WithInterval は定期再同期の間隔を設定する
func WithInterval(interval time.Duration) Option {
	return func(o *options) { o.interval = interval }
}

// WithClock はタイマーに使う時計を差し替える
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithLogger はロガーを設定する
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics はメトリクスの記録先を設定する
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

type subscription struct {
	id      uuid.UUID
	handler DeviceHandler
}

type errorSubscription struct {
	id      uuid.UUID
	handler func(error)
}

// Watcher はカメラデバイスの現在の集合を保持し、再同期と変更通知を行う
//
// 状態は NotWatching ⇄ Watching → Disposed と遷移し、Disposed からは戻らない。
// 通知ハンドラの中から Resynchronize や Dispose を呼んではならない（デッドロックする）。
// StartWatching と StopWatching はハンドラの中から呼べる。
type Watcher struct {
	format   InputFormat
	source   Source
	factory  Factory
	clock    clock.Clock
	interval time.Duration
	logger   *zap.SugaredLogger
	metrics  *Metrics

	devices  atomic.Pointer[DeviceSet]
	watching atomic.Bool
	disposed atomic.Bool

	// 追加・削除ハンドラの呼び出し中は true（syncMu 保持中）
	dispatching atomic.Bool

	// 列挙→差分→通知→差し替えを直列化する
	syncMu sync.Mutex

	// スケジュールの状態
	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	lastErr error

	subMu         sync.RWMutex
	addedSubs     []subscription
	removedSubs   []subscription
	errorHandlers []errorSubscription
}

// NewWatcher は Watcher を作成し、最初の再同期を同期的に行う
//
// 作成直後は監視していない状態になる。初期同期に失敗した場合は確保した Source を解放してからエラーを返す。
func NewWatcher(ctx context.Context, opts ...Option) (*Watcher, error) {
	o := options{
		clock:    clock.New(),
		interval: DefaultInterval,
		logger:   zap.NewNop().Sugar(),
		goos:     runtime.GOOS,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.interval <= 0 {
		return nil, fmt.Errorf("無効な監視間隔: %v", o.interval)
	}

	format := o.format
	if format == "" {
		resolved, err := ResolveInputFormat(o.goos)
		if err != nil {
			return nil, err
		}
		format = resolved
	}

	source := o.source
	if source == nil {
		registry := o.registry
		if registry == nil {
			registry = DefaultSourceRegistry()
		}
		opened, err := registry.Open(format)
		if err != nil {
			return nil, err
		}
		source = opened
	}

	factory := o.factory
	if factory == nil {
		factory = NewFFmpegFactory(o.logger)
	}

	w := &Watcher{
		format:   format,
		source:   source,
		factory:  factory,
		clock:    o.clock,
		interval: o.interval,
		logger:   o.logger.With("input_format", string(format)),
		metrics:  o.metrics,
	}
	empty := DeviceSetOf()
	w.devices.Store(&empty)

	if err := w.Resynchronize(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("初期同期に失敗: %w", err), source.Close())
	}

	w.logger.Debugw("watcher を作成しました", "devices", w.Devices().Len())
	return w, nil
}

// InputFormat は構築時に決まった入力フォーマットを返す
func (w *Watcher) InputFormat() InputFormat {
	return w.format
}

// Interval は定期再同期の間隔を返す
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// IsWatching は定期再同期が有効か返す
func (w *Watcher) IsWatching() bool {
	return w.watching.Load()
}

// Devices は現在のスナップショットを返す
//
// 再同期と並行に呼んでも、再同期前か後のどちらかの完全なスナップショットが返る。
func (w *Watcher) Devices() DeviceSet {
	return *w.devices.Load()
}

// LastError は直近の定期再同期のエラーを返す。成功していれば nil
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Resynchronize はデバイスを列挙し、変化があれば通知してからスナップショットを差し替える
func (w *Watcher) Resynchronize(ctx context.Context) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	if w.disposed.Load() {
		return ErrDisposed
	}

	return w.resynchronizeLocked(ctx)
}

// resynchronizeLocked は実際の再同期処理を実行する（syncMu 取得済み前提）
func (w *Watcher) resynchronizeLocked(ctx context.Context) error {
	raw, err := w.source.Enumerate(ctx)
	if err != nil {
		w.metrics.observeResync(resyncError)
		var enumErr *PlatformEnumerationError
		if errors.As(err, &enumErr) {
			return err
		}
		return &PlatformEnumerationError{Format: w.format, Err: err}
	}

	current, err := NewDeviceSet(raw)
	if err != nil {
		w.metrics.observeResync(resyncError)
		return err
	}

	previous := w.Devices()
	if previous.Equal(current) {
		w.metrics.observeResync(resyncUnchanged)
		return nil
	}

	delta := Reconcile(previous, current)
	if err := w.dispatch(delta); err != nil {
		w.metrics.observeResync(resyncError)
		return err
	}

	w.devices.Store(&current)
	w.metrics.observeResync(resyncChanged)
	w.metrics.setDevices(current.Len())
	return nil
}

// dispatch は追加を全て通知してから削除を通知する
func (w *Watcher) dispatch(delta Delta) error {
	w.dispatching.Store(true)
	defer w.dispatching.Store(false)

	w.subMu.RLock()
	added := append([]subscription(nil), w.addedSubs...)
	removed := append([]subscription(nil), w.removedSubs...)
	w.subMu.RUnlock()

	for _, device := range delta.Added {
		w.logger.Infow("カメラが接続されました", "name", device.Name, "path", device.Path)
		for _, sub := range added {
			if err := sub.handler(device); err != nil {
				return fmt.Errorf("デバイス追加の通知に失敗 (%s): %w", device.Path, err)
			}
		}
		w.metrics.observeEvent(eventAdded)
	}

	for _, device := range delta.Removed {
		w.logger.Infow("カメラが切断されました", "name", device.Name, "path", device.Path)
		for _, sub := range removed {
			if err := sub.handler(device); err != nil {
				return fmt.Errorf("デバイス削除の通知に失敗 (%s): %w", device.Path, err)
			}
		}
		w.metrics.observeEvent(eventRemoved)
	}

	return nil
}

// StartWatching は1回同期的に再同期してから定期再同期を開始する
//
// 最初の再同期が失敗した場合はエラーを返し、スケジュールは変更しない。
// 監視中に呼ぶとスケジュールを張り直す。スケジュールが二重になることは無い。
// 通知の配信中は再同期が進行中なので、最初の再同期を省いてスケジュールだけ張る。
func (w *Watcher) StartWatching(ctx context.Context) error {
	if !w.dispatching.Load() {
		if err := w.Resynchronize(ctx); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.disposed.Load() {
		return ErrDisposed
	}

	w.disarmLocked()

	stopCh := make(chan struct{})
	ticker := w.clock.Ticker(w.interval)
	w.stopCh = stopCh
	w.watching.Store(true)

	w.wg.Add(1)
	go w.watchLoop(context.WithoutCancel(ctx), ticker, stopCh)

	w.logger.Debugw("監視を開始しました", "interval", w.interval)
	return nil
}

// StopWatching は定期再同期を停止する。実行中の再同期は中断しない
func (w *Watcher) StopWatching() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.disposed.Load() {
		return ErrDisposed
	}

	if w.stopCh != nil {
		w.logger.Debugw("監視を停止しました")
	}
	w.disarmLocked()
	return nil
}

// disarmLocked はスケジュールを解除する（mu 取得済み前提）
func (w *Watcher) disarmLocked() {
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	w.watching.Store(false)
}

// watchLoop はティックごとに再同期を実行する
func (w *Watcher) watchLoop(ctx context.Context, ticker *clock.Ticker, stopCh <-chan struct{}) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// 停止と同時に届いたティックでは再同期しない
			select {
			case <-stopCh:
				return
			default:
			}
			w.tick(ctx)
		}
	}
}

// tick は定期再同期を1回実行し、失敗をハンドラに報告する
func (w *Watcher) tick(ctx context.Context) {
	err := w.recoverResynchronize(ctx)
	if errors.Is(err, ErrDisposed) {
		return
	}

	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()

	if err == nil {
		return
	}

	w.logger.Warnw("定期再同期に失敗しました", "error", err)

	w.subMu.RLock()
	handlers := append([]errorSubscription(nil), w.errorHandlers...)
	w.subMu.RUnlock()
	for _, sub := range handlers {
		sub.handler(err)
	}
}

// recoverResynchronize はハンドラのパニックでタイマーが止まらないようにエラーへ変換する
func (w *Watcher) recoverResynchronize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("定期再同期中にパニック: %v", r)
		}
	}()
	return w.Resynchronize(ctx)
}

// Camera はセレクタに一致するデバイスのキャプチャセッションを開く
//
// Index と Path は現在のスナップショットから解決する。DeviceInfo はそのまま開く。
func (w *Watcher) Camera(ctx context.Context, selector Selector) (Handle, error) {
	if w.disposed.Load() {
		return nil, ErrDisposed
	}
	if selector == nil {
		return nil, &DeviceNotFoundError{Selector: "<nil>"}
	}

	device, ok := selector.resolve(w.Devices())
	if !ok {
		return nil, &DeviceNotFoundError{Selector: selector.String()}
	}

	handle, err := w.factory.Open(ctx, device, w.format)
	if err != nil {
		return nil, fmt.Errorf("カメラ %s のオープンに失敗: %w", device.Path, err)
	}
	return handle, nil
}

// OnDeviceAdded はデバイス追加の通知ハンドラを登録し、解除関数を返す
func (w *Watcher) OnDeviceAdded(handler DeviceHandler) func() {
	return w.subscribe(&w.addedSubs, handler)
}

// OnDeviceRemoved はデバイス削除の通知ハンドラを登録し、解除関数を返す
func (w *Watcher) OnDeviceRemoved(handler DeviceHandler) func() {
	return w.subscribe(&w.removedSubs, handler)
}

// OnError は定期再同期の失敗を受け取るハンドラを登録し、解除関数を返す
func (w *Watcher) OnError(handler func(error)) func() {
	id := uuid.New()

	w.subMu.Lock()
	w.errorHandlers = append(w.errorHandlers, errorSubscription{id: id, handler: handler})
	w.subMu.Unlock()

	return func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		for i, sub := range w.errorHandlers {
			if sub.id == id {
				w.errorHandlers = append(w.errorHandlers[:i:i], w.errorHandlers[i+1:]...)
				return
			}
		}
	}
}

func (w *Watcher) subscribe(subs *[]subscription, handler DeviceHandler) func() {
	id := uuid.New()

	w.subMu.Lock()
	*subs = append(*subs, subscription{id: id, handler: handler})
	w.subMu.Unlock()

	return func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		for i, sub := range *subs {
			if sub.id == id {
				*subs = append((*subs)[:i:i], (*subs)[i+1:]...)
				return
			}
		}
	}
}

// Dispose は監視を止め、実行中のティックと再同期の完了を待ってから Source を解放する
//
// 2回目以降の呼び出しは ErrDisposed を返す。
func (w *Watcher) Dispose() error {
	if !w.disposed.CompareAndSwap(false, true) {
		return ErrDisposed
	}

	w.mu.Lock()
	w.disarmLocked()
	w.mu.Unlock()

	// ループの終了を待つ
	w.wg.Wait()

	// 手動の再同期の完了を待つ
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	if err := w.source.Close(); err != nil {
		return fmt.Errorf("列挙コンテキストの解放に失敗: %w", err)
	}

	w.logger.Debugw("watcher を破棄しました")
	return nil
}

// Close は Dispose と同じ
func (w *Watcher) Close() error {
	return w.Dispose()
}
