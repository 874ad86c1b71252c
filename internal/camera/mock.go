package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MockSource はテスト用のモック Source 実装
type MockSource struct {
	mu         sync.Mutex
	devices    []RawDevice
	err        error
	gate       chan struct{}
	entered    chan struct{}
	enumerates int
	closes     int
	closeErr   error
}

// NewMockSource は新しい MockSource を作成する
func NewMockSource(devices ...RawDevice) *MockSource {
	return &MockSource{devices: append([]RawDevice(nil), devices...)}
}

// Enumerate はモックデバイス一覧を返す
func (m *MockSource) Enumerate(ctx context.Context) ([]RawDevice, error) {
	m.mu.Lock()
	m.enumerates++
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	if gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]RawDevice(nil), m.devices...), nil
}

// Close は解放回数を記録する
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return m.closeErr
}

// SetDevices はテスト用にデバイス一覧を置き換える
func (m *MockSource) SetDevices(devices ...RawDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append([]RawDevice(nil), devices...)
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockSource) AddDevice(device RawDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, device)
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockSource) RemoveDevice(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d.Path == path {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

// SetError は以降の Enumerate が返すエラーを設定する。nil で解除する
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetCloseError は Close が返すエラーを設定する
func (m *MockSource) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// Block は Unblock が呼ばれるまで Enumerate を止める
//
// 返されたチャネルには Enumerate が止まるたびに通知が届く。
func (m *MockSource) Block() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{}, 1)
	return m.entered
}

// Unblock は止まっている Enumerate を再開させる
func (m *MockSource) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
		m.entered = nil
	}
}

// Enumerates は Enumerate の呼び出し回数を返す
func (m *MockSource) Enumerates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enumerates
}

// Closes は Close の呼び出し回数を返す
func (m *MockSource) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// MockHandle はテスト用のキャプチャセッション
type MockHandle struct {
	ID     uuid.UUID
	device DeviceInfo
	format InputFormat
	frames chan []byte

	mu     sync.Mutex
	closed bool
}

// Device は開いているデバイスを返す
func (h *MockHandle) Device() DeviceInfo {
	return h.device
}

// Format は開いた時の入力フォーマットを返す
func (h *MockHandle) Format() InputFormat {
	return h.format
}

// Frames は MockFactory.SetFrames で設定したフレームを返す
func (h *MockHandle) Frames() <-chan []byte {
	return h.frames
}

// Err は常に nil を返す
func (h *MockHandle) Err() error {
	return nil
}

// Close はセッションを閉じる。2回目はエラーを返す
func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("セッションは既に閉じています")
	}
	h.closed = true
	return nil
}

// Closed は Close 済みか返す
func (h *MockHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// MockFactory はテスト用のモック Factory 実装
type MockFactory struct {
	mu      sync.Mutex
	err     error
	frames  [][]byte
	handles []*MockHandle
}

// NewMockFactory は新しい MockFactory を作成する
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

// Open はモックのセッションを返す
func (f *MockFactory) Open(_ context.Context, device DeviceInfo, format InputFormat) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	frames := make(chan []byte, len(f.frames))
	for _, frame := range f.frames {
		frames <- frame
	}
	close(frames)

	handle := &MockHandle{ID: uuid.New(), device: device, format: format, frames: frames}
	f.handles = append(f.handles, handle)
	return handle, nil
}

// SetError は以降の Open が返すエラーを設定する
func (f *MockFactory) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetFrames は以降に開くセッションが流すフレームを設定する
func (f *MockFactory) SetFrames(frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = frames
}

// Handles は開いたセッションを順に返す
func (f *MockFactory) Handles() []*MockHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockHandle(nil), f.handles...)
}
