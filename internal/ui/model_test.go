package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap/zaptest"

	"camwatch/internal/camera"
)

func newTestModel(t *testing.T, devices ...camera.RawDevice) (*Model, *camera.Watcher, *camera.MockSource, *clock.Mock) {
	t.Helper()
	source := camera.NewMockSource(devices...)
	mockClock := clock.NewMock()
	watcher, err := camera.NewWatcher(context.Background(),
		camera.WithInputFormat(camera.FormatAVFoundation),
		camera.WithSource(source),
		camera.WithFactory(camera.NewMockFactory()),
		camera.WithClock(mockClock),
		camera.WithLogger(zaptest.NewLogger(t).Sugar()),
	)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	model := NewModel(watcher)
	t.Cleanup(func() {
		model.Close()
		_ = watcher.Dispose()
	})
	return model, watcher, source, mockClock
}

// nextMsg は次の通知を待つ。listen コマンドはブロックするのでタイムアウト付きで実行する
func nextMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("Expected a command")
	}
	result := make(chan tea.Msg, 1)
	go func() { result <- cmd() }()
	select {
	case msg := <-result:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message")
	}
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func lastLog(m *Model) LogEntry {
	entries := m.logPanel.Entries()
	if len(entries) == 0 {
		return LogEntry{}
	}
	return entries[len(entries)-1]
}

func TestModel_InitialState(t *testing.T) {
	m, _, _, _ := newTestModel(t,
		camera.RawDevice{Name: "FaceTime HD Camera", Path: "FaceTime HD Camera"},
	)
	m.Init()

	if d, ok := m.devicePanel.Selected(); !ok || d.Name != "FaceTime HD Camera" {
		t.Errorf("Unexpected selection: %v %v", d, ok)
	}
	if got := lastLog(m).Message; got != "Found 1 camera(s)" {
		t.Errorf("Unexpected log: %q", got)
	}

	if got := m.View(); got != "Loading..." {
		t.Errorf("Expected loading view before window size, got %q", got)
	}
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	view := m.View()
	for _, want := range []string{"camwatch", "FaceTime HD Camera", "idle avfoundation", "r Resync"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestModel_DeviceEvents(t *testing.T) {
	m, watcher, source, _ := newTestModel(t, camera.RawDevice{Name: "A", Path: "A"})
	cmd := m.Init()

	source.SetDevices(camera.RawDevice{Name: "B", Path: "B"})
	if err := watcher.Resynchronize(context.Background()); err != nil {
		t.Fatalf("Resynchronize failed: %v", err)
	}

	msg := nextMsg(t, cmd)
	_, cmd = m.Update(msg)
	entry := lastLog(m)
	if entry.Level != LogSuccess || !strings.Contains(entry.Message, "Connected: B") {
		t.Errorf("Unexpected log entry: %+v", entry)
	}

	msg = nextMsg(t, cmd)
	m.Update(msg)
	entry = lastLog(m)
	if entry.Level != LogWarning || !strings.Contains(entry.Message, "Disconnected: A") {
		t.Errorf("Unexpected log entry: %+v", entry)
	}

	if d, ok := m.devicePanel.Selected(); !ok || d.Path != "B" {
		t.Errorf("Device panel not refreshed: %v", d)
	}
}

func panelPaths(m *Model) []string {
	paths := make([]string, 0, len(m.devicePanel.devices))
	for _, d := range m.devicePanel.devices {
		paths = append(paths, d.Path)
	}
	return paths
}

func TestModel_DeviceEvents_BeforeSnapshotSwap(t *testing.T) {
	m, watcher, source, _ := newTestModel(t, camera.RawDevice{Name: "A", Path: "A"})
	cmd := m.Init()

	// 通知はスナップショットの差し替え前に届く。その場で処理してもパネルは最新になる
	var (
		duringDispatch []string
		seenDevices    int
	)
	unsubscribe := watcher.OnDeviceAdded(func(camera.DeviceInfo) error {
		seenDevices = watcher.Devices().Len()
		_, cmd = m.Update(nextMsg(t, cmd))
		duringDispatch = panelPaths(m)
		return nil
	})
	defer unsubscribe()

	source.SetDevices(camera.RawDevice{Name: "B", Path: "B"})
	if err := watcher.Resynchronize(context.Background()); err != nil {
		t.Fatalf("Resynchronize failed: %v", err)
	}

	if seenDevices != 1 {
		t.Errorf("Expected the old snapshot during dispatch, got %d device(s)", seenDevices)
	}
	if strings.Join(duringDispatch, ",") != "A,B" {
		t.Errorf("Expected A,B in panel during dispatch, got %v", duringDispatch)
	}

	m.Update(nextMsg(t, cmd))
	if got := strings.Join(panelPaths(m), ","); got != "B" {
		t.Errorf("Expected only B after removal, got %q", got)
	}
	if d, ok := m.devicePanel.Selected(); !ok || d.Path != "B" {
		t.Errorf("Unexpected selection: %v %v", d, ok)
	}
}

func TestModel_WatchErrors(t *testing.T) {
	m, watcher, source, mockClock := newTestModel(t)
	cmd := m.Init()

	if err := watcher.StartWatching(context.Background()); err != nil {
		t.Fatalf("StartWatching failed: %v", err)
	}
	source.SetError(errors.New("device busy"))
	mockClock.Add(time.Second)

	m.Update(nextMsg(t, cmd))
	entry := lastLog(m)
	if entry.Level != LogError || !strings.Contains(entry.Message, "device busy") {
		t.Errorf("Unexpected log entry: %+v", entry)
	}
}

func TestModel_Keys(t *testing.T) {
	m, watcher, source, _ := newTestModel(t,
		camera.RawDevice{Name: "A", Path: "A"},
		camera.RawDevice{Name: "B", Path: "B"},
	)
	m.Init()

	m.Update(key("j"))
	if d, _ := m.devicePanel.Selected(); d.Path != "B" {
		t.Errorf("Expected B selected, got %v", d)
	}
	m.Update(key("j"))
	m.Update(key("k"))
	if d, _ := m.devicePanel.Selected(); d.Path != "A" {
		t.Errorf("Expected A selected, got %v", d)
	}

	m.Update(key("tab"))
	if m.activePanel != PanelLog {
		t.Error("Expected log panel to be focused")
	}

	// 手動再同期
	source.RemoveDevice("B")
	_, cmd := m.Update(key("r"))
	m.Update(nextMsg(t, cmd))
	if got := lastLog(m).Message; got != "Resynchronized (1 camera(s))" {
		t.Errorf("Unexpected log: %q", got)
	}

	// 監視の開始と停止
	_, cmd = m.Update(key("w"))
	m.Update(nextMsg(t, cmd))
	if !watcher.IsWatching() || lastLog(m).Message != "Watching started" {
		t.Errorf("Expected watching to start, log %q", lastLog(m).Message)
	}
	_, cmd = m.Update(key("w"))
	m.Update(nextMsg(t, cmd))
	if watcher.IsWatching() || lastLog(m).Message != "Watching stopped" {
		t.Errorf("Expected watching to stop, log %q", lastLog(m).Message)
	}

	_, cmd = m.Update(key("q"))
	if _, ok := nextMsg(t, cmd).(tea.QuitMsg); !ok {
		t.Error("Expected quit message")
	}
}

func TestModel_ResyncFailure(t *testing.T) {
	m, watcher, _, _ := newTestModel(t)
	m.Init()

	_ = watcher.Dispose()
	_, cmd := m.Update(key("r"))
	m.Update(nextMsg(t, cmd))
	entry := lastLog(m)
	if entry.Level != LogError || !strings.Contains(entry.Message, "Resync failed") {
		t.Errorf("Unexpected log entry: %+v", entry)
	}
}

func TestModel_CloseStopsListening(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	cmd := m.Init()

	m.Close()
	m.Close()
	if msg := nextMsg(t, cmd); msg != nil {
		t.Errorf("Expected nil message after Close, got %T", msg)
	}
}

func TestDevicePanel_AddRemove(t *testing.T) {
	p := NewDevicePanel()
	a := camera.DeviceInfo{Name: "A", Path: "A"}
	b := camera.DeviceInfo{Name: "B", Path: "B"}

	p.Add(a)
	p.Add(b)
	p.Add(camera.DeviceInfo{Name: "A again", Path: "A"})
	if len(p.devices) != 2 {
		t.Fatalf("Expected 2 devices, got %v", p.devices)
	}

	p.MoveDown()
	p.Remove(b)
	if d, ok := p.Selected(); !ok || d.Path != "A" {
		t.Errorf("Expected selection clamped to A, got %v %v", d, ok)
	}
	p.Remove(a)
	if _, ok := p.Selected(); ok {
		t.Error("Expected no selection on empty panel")
	}
	if p.selected != 0 {
		t.Errorf("Expected selection index 0, got %d", p.selected)
	}
}

func TestLogPanel_KeepsRecentEntries(t *testing.T) {
	p := NewLogPanel()
	for i := 0; i < maxLogEntries+10; i++ {
		p.Add(LogInfo, "entry "+string(rune('a'+i%26)))
	}
	if got := len(p.Entries()); got != maxLogEntries {
		t.Errorf("Expected %d entries, got %d", maxLogEntries, got)
	}

	p.SetSize(40, 5)
	if lines := strings.Count(p.View(), "\n") + 1; lines != 3 {
		t.Errorf("Expected 3 visible lines, got %d", lines)
	}
}
