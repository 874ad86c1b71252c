package ui

import (
	"context"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"camwatch/internal/camera"
)

// eventBuffer は UI に届く前に溜められる通知の数
const eventBuffer = 64

// resyncTimeout は手動再同期の待ち時間
const resyncTimeout = 10 * time.Second

// Panel はフォーカス可能なパネル
type Panel int

const (
	PanelDevices Panel = iota
	PanelLog
)

// deviceEventMsg は Watcher からのデバイス追加・削除の通知
type deviceEventMsg struct {
	added  bool
	device camera.DeviceInfo
}

// watchErrorMsg は定期再同期で起きたエラー
type watchErrorMsg struct {
	err error
}

// resyncDoneMsg は手動再同期の完了
type resyncDoneMsg struct {
	err error
}

// watchToggledMsg は監視の開始・停止の完了
type watchToggledMsg struct {
	watching bool
	err      error
}

// Model はデバイス一覧とイベントログを表示する bubbletea モデル
type Model struct {
	width  int
	height int

	activePanel Panel
	devicePanel *DevicePanel
	logPanel    *LogPanel

	watcher     *camera.Watcher
	events      chan tea.Msg
	done        chan struct{}
	unsubscribe []func()
}

// NewModel は watcher の通知を購読するモデルを作成する
//
// 終了時は Close で購読を解除すること。
func NewModel(watcher *camera.Watcher) *Model {
	m := &Model{
		activePanel: PanelDevices,
		devicePanel: NewDevicePanel(),
		logPanel:    NewLogPanel(),
		watcher:     watcher,
		events:      make(chan tea.Msg, eventBuffer),
		done:        make(chan struct{}),
	}
	m.devicePanel.SetDevices(watcher.Devices())

	m.unsubscribe = []func(){
		watcher.OnDeviceAdded(func(d camera.DeviceInfo) error {
			m.forward(deviceEventMsg{added: true, device: d})
			return nil
		}),
		watcher.OnDeviceRemoved(func(d camera.DeviceInfo) error {
			m.forward(deviceEventMsg{added: false, device: d})
			return nil
		}),
		watcher.OnError(func(err error) {
			m.forward(watchErrorMsg{err: err})
		}),
	}
	return m
}

// forward は Watcher のゴルーチンから UI へ通知を渡す。溢れた通知は捨てる
func (m *Model) forward(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// Close は Watcher の購読を解除する
func (m *Model) Close() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
}

// Init はモデルを初期化する
func (m *Model) Init() tea.Cmd {
	m.logPanel.Add(LogInfo, "Watching "+m.watcher.InputFormat().String()+" cameras every "+m.watcher.Interval().String())
	m.logPanel.Add(LogInfo, "Found "+strconv.Itoa(m.watcher.Devices().Len())+" camera(s)")
	return m.listenForNextEvent()
}

// listenForNextEvent は次の Watcher 通知を待つ
func (m *Model) listenForNextEvent() tea.Cmd {
	events, done := m.events, m.done
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-done:
			return nil
		}
	}
}

// Update はメッセージを処理する
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updatePanelSizes()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case deviceEventMsg:
		// 通知はスナップショットの差し替え前に届くので、Devices() ではなく差分を反映する
		if msg.added {
			m.devicePanel.Add(msg.device)
			m.logPanel.Add(LogSuccess, "Connected: "+msg.device.String())
		} else {
			m.devicePanel.Remove(msg.device)
			m.logPanel.Add(LogWarning, "Disconnected: "+msg.device.String())
		}
		return m, m.listenForNextEvent()

	case watchErrorMsg:
		m.logPanel.Add(LogError, "Resync failed: "+msg.err.Error())
		return m, m.listenForNextEvent()

	case resyncDoneMsg:
		if msg.err != nil {
			m.logPanel.Add(LogError, "Resync failed: "+msg.err.Error())
		} else {
			m.devicePanel.SetDevices(m.watcher.Devices())
			m.logPanel.Add(LogInfo, "Resynchronized ("+strconv.Itoa(m.watcher.Devices().Len())+" camera(s))")
		}
		return m, nil

	case watchToggledMsg:
		switch {
		case msg.err != nil:
			m.logPanel.Add(LogError, "Watch toggle failed: "+msg.err.Error())
		case msg.watching:
			m.logPanel.Add(LogInfo, "Watching started")
		default:
			m.logPanel.Add(LogInfo, "Watching stopped")
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.Close()
		return m, tea.Quit
	case "tab":
		if m.activePanel == PanelDevices {
			m.activePanel = PanelLog
		} else {
			m.activePanel = PanelDevices
		}
	case "up", "k":
		m.devicePanel.MoveUp()
	case "down", "j":
		m.devicePanel.MoveDown()
	case "r":
		return m, m.resync()
	case "w":
		return m, m.toggleWatching()
	}
	return m, nil
}

// resync は手動で再同期する
func (m *Model) resync() tea.Cmd {
	watcher := m.watcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		return resyncDoneMsg{err: watcher.Resynchronize(ctx)}
	}
}

// toggleWatching は定期再同期を開始または停止する
func (m *Model) toggleWatching() tea.Cmd {
	watcher := m.watcher
	return func() tea.Msg {
		if watcher.IsWatching() {
			return watchToggledMsg{watching: false, err: watcher.StopWatching()}
		}
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		err := watcher.StartWatching(ctx)
		return watchToggledMsg{watching: err == nil, err: err}
	}
}

func (m *Model) panelWidths() (int, int) {
	left := m.width * 40 / 100
	right := m.width - left - 4
	return left, right
}

func (m *Model) updatePanelSizes() {
	contentHeight := m.height - 4
	left, right := m.panelWidths()
	m.devicePanel.SetSize(left, contentHeight)
	m.logPanel.SetSize(right, contentHeight)
}

// View は UI を描画する
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var s strings.Builder
	s.WriteString(m.renderHeader())
	s.WriteString("\n")
	s.WriteString(m.renderPanels())
	s.WriteString("\n")
	s.WriteString(m.renderFooter())
	return s.String()
}

func (m *Model) renderHeader() string {
	title := TitleStyle.Render("camwatch")

	var status string
	if m.watcher.IsWatching() {
		status = SuccessStyle.Render(IndicatorWatching) + " watching " + m.watcher.InputFormat().String()
	} else {
		status = DimStyle.Render(IndicatorIdle) + " idle " + m.watcher.InputFormat().String()
	}

	spacing := m.width - lipgloss.Width(title) - lipgloss.Width(status) - 4
	if spacing < 1 {
		spacing = 1
	}

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(m.width - 2)
	return headerStyle.Render(title + strings.Repeat(" ", spacing) + status)
}

func (m *Model) renderPanels() string {
	left, right := m.panelWidths()
	contentHeight := m.height - 6

	deviceStyle := PanelStyle.Width(left).Height(contentHeight)
	logStyle := PanelStyle.Width(right).Height(contentHeight)
	if m.activePanel == PanelDevices {
		deviceStyle = ActivePanelStyle.Width(left).Height(contentHeight)
	} else {
		logStyle = ActivePanelStyle.Width(right).Height(contentHeight)
	}

	devices := deviceStyle.Render(AccentStyle.Render(" Cameras ") + "\n\n" + m.devicePanel.View())
	logs := logStyle.Render(AccentStyle.Render(" Events ") + "\n\n" + m.logPanel.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, devices, logs)
}

func (m *Model) renderFooter() string {
	hints := []string{"j/k Navigate", "Tab Focus", "r Resync", "w Watch on/off", "q Quit"}
	return " " + DimStyle.Render(strings.Join(hints, "   "))
}
