package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"camwatch/internal/camera"
)

// LogLevel はログ行の重要度
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogSuccess
	LogWarning
	LogError
)

// LogEntry はログパネルの1行
type LogEntry struct {
	Time    time.Time
	Message string
	Level   LogLevel
}

// maxLogEntries はログパネルが保持する行数
const maxLogEntries = 100

// DevicePanel は接続中のカメラ一覧を描画する
type DevicePanel struct {
	devices  []camera.DeviceInfo
	selected int
	width    int
	height   int
}

// NewDevicePanel はデバイスパネルを作成する
func NewDevicePanel() *DevicePanel {
	return &DevicePanel{}
}

// SetDevices は一覧を置き換える。選択位置は範囲内に収める
func (p *DevicePanel) SetDevices(set camera.DeviceSet) {
	p.devices = set.Devices()
	if p.selected >= len(p.devices) {
		p.selected = len(p.devices) - 1
	}
	if p.selected < 0 {
		p.selected = 0
	}
}

// Add はデバイスを末尾に加える。同じパスのデバイスが既にあれば何もしない
func (p *DevicePanel) Add(device camera.DeviceInfo) {
	for _, d := range p.devices {
		if d.Equal(device) {
			return
		}
	}
	p.devices = append(p.devices, device)
}

// Remove はパスが一致するデバイスを取り除く
func (p *DevicePanel) Remove(device camera.DeviceInfo) {
	p.devices = lo.Reject(p.devices, func(d camera.DeviceInfo, _ int) bool {
		return d.Equal(device)
	})
	p.selected = lo.Clamp(p.selected, 0, max(len(p.devices)-1, 0))
}

// Selected は選択中のデバイスを返す
func (p *DevicePanel) Selected() (camera.DeviceInfo, bool) {
	if len(p.devices) == 0 {
		return camera.DeviceInfo{}, false
	}
	return p.devices[p.selected], true
}

func (p *DevicePanel) MoveUp() {
	if p.selected > 0 {
		p.selected--
	}
}

func (p *DevicePanel) MoveDown() {
	if p.selected < len(p.devices)-1 {
		p.selected++
	}
}

func (p *DevicePanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// View はデバイス一覧を描画する
func (p *DevicePanel) View() string {
	if len(p.devices) == 0 {
		return DimStyle.Render("  No cameras connected")
	}

	var lines []string
	for i, d := range p.devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		line := fmt.Sprintf("%d  %s", i, name)
		if i == p.selected {
			lines = append(lines, SelectedStyle.Render(line))
		} else {
			lines = append(lines, line)
		}
		lines = append(lines, DimStyle.Render("   "+d.Path))
	}
	return strings.Join(lines, "\n")
}

// LogPanel はイベントログを描画する
type LogPanel struct {
	entries []LogEntry
	width   int
	height  int
}

func NewLogPanel() *LogPanel {
	return &LogPanel{}
}

// Add はログ行を追加する。古い行から捨てる
func (p *LogPanel) Add(level LogLevel, msg string) {
	p.entries = append(p.entries, LogEntry{
		Time:    time.Now(),
		Message: msg,
		Level:   level,
	})
	if len(p.entries) > maxLogEntries {
		p.entries = p.entries[len(p.entries)-maxLogEntries:]
	}
}

// Entries は保持しているログ行を返す
func (p *LogPanel) Entries() []LogEntry {
	return append([]LogEntry(nil), p.entries...)
}

func (p *LogPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// View は末尾から表示できるだけのログ行を描画する
func (p *LogPanel) View() string {
	if len(p.entries) == 0 {
		return DimStyle.Render("  No events yet")
	}

	maxVisible := p.height - 2
	if maxVisible < 1 {
		maxVisible = 10
	}
	start := 0
	if len(p.entries) > maxVisible {
		start = len(p.entries) - maxVisible
	}

	var lines []string
	for _, entry := range p.entries[start:] {
		timestamp := DimStyle.Render(entry.Time.Format("15:04:05"))

		var msgStyle lipgloss.Style
		switch entry.Level {
		case LogSuccess:
			msgStyle = SuccessStyle
		case LogWarning:
			msgStyle = WarningStyle
		case LogError:
			msgStyle = ErrorStyle
		default:
			msgStyle = InfoStyle
		}

		msg := entry.Message
		if limit := p.width - 12; limit > 3 && len(msg) > limit {
			msg = msg[:limit-3] + "..."
		}
		lines = append(lines, timestamp+"  "+msgStyle.Render(msg))
	}
	return strings.Join(lines, "\n")
}
