package camera

import (
	"context"
	"strconv"

	"github.com/samber/lo"
)

// InputFormat はデバイス列挙とキャプチャに使うバックエンド識別子（ffmpeg の -f 引数）
type InputFormat string

const (
	FormatDShow        InputFormat = "dshow"        // Windows DirectShow
	FormatV4L2         InputFormat = "v4l2"         // Linux Video4Linux2
	FormatAVFoundation InputFormat = "avfoundation" // macOS AVFoundation
	FormatMediaDevices InputFormat = "mediadevices" // pion/mediadevices ドライバーマネージャー
)

// String は識別子を返す
func (f InputFormat) String() string {
	return string(f)
}

// RawDevice は Source が返す検証前のデバイスエントリ
type RawDevice struct {
	Name string // 表示名（プラットフォームによっては空）
	Path string // 接続パス（必須）
}

// DeviceInfo はカメラデバイスを表す不変値
//
// 同一性は Path のみで決まる。Name は表示用でしかない。
type DeviceInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Equal は Path が等しい場合に true を返す
func (d DeviceInfo) Equal(other DeviceInfo) bool {
	return d.Path == other.Path
}

// String は表示名があればそれを、無ければパスを返す
func (d DeviceInfo) String() string {
	if d.Name == "" {
		return d.Path
	}
	return d.Name + " (" + d.Path + ")"
}

// DeviceSet はパスで一意な DeviceInfo の順序付き集合
//
// 一度作られた DeviceSet は変更されない。再同期のたびに新しいものが作られる。
type DeviceSet struct {
	devices []DeviceInfo
	index   map[string]int
}

// NewDeviceSet は Source の生データから DeviceSet を作成する
//
// パスが空のエントリがあれば MalformedDeviceError を返す。
// 同じパスが複数回現れた場合は最初のものを残す。
func NewDeviceSet(raw []RawDevice) (DeviceSet, error) {
	for i, r := range raw {
		if r.Path == "" {
			return DeviceSet{}, &MalformedDeviceError{Index: i, Name: r.Name}
		}
	}

	unique := lo.UniqBy(raw, func(r RawDevice) string { return r.Path })
	devices := lo.Map(unique, func(r RawDevice, _ int) DeviceInfo {
		return DeviceInfo{Name: r.Name, Path: r.Path}
	})
	return newDeviceSet(devices), nil
}

// DeviceSetOf は DeviceInfo から直接 DeviceSet を作成する（重複パスは最初のものを残す）
func DeviceSetOf(devices ...DeviceInfo) DeviceSet {
	return newDeviceSet(lo.UniqBy(devices, func(d DeviceInfo) string { return d.Path }))
}

func newDeviceSet(devices []DeviceInfo) DeviceSet {
	index := make(map[string]int, len(devices))
	for i, d := range devices {
		index[d.Path] = i
	}
	return DeviceSet{devices: devices, index: index}
}

// Len はデバイス数を返す
func (s DeviceSet) Len() int {
	return len(s.devices)
}

// At は i 番目のデバイスを返す。範囲外なら false
func (s DeviceSet) At(i int) (DeviceInfo, bool) {
	if i < 0 || i >= len(s.devices) {
		return DeviceInfo{}, false
	}
	return s.devices[i], true
}

// Lookup はパスでデバイスを検索する
func (s DeviceSet) Lookup(path string) (DeviceInfo, bool) {
	i, ok := s.index[path]
	if !ok {
		return DeviceInfo{}, false
	}
	return s.devices[i], true
}

// Contains はパスが集合に含まれるか返す
func (s DeviceSet) Contains(path string) bool {
	_, ok := s.index[path]
	return ok
}

// Devices はデバイス一覧のコピーを返す
func (s DeviceSet) Devices() []DeviceInfo {
	result := make([]DeviceInfo, len(s.devices))
	copy(result, s.devices)
	return result
}

// Paths はパス一覧を順序通りに返す
func (s DeviceSet) Paths() []string {
	return lo.Map(s.devices, func(d DeviceInfo, _ int) string { return d.Path })
}

// Equal は順序を含めてパス列が一致するか判定する
func (s DeviceSet) Equal(other DeviceSet) bool {
	if len(s.devices) != len(other.devices) {
		return false
	}
	for i := range s.devices {
		if !s.devices[i].Equal(other.devices[i]) {
			return false
		}
	}
	return true
}

// Source は入力フォーマットごとのデバイス列挙コンテキスト
//
// Enumerate は並行に呼ばれない。Close は Watcher の破棄時に一度だけ呼ばれる。
type Source interface {
	// Enumerate は現在利用可能なデバイスの生データを返す
	Enumerate(ctx context.Context) ([]RawDevice, error)

	// Close は列挙コンテキストを解放する
	Close() error
}

// SourceOpener は入力フォーマット用の Source を確保する関数
type SourceOpener func(format InputFormat) (Source, error)

// Handle はキャプチャセッションのハンドル
type Handle interface {
	// Device は開いているデバイスを返す
	Device() DeviceInfo

	// Close はキャプチャセッションを終了する
	Close() error
}

// Factory はデバイスからキャプチャセッションを作成する
type Factory interface {
	Open(ctx context.Context, device DeviceInfo, format InputFormat) (Handle, error)
}

// DeviceHandler はデバイスの追加・削除通知を受け取る
//
// エラーを返すと以降の通知は中断され、再同期の呼び出し元にエラーが返る。
type DeviceHandler func(device DeviceInfo) error

// Selector は GetCamera で開くデバイスを指定する
type Selector interface {
	resolve(set DeviceSet) (DeviceInfo, bool)
	String() string
}

// Index は現在のスナップショット内の位置でデバイスを指定する
type Index int

func (i Index) resolve(set DeviceSet) (DeviceInfo, bool) {
	return set.At(int(i))
}

func (i Index) String() string {
	return "index " + strconv.Itoa(int(i))
}

// Path は接続パスの完全一致でデバイスを指定する
type Path string

func (p Path) resolve(set DeviceSet) (DeviceInfo, bool) {
	return set.Lookup(string(p))
}

func (p Path) String() string {
	return "path " + strconv.Quote(string(p))
}

// DeviceInfo をそのまま渡した場合はスナップショットを参照せずに開く
func (d DeviceInfo) resolve(_ DeviceSet) (DeviceInfo, bool) {
	return d, d.Path != ""
}
