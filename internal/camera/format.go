package camera

import (
	"fmt"
	"sort"
	"sync"
)

// ResolveInputFormat は GOOS からデフォルトの入力フォーマットを決める
func ResolveInputFormat(goos string) (InputFormat, error) {
	switch goos {
	case "windows":
		return FormatDShow, nil
	case "linux":
		return FormatV4L2, nil
	case "darwin":
		return FormatAVFoundation, nil
	default:
		return "", &UnsupportedPlatformError{GOOS: goos}
	}
}

// ParseInputFormat は文字列を InputFormat に変換する
func ParseInputFormat(s string) (InputFormat, error) {
	switch InputFormat(s) {
	case FormatDShow, FormatV4L2, FormatAVFoundation, FormatMediaDevices:
		return InputFormat(s), nil
	case "video4linux2":
		return FormatV4L2, nil
	default:
		return "", fmt.Errorf("不明な入力フォーマット: %q", s)
	}
}

// SourceRegistry は入力フォーマットごとの SourceOpener を保持する
type SourceRegistry struct {
	mu      sync.RWMutex
	openers map[InputFormat]SourceOpener
}

// NewSourceRegistry は空のレジストリを作成する
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		openers: make(map[InputFormat]SourceOpener),
	}
}

// DefaultSourceRegistry は組み込みの Source を全て登録したレジストリを返す
func DefaultSourceRegistry() *SourceRegistry {
	registry := NewSourceRegistry()

	registry.Register(FormatV4L2, func(InputFormat) (Source, error) {
		return NewV4L2Source(DefaultSysfsRoot), nil
	})
	openFFmpeg := func(format InputFormat) (Source, error) {
		source, err := NewFFmpegListSource(format)
		if err != nil {
			return nil, err
		}
		return source, nil
	}
	registry.Register(FormatDShow, openFFmpeg)
	registry.Register(FormatAVFoundation, openFFmpeg)
	registry.Register(FormatMediaDevices, func(InputFormat) (Source, error) {
		return NewMediaDevicesSource(), nil
	})

	return registry
}

// Register は入力フォーマットの SourceOpener を登録する
func (r *SourceRegistry) Register(format InputFormat, opener SourceOpener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[format] = opener
}

// Open は入力フォーマットの Source を確保する
func (r *SourceRegistry) Open(format InputFormat) (Source, error) {
	r.mu.RLock()
	opener, exists := r.openers[format]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("入力フォーマット %s の Source が登録されていません", format)
	}

	source, err := opener(format)
	if err != nil {
		return nil, fmt.Errorf("入力フォーマット %s の Source の確保に失敗: %w", format, err)
	}
	return source, nil
}

// Formats は登録済みの入力フォーマットを名前順に返す
func (r *SourceRegistry) Formats() []InputFormat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]InputFormat, 0, len(r.openers))
	for format := range r.openers {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
