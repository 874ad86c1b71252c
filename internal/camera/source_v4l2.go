package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultSysfsRoot は video4linux デバイスが公開される sysfs のディレクトリ
	DefaultSysfsRoot = "/sys/class/video4linux"

	// DefaultDevRoot はデバイスノードのディレクトリ
	DefaultDevRoot = "/dev"
)

var videoNodePattern = regexp.MustCompile(`^video(\d+)$`)

// V4L2Source は sysfs を読んで Video4Linux2 デバイスを列挙する
type V4L2Source struct {
	sysfsRoot string
	devRoot   string
}

// NewV4L2Source は sysfsRoot を読む V4L2Source を作成する
func NewV4L2Source(sysfsRoot string) *V4L2Source {
	return &V4L2Source{
		sysfsRoot: sysfsRoot,
		devRoot:   DefaultDevRoot,
	}
}

// Enumerate は videoN ノードをデバイス番号順に返す
//
// 1つの物理カメラが複数のノード（メタデータ用など）を公開する場合、index が 0 のノードだけを返す。
// sysfs のディレクトリが存在しないのはカメラが1台も無い状態として扱う。
func (s *V4L2Source) Enumerate(ctx context.Context) ([]RawDevice, error) {
	entries, err := os.ReadDir(s.sysfsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PlatformEnumerationError{
			Format: FormatV4L2,
			Err:    fmt.Errorf("デバイスのスキャンに失敗: %w", err),
		}
	}

	type node struct {
		number int
		device RawDevice
	}
	var nodes []node

	for _, entry := range entries {
		// コンテキストのキャンセルをチェック
		if err := ctx.Err(); err != nil {
			return nil, &PlatformEnumerationError{Format: FormatV4L2, Err: err}
		}

		match := videoNodePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		number, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		dir := filepath.Join(s.sysfsRoot, entry.Name())
		if index := readSysfsAttr(filepath.Join(dir, "index")); index != "" && index != "0" {
			continue
		}

		nodes = append(nodes, node{
			number: number,
			device: RawDevice{
				Name: readSysfsAttr(filepath.Join(dir, "name")),
				Path: filepath.Join(s.devRoot, entry.Name()),
			},
		})
	}

	// デバイス番号でソート
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].number < nodes[j].number })

	devices := make([]RawDevice, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, n.device)
	}
	return devices, nil
}

// Close は何もしない
func (s *V4L2Source) Close() error {
	return nil
}

// readSysfsAttr は sysfs 属性の1行目を返す。読めなければ空文字列
func readSysfsAttr(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	return strings.TrimSpace(line)
}
