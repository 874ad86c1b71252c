package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var (
	// [dshow @ 0000020] "Integrated Camera" (video)
	dshowTaggedPattern = regexp.MustCompile(`^\[dshow @ [^\]]+\]\s+"(.+)"\s+\((video|audio|none)\)\s*$`)
	// [dshow @ 0000020]  "Integrated Camera"
	dshowQuotedPattern = regexp.MustCompile(`^\[dshow @ [^\]]+\]\s+"(.+)"\s*$`)
	// [AVFoundation indev @ 0x7f8] [0] FaceTime HD Camera
	avfDevicePattern = regexp.MustCompile(`^\[AVFoundation [^\]]*\]\s+\[(\d+)\]\s+(.+?)\s*$`)
)

// ffmpegLister は list_devices の出力（stderr）を返す
type ffmpegLister func(ctx context.Context, format InputFormat) ([]byte, error)

// FFmpegListSource は ffmpeg の -list_devices で DirectShow / AVFoundation のデバイスを列挙する
type FFmpegListSource struct {
	format InputFormat
	list   ffmpegLister
}

// NewFFmpegListSource は dshow か avfoundation 用の FFmpegListSource を作成する
func NewFFmpegListSource(format InputFormat) (*FFmpegListSource, error) {
	if format != FormatDShow && format != FormatAVFoundation {
		return nil, fmt.Errorf("ffmpeg での列挙に対応していない入力フォーマット: %s", format)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg が見つかりません: %w", err)
	}
	return &FFmpegListSource{format: format, list: runListDevices}, nil
}

// Enumerate は ffmpeg を実行してビデオデバイスを返す
func (s *FFmpegListSource) Enumerate(ctx context.Context) ([]RawDevice, error) {
	output, err := s.list(ctx, s.format)
	if err != nil {
		return nil, &PlatformEnumerationError{Format: s.format, Err: err}
	}

	switch s.format {
	case FormatDShow:
		return parseDShowDevices(output), nil
	case FormatAVFoundation:
		return parseAVFoundationDevices(output), nil
	default:
		return nil, &PlatformEnumerationError{
			Format: s.format,
			Err:    fmt.Errorf("不明な入力フォーマット: %s", s.format),
		}
	}
}

// Close は何もしない
func (s *FFmpegListSource) Close() error {
	return nil
}

// runListDevices は ffmpeg -f <format> -list_devices true -i dummy を実行する
//
// ffmpeg は一覧を出力した後に必ず失敗で終了するので、stderr に何か出ていれば終了コードは無視する。
func runListDevices(ctx context.Context, format InputFormat) ([]byte, error) {
	var stderr bytes.Buffer

	stream := ffmpeg.Input("dummy", ffmpeg.KwArgs{
		"f":            string(format),
		"list_devices": "true",
	}).Output("-", ffmpeg.KwArgs{"f": "null"})
	stream.Context = ctx

	err := stream.WithErrorOutput(&stderr).Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if stderr.Len() == 0 {
		if err != nil {
			return nil, fmt.Errorf("ffmpeg の実行に失敗: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg がデバイス一覧を出力しませんでした")
	}
	return stderr.Bytes(), nil
}

// parseDShowDevices は DirectShow のビデオデバイスを出力順に返す
//
// パスは ffmpeg の -i にそのまま渡せる "video=<名前>" 形式になる。
// 新しい ffmpeg の "(video)" 付き形式と、見出しで区切られる古い形式の両方を読む。
func parseDShowDevices(output []byte) []RawDevice {
	var devices []RawDevice
	inVideoSection := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if m := dshowTaggedPattern.FindStringSubmatch(line); m != nil {
			if m[2] == "video" {
				devices = append(devices, dshowDevice(m[1]))
			}
			continue
		}

		switch {
		case strings.Contains(line, "DirectShow video devices"):
			inVideoSection = true
			continue
		case strings.Contains(line, "DirectShow audio devices"):
			inVideoSection = false
			continue
		case strings.Contains(line, "Alternative name"):
			continue
		}

		if !inVideoSection {
			continue
		}
		if m := dshowQuotedPattern.FindStringSubmatch(line); m != nil {
			devices = append(devices, dshowDevice(m[1]))
		}
	}

	return devices
}

func dshowDevice(name string) RawDevice {
	return RawDevice{Name: name, Path: "video=" + name}
}

// parseAVFoundationDevices は AVFoundation のビデオデバイスを返す
//
// パスはデバイス名になる。画面キャプチャ（Capture screen N）も ffmpeg はビデオデバイスとして列挙する。
func parseAVFoundationDevices(output []byte) []RawDevice {
	var devices []RawDevice
	inVideoSection := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case strings.Contains(line, "AVFoundation video devices"):
			inVideoSection = true
			continue
		case strings.Contains(line, "AVFoundation audio devices"):
			inVideoSection = false
			continue
		}

		if !inVideoSection {
			continue
		}
		if m := avfDevicePattern.FindStringSubmatch(line); m != nil {
			devices = append(devices, RawDevice{Name: m[2], Path: m[2]})
		}
	}

	return devices
}
