package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FrameReader は JPEG フレームを順に受け取れるハンドル
type FrameReader interface {
	// Frames はフレームのチャネルを返す。セッション終了時に閉じられる
	Frames() <-chan []byte

	// Err はセッションが異常終了した場合のエラーを返す
	Err() error
}

// CaptureSettings はキャプチャの設定
type CaptureSettings struct {
	Width  int
	Height int
	FPS    int
}

// FFmpegFactory は ffmpeg でデバイスを開く Factory
type FFmpegFactory struct {
	logger   *zap.SugaredLogger
	settings CaptureSettings
}

// NewFFmpegFactory は新しい FFmpegFactory を作成する
func NewFFmpegFactory(logger *zap.SugaredLogger) *FFmpegFactory {
	return &FFmpegFactory{logger: logger}
}

// WithSettings は解像度とフレームレートを指定した FFmpegFactory を返す
func (f *FFmpegFactory) WithSettings(settings CaptureSettings) *FFmpegFactory {
	return &FFmpegFactory{logger: f.logger, settings: settings}
}

// inputArgs は ffmpeg の入力オプションを組み立てる
func (f *FFmpegFactory) inputArgs(format InputFormat) ffmpeg.KwArgs {
	args := ffmpeg.KwArgs{"f": string(format)}
	if f.settings.Width > 0 && f.settings.Height > 0 {
		args["video_size"] = fmt.Sprintf("%dx%d", f.settings.Width, f.settings.Height)
	}
	if f.settings.FPS > 0 {
		args["framerate"] = strconv.Itoa(f.settings.FPS)
	}
	return args
}

// Open は ffmpeg を起動し、MJPEG のフレームを流すセッションを返す
//
// セッションは ctx のキャンセルでは終了しない。Close で終了させる。
func (f *FFmpegFactory) Open(ctx context.Context, device DeviceInfo, format InputFormat) (Handle, error) {
	if format == FormatMediaDevices {
		return nil, fmt.Errorf("ffmpeg で開けない入力フォーマット: %s", format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	reader, writer := io.Pipe()

	capture := &FFmpegCapture{
		id:     uuid.New(),
		device: device,
		frames: make(chan []byte, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	stream := ffmpeg.Input(device.Path, f.inputArgs(format)).
		Output("pipe:", ffmpeg.KwArgs{
			"f":   "image2pipe",
			"c:v": "mjpeg",
			"q:v": "3",
		})
	stream.Context = sessionCtx

	var stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := stream.WithOutput(writer).WithErrorOutput(&stderr).Run()
		if err != nil && sessionCtx.Err() == nil {
			err = fmt.Errorf("ffmpeg が終了しました: %w (stderr: %s)", err, lastLine(stderr.Bytes()))
			capture.setErr(err)
		}
		_ = writer.CloseWithError(err)
	}()

	go func() {
		defer wg.Done()
		err := splitJPEGFrames(sessionCtx, reader, capture.frames)
		if err != nil && sessionCtx.Err() == nil {
			capture.setErr(fmt.Errorf("フレーム読み取りエラー: %w", err))
		}
		// ffmpeg が書き込み待ちで止まらないようにする
		_ = reader.CloseWithError(io.ErrClosedPipe)
	}()

	go func() {
		wg.Wait()
		close(capture.frames)
		close(capture.done)
	}()

	f.logger.Debugw("キャプチャを開始しました", "session", capture.id, "path", device.Path, "format", format)
	return capture, nil
}

// FFmpegCapture は ffmpeg のキャプチャセッション
type FFmpegCapture struct {
	id     uuid.UUID
	device DeviceInfo
	frames chan []byte
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	mu  sync.Mutex
	err error
}

// ID はセッション ID を返す
func (c *FFmpegCapture) ID() uuid.UUID {
	return c.id
}

// Device は開いているデバイスを返す
func (c *FFmpegCapture) Device() DeviceInfo {
	return c.device
}

// Frames は JPEG フレームのチャネルを返す
func (c *FFmpegCapture) Frames() <-chan []byte {
	return c.frames
}

// Err はセッションの異常終了の原因を返す
func (c *FFmpegCapture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *FFmpegCapture) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close は ffmpeg を停止し、終了を待つ
func (c *FFmpegCapture) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return errors.New("セッションは既に閉じています")
	}
	c.cancel()
	<-c.done
	return nil
}

// FirstFrame はハンドルから最初のフレームを1枚受け取る
func FirstFrame(ctx context.Context, handle Handle) ([]byte, error) {
	reader, ok := handle.(FrameReader)
	if !ok {
		return nil, fmt.Errorf("フレームを読めないハンドル: %T", handle)
	}

	select {
	case frame, ok := <-reader.Frames():
		if !ok {
			if err := reader.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("フレームを受け取る前にセッションが終了しました")
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// splitJPEGFrames は r から読んだバイト列を SOI/EOI マーカーで JPEG フレームに分割して送る
//
// r が EOF に達したら nil を返す。
func splitJPEGFrames(ctx context.Context, r io.Reader, out chan<- []byte) error {
	buffer := make([]byte, 64*1024)
	var pending bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			pending.Write(buffer[:n])
			if sendErr := emitFrames(ctx, &pending, out); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// emitFrames は pending から完全なフレームを全て取り出して送る
func emitFrames(ctx context.Context, pending *bytes.Buffer, out chan<- []byte) error {
	for {
		data := pending.Bytes()

		start := bytes.Index(data, jpegSOI)
		if start == -1 {
			// 末尾の 0xFF は次のマーカーの前半かもしれない
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				pending.Reset()
				pending.WriteByte(0xFF)
			} else {
				pending.Reset()
			}
			return nil
		}

		end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
		if end == -1 {
			// 完全なフレームがまだない
			if start > 0 {
				rest := append([]byte(nil), data[start:]...)
				pending.Reset()
				pending.Write(rest)
			}
			return nil
		}

		end += start + len(jpegSOI) + len(jpegEOI)
		frame := make([]byte, end-start)
		copy(frame, data[start:end])

		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}

		rest := append([]byte(nil), data[end:]...)
		pending.Reset()
		pending.Write(rest)
	}
}

// lastLine は ffmpeg の出力の最後の空でない行を返す
func lastLine(output []byte) string {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
