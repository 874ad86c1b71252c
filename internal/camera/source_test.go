package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
)

// writeSysfsNode はテスト用の video4linux ノードを作る
func writeSysfsNode(t *testing.T, root, node, name, index string) {
	t.Helper()
	dir := filepath.Join(root, node)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if index != "" {
		if err := os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
}

func TestV4L2Source_Enumerate(t *testing.T) {
	root := t.TempDir()
	writeSysfsNode(t, root, "video10", "Capture Card", "0")
	writeSysfsNode(t, root, "video2", "USB Camera", "0")
	writeSysfsNode(t, root, "video3", "USB Camera", "1") // メタデータノード
	writeSysfsNode(t, root, "video0", "Integrated Camera", "")
	writeSysfsNode(t, root, "v4l-subdev0", "sensor", "0")

	source := NewV4L2Source(root)
	devices, err := source.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	want := []RawDevice{
		{Name: "Integrated Camera", Path: "/dev/video0"},
		{Name: "USB Camera", Path: "/dev/video2"},
		{Name: "Capture Card", Path: "/dev/video10"},
	}
	if diff := cmp.Diff(want, devices); diff != "" {
		t.Errorf("Devices mismatch (-want +got):\n%s", diff)
	}
	if err := source.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestV4L2Source_MissingSysfs(t *testing.T) {
	source := NewV4L2Source(filepath.Join(t.TempDir(), "missing"))

	devices, err := source.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Expected missing sysfs to mean no devices, got %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("Expected no devices, got %v", devices)
	}
}

func TestV4L2Source_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeSysfsNode(t, root, "video0", "cam", "0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewV4L2Source(root).Enumerate(ctx)
	var enumErr *PlatformEnumerationError
	if !errors.As(err, &enumErr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected canceled PlatformEnumerationError, got %v", err)
	}
}

func TestParseDShowDevices(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []RawDevice
	}{
		{
			name: "tagged",
			output: `[dshow @ 000001c9] "Integrated Camera" (video)
[dshow @ 000001c9]   Alternative name "@device_pnp_\\?\usb#vid_04f2&pid_b6dd"
[dshow @ 000001c9] "OBS Virtual Camera" (none)
[dshow @ 000001c9] "Microphone (Realtek(R) Audio)" (audio)
[dshow @ 000001c9] "Logitech BRIO" (video)
dummy: Immediate exit requested
`,
			want: []RawDevice{
				{Name: "Integrated Camera", Path: "video=Integrated Camera"},
				{Name: "Logitech BRIO", Path: "video=Logitech BRIO"},
			},
		},
		{
			name: "sectioned",
			output: "[dshow @ 0x5d2f40] DirectShow video devices (some may be both video and audio devices)\r\n" +
				"[dshow @ 0x5d2f40]  \"USB2.0 HD UVC WebCam\"\r\n" +
				"[dshow @ 0x5d2f40]     Alternative name \"@device_pnp_\\\\?\\usb#vid_13d3\"\r\n" +
				"[dshow @ 0x5d2f40] DirectShow audio devices\r\n" +
				"[dshow @ 0x5d2f40]  \"Microphone Array\"\r\n",
			want: []RawDevice{
				{Name: "USB2.0 HD UVC WebCam", Path: "video=USB2.0 HD UVC WebCam"},
			},
		},
		{
			name:   "no devices",
			output: "[dshow @ 0x5d2f40] Could not enumerate video devices (or none found).\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDShowDevices([]byte(tt.output))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Devices mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAVFoundationDevices(t *testing.T) {
	output := `[AVFoundation indev @ 0x7fb1] AVFoundation video devices:
[AVFoundation indev @ 0x7fb1] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7fb1] [1] Capture screen 0
[AVFoundation indev @ 0x7fb1] AVFoundation audio devices:
[AVFoundation indev @ 0x7fb1] [0] MacBook Pro Microphone
: Input/output error
`
	want := []RawDevice{
		{Name: "FaceTime HD Camera", Path: "FaceTime HD Camera"},
		{Name: "Capture screen 0", Path: "Capture screen 0"},
	}
	if diff := cmp.Diff(want, parseAVFoundationDevices([]byte(output))); diff != "" {
		t.Errorf("Devices mismatch (-want +got):\n%s", diff)
	}
}

func TestFFmpegListSource_Enumerate(t *testing.T) {
	source := &FFmpegListSource{
		format: FormatDShow,
		list: func(_ context.Context, format InputFormat) ([]byte, error) {
			if format != FormatDShow {
				t.Errorf("Expected dshow, got %s", format)
			}
			return []byte(`[dshow @ 01] "Cam A" (video)` + "\n"), nil
		},
	}

	devices, err := source.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if diff := cmp.Diff([]RawDevice{{Name: "Cam A", Path: "video=Cam A"}}, devices); diff != "" {
		t.Errorf("Devices mismatch (-want +got):\n%s", diff)
	}
}

func TestFFmpegListSource_ListError(t *testing.T) {
	source := &FFmpegListSource{
		format: FormatAVFoundation,
		list: func(context.Context, InputFormat) ([]byte, error) {
			return nil, errors.New("exec: \"ffmpeg\": executable file not found")
		},
	}

	_, err := source.Enumerate(context.Background())
	var enumErr *PlatformEnumerationError
	if !errors.As(err, &enumErr) || enumErr.Format != FormatAVFoundation {
		t.Fatalf("Expected PlatformEnumerationError for avfoundation, got %v", err)
	}
}

func TestNewFFmpegListSource_RejectsOtherFormats(t *testing.T) {
	if _, err := NewFFmpegListSource(FormatV4L2); err == nil {
		t.Error("Expected v4l2 to be rejected")
	}
}

func TestDevicesFromDriverInfo(t *testing.T) {
	sep := mediadevicescamera.LabelSeparator
	infos := []driverutils.Info{
		{Label: "/dev/video0" + sep + "usb-0000:00:14.0-1", Name: "HD Webcam" + sep + "id-1"},
		{Label: "video1", Name: ""},
	}

	want := []RawDevice{
		{Name: "HD Webcam", Path: "/dev/video0"},
		{Name: "", Path: "video1"},
	}
	if diff := cmp.Diff(want, devicesFromDriverInfo(infos)); diff != "" {
		t.Errorf("Devices mismatch (-want +got):\n%s", diff)
	}
}

func TestMediaDevicesSource_Enumerate(t *testing.T) {
	source := &MediaDevicesSource{drivers: func() []driverutils.Driver { return nil }}

	devices, err := source.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("Expected no devices, got %v", devices)
	}
}
