package camera

import (
	"context"
	"strings"

	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
)

// MediaDevicesSource は pion/mediadevices のドライバーマネージャーからビデオデバイスを列挙する
type MediaDevicesSource struct {
	drivers func() []driverutils.Driver
}

// NewMediaDevicesSource はカメラドライバーを登録して MediaDevicesSource を作成する
func NewMediaDevicesSource() *MediaDevicesSource {
	initializeCameraDrivers()
	return &MediaDevicesSource{
		drivers: func() []driverutils.Driver {
			return driverutils.GetManager().Query(driverutils.FilterVideoRecorder())
		},
	}
}

// Enumerate は登録済みのビデオドライバーを返す
func (s *MediaDevicesSource) Enumerate(ctx context.Context) ([]RawDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PlatformEnumerationError{Format: FormatMediaDevices, Err: err}
	}

	drivers := s.drivers()
	infos := make([]driverutils.Info, 0, len(drivers))
	for _, d := range drivers {
		infos = append(infos, d.Info())
	}
	return devicesFromDriverInfo(infos), nil
}

// Close は何もしない。ドライバーマネージャーはプロセス全体で共有される
func (s *MediaDevicesSource) Close() error {
	return nil
}

// devicesFromDriverInfo はドライバー情報をデバイスエントリに変換する
//
// パスは Label の最初の要素（デバイスノード）、名前は Name の最初の要素になる。
func devicesFromDriverInfo(infos []driverutils.Info) []RawDevice {
	devices := make([]RawDevice, 0, len(infos))
	for _, info := range infos {
		path, _, _ := strings.Cut(info.Label, mediadevicescamera.LabelSeparator)
		name, _, _ := strings.Cut(info.Name, mediadevicescamera.LabelSeparator)
		devices = append(devices, RawDevice{Name: name, Path: path})
	}
	return devices
}
