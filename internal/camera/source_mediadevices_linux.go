//go:build linux && cgo

package camera

import (
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
)

func initializeCameraDrivers() {
	mediadevicescamera.Initialize()
}
