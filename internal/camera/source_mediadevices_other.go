//go:build !linux || !cgo

package camera

// linux 以外ではドライバーの登録に cgo が必要になるので何もしない
func initializeCameraDrivers() {}
