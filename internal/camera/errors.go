package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed は破棄済みの Watcher に対する操作で返る
	ErrDisposed = errors.New("watcher は破棄済みです")

	// ErrUnsupportedPlatform は入力フォーマットを解決できないプラットフォームで返る
	ErrUnsupportedPlatform = errors.New("サポートされていないプラットフォーム")

	// ErrMalformedDevice は接続パスを持たないデバイスエントリで返る
	ErrMalformedDevice = errors.New("不正なデバイスエントリ")

	// ErrDeviceNotFound は指定に一致するデバイスが無い場合に返る
	ErrDeviceNotFound = errors.New("デバイスが見つかりません")
)

// UnsupportedPlatformError は GOOS から入力フォーマットを決められなかったことを表す
type UnsupportedPlatformError struct {
	GOOS string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("サポートされていないプラットフォーム: %s", e.GOOS)
}

// Is は ErrUnsupportedPlatform との比較に使う
func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

// PlatformEnumerationError はデバイス列挙の失敗を表す
type PlatformEnumerationError struct {
	Format InputFormat
	Err    error
}

func (e *PlatformEnumerationError) Error() string {
	return fmt.Sprintf("デバイスの列挙に失敗 (%s): %v", e.Format, e.Err)
}

func (e *PlatformEnumerationError) Unwrap() error {
	return e.Err
}

// MalformedDeviceError はパスを持たないデバイスエントリを表す
type MalformedDeviceError struct {
	Index int
	Name  string
}

func (e *MalformedDeviceError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("デバイス #%d に接続パスがありません", e.Index)
	}
	return fmt.Sprintf("デバイス #%d (%q) に接続パスがありません", e.Index, e.Name)
}

// Is は ErrMalformedDevice との比較に使う
func (e *MalformedDeviceError) Is(target error) bool {
	return target == ErrMalformedDevice
}

// DeviceNotFoundError はセレクタに一致するデバイスが無いことを表す
type DeviceNotFoundError struct {
	Selector string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("デバイスが見つかりません: %s", e.Selector)
}

// Is は ErrDeviceNotFound との比較に使う
func (e *DeviceNotFoundError) Is(target error) bool {
	return target == ErrDeviceNotFound
}
