//go:build !linux && !darwin && !windows

package scard

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("pc/sc is not supported on this platform")

type unsupportedDriver struct{}

func newPlatformDriver() driver {
	return unsupportedDriver{}
}

func (unsupportedDriver) EstablishContext(uint32) (uintptr, error) { return 0, errUnsupported }
func (unsupportedDriver) ReleaseContext(uintptr) error             { return errUnsupported }
func (unsupportedDriver) IsValidContext(uintptr) bool              { return false }
func (unsupportedDriver) ListReaders(uintptr) ([]string, error)    { return nil, errUnsupported }
func (unsupportedDriver) GetStatusChange(uintptr, time.Duration, []ReaderState) error {
	return errUnsupported
}
func (unsupportedDriver) Cancel(uintptr) error { return errUnsupported }
func (unsupportedDriver) Connect(uintptr, string, ShareMode, Protocol) (uintptr, Protocol, error) {
	return 0, 0, errUnsupported
}
func (unsupportedDriver) Reconnect(uintptr, ShareMode, Protocol, Disposition) (Protocol, error) {
	return 0, errUnsupported
}
func (unsupportedDriver) Disconnect(uintptr, Disposition) error         { return errUnsupported }
func (unsupportedDriver) Transmit(uintptr, Protocol, []byte, []byte) (int, error) {
	return 0, errUnsupported
}
func (unsupportedDriver) Control(uintptr, uint32, []byte, []byte) (int, error) {
	return 0, errUnsupported
}
func (unsupportedDriver) Status(uintptr) (uint32, Protocol, []byte, error) {
	return 0, 0, nil, errUnsupported
}
