//go:build darwin

package scard

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

const maxATRSize = 33

// The PCSC framework packs SCARD_READERSTATE to 1-byte alignment, which a
// Go struct cannot mirror, so status queries marshal through a byte buffer
// at fixed offsets. DWORDs are 32-bit here, unlike pcsc-lite on Linux.
const (
	rsStride       = 61
	rsOffUserData  = 8
	rsOffCurrent   = 16
	rsOffEvent     = 20
	rsOffCbAtr     = 24
	rsOffAtr       = 28
)

type sysIORequest struct {
	dwProtocol  uint32
	cbPciLength uint32
}

type pcscFramework struct {
	once sync.Once
	err  error

	establishContext func(scope uint32, res1, res2 uintptr, hctx *uint32) uintptr
	releaseContext   func(hctx uint32) uintptr
	isValidContext   func(hctx uint32) uintptr
	listReaders      func(hctx uint32, groups *byte, readers *byte, n *uint32) uintptr
	getStatusChange  func(hctx uint32, timeout uint32, states *byte, n uint32) uintptr
	cancel           func(hctx uint32) uintptr
	connect          func(hctx uint32, reader *byte, mode, protocols uint32, hcard *uint32, active *uint32) uintptr
	reconnect        func(hcard uint32, mode, protocols, init uint32, active *uint32) uintptr
	disconnect       func(hcard, disp uint32) uintptr
	transmit         func(hcard uint32, sendPci *sysIORequest, send *byte, sendLen uint32, recvPci *sysIORequest, recv *byte, recvLen *uint32) uintptr
	control          func(hcard, code uint32, send *byte, sendLen uint32, recv *byte, recvLen uint32, returned *uint32) uintptr
	status           func(hcard uint32, reader *byte, readerLen, state, protocol *uint32, atr *byte, atrLen *uint32) uintptr
}

func newPlatformDriver() driver {
	return &pcscFramework{}
}

func (d *pcscFramework) load() error {
	d.once.Do(func() {
		lib, err := purego.Dlopen("/System/Library/Frameworks/PCSC.framework/PCSC", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			d.err = fmt.Errorf("load PCSC framework: %w", err)
			return
		}
		purego.RegisterLibFunc(&d.establishContext, lib, "SCardEstablishContext")
		purego.RegisterLibFunc(&d.releaseContext, lib, "SCardReleaseContext")
		purego.RegisterLibFunc(&d.isValidContext, lib, "SCardIsValidContext")
		purego.RegisterLibFunc(&d.listReaders, lib, "SCardListReaders")
		purego.RegisterLibFunc(&d.getStatusChange, lib, "SCardGetStatusChange")
		purego.RegisterLibFunc(&d.cancel, lib, "SCardCancel")
		purego.RegisterLibFunc(&d.connect, lib, "SCardConnect")
		purego.RegisterLibFunc(&d.reconnect, lib, "SCardReconnect")
		purego.RegisterLibFunc(&d.disconnect, lib, "SCardDisconnect")
		purego.RegisterLibFunc(&d.transmit, lib, "SCardTransmit")
		purego.RegisterLibFunc(&d.control, lib, "SCardControl")
		purego.RegisterLibFunc(&d.status, lib, "SCardStatus")
	})
	return d.err
}

func (d *pcscFramework) EstablishContext(scope uint32) (uintptr, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	var hctx uint32
	rc := d.establishContext(scope, 0, 0, &hctx)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return uintptr(hctx), nil
}

func (d *pcscFramework) ReleaseContext(hctx uintptr) error {
	if err := d.load(); err != nil {
		return err
	}
	return rcToError(uint32(d.releaseContext(uint32(hctx))))
}

func (d *pcscFramework) IsValidContext(hctx uintptr) bool {
	if err := d.load(); err != nil {
		return false
	}
	return d.isValidContext(uint32(hctx)) == 0
}

func (d *pcscFramework) ListReaders(hctx uintptr) ([]string, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	var n uint32
	rc := d.listReaders(uint32(hctx), nil, nil, &n)
	if err := rcToError(uint32(rc)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	rc = d.listReaders(uint32(hctx), nil, &buf[0], &n)
	if err := rcToError(uint32(rc)); err != nil {
		return nil, err
	}
	return decodeMultiString(buf[:n]), nil
}

func (d *pcscFramework) GetStatusChange(hctx uintptr, timeout time.Duration, states []ReaderState) error {
	if err := d.load(); err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	names := make([][]byte, len(states))
	buf := make([]byte, rsStride*len(states))
	for i := range states {
		names[i] = cstring(states[i].Reader)
		off := i * rsStride
		binary.LittleEndian.PutUint64(buf[off:], uint64(uintptr(unsafe.Pointer(&names[i][0]))))
		binary.LittleEndian.PutUint32(buf[off+rsOffCurrent:], uint32(states[i].Current))
	}
	rc := d.getStatusChange(uint32(hctx), timeoutMillis(timeout), &buf[0], uint32(len(states)))
	runtime.KeepAlive(names)
	if err := rcToError(uint32(rc)); err != nil {
		return err
	}
	for i := range states {
		off := i * rsStride
		states[i].Event = StateFlag(binary.LittleEndian.Uint32(buf[off+rsOffEvent:]))
		states[i].ATR = nil
		if n := int(binary.LittleEndian.Uint32(buf[off+rsOffCbAtr:])); n > 0 && n <= maxATRSize {
			states[i].ATR = cloneBytes(buf[off+rsOffAtr : off+rsOffAtr+n])
		}
	}
	return nil
}

func (d *pcscFramework) Cancel(hctx uintptr) error {
	if err := d.load(); err != nil {
		return err
	}
	return rcToError(uint32(d.cancel(uint32(hctx))))
}

func (d *pcscFramework) Connect(hctx uintptr, reader string, mode ShareMode, protocols Protocol) (uintptr, Protocol, error) {
	if err := d.load(); err != nil {
		return 0, 0, err
	}
	name := cstring(reader)
	var hcard, active uint32
	rc := d.connect(uint32(hctx), &name[0], uint32(mode), uint32(protocols), &hcard, &active)
	runtime.KeepAlive(name)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, 0, err
	}
	return uintptr(hcard), Protocol(active), nil
}

func (d *pcscFramework) Reconnect(hcard uintptr, mode ShareMode, protocols Protocol, init Disposition) (Protocol, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	var active uint32
	rc := d.reconnect(uint32(hcard), uint32(mode), uint32(protocols), uint32(init), &active)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return Protocol(active), nil
}

func (d *pcscFramework) Disconnect(hcard uintptr, disp Disposition) error {
	if err := d.load(); err != nil {
		return err
	}
	return rcToError(uint32(d.disconnect(uint32(hcard), uint32(disp))))
}

func (d *pcscFramework) Transmit(hcard uintptr, proto Protocol, send, recv []byte) (int, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	sendPci := sysIORequest{
		dwProtocol:  uint32(proto),
		cbPciLength: uint32(unsafe.Sizeof(sysIORequest{})),
	}
	recvLen := uint32(len(recv))
	var sendPtr, recvPtr *byte
	if len(send) > 0 {
		sendPtr = &send[0]
	}
	if len(recv) > 0 {
		recvPtr = &recv[0]
	}
	rc := d.transmit(uint32(hcard), &sendPci, sendPtr, uint32(len(send)), nil, recvPtr, &recvLen)
	runtime.KeepAlive(send)
	runtime.KeepAlive(recv)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return int(recvLen), nil
}

func (d *pcscFramework) Control(hcard uintptr, code uint32, send, recv []byte) (int, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	var returned uint32
	var sendPtr, recvPtr *byte
	if len(send) > 0 {
		sendPtr = &send[0]
	}
	if len(recv) > 0 {
		recvPtr = &recv[0]
	}
	rc := d.control(uint32(hcard), code, sendPtr, uint32(len(send)), recvPtr, uint32(len(recv)), &returned)
	runtime.KeepAlive(send)
	runtime.KeepAlive(recv)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return int(returned), nil
}

func (d *pcscFramework) Status(hcard uintptr) (uint32, Protocol, []byte, error) {
	if err := d.load(); err != nil {
		return 0, 0, nil, err
	}
	var readerLen, state, protocol uint32
	atr := make([]byte, maxATRSize)
	atrLen := uint32(len(atr))
	rc := d.status(uint32(hcard), nil, &readerLen, &state, &protocol, &atr[0], &atrLen)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, 0, nil, err
	}
	if atrLen > maxATRSize {
		atrLen = maxATRSize
	}
	return state, Protocol(protocol), cloneBytes(atr[:atrLen]), nil
}
