//go:build linux

package scard

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

const maxATRSize = 33

// pcsc-lite declares DWORD and LONG as C long, so every DWORD-sized field
// in the ABI is pointer-sized here. Return codes only ever use the low 32
// bits.
type sysReaderState struct {
	szReader       uintptr
	pvUserData     uintptr
	dwCurrentState uintptr
	dwEventState   uintptr
	cbAtr          uintptr
	rgbAtr         [maxATRSize]byte
}

type sysIORequest struct {
	dwProtocol  uintptr
	cbPciLength uintptr
}

type pcscLite struct {
	once sync.Once
	err  error

	establishContext func(scope, res1, res2 uintptr, hctx *uintptr) uintptr
	releaseContext   func(hctx uintptr) uintptr
	isValidContext   func(hctx uintptr) uintptr
	listReaders      func(hctx uintptr, groups *byte, readers *byte, n *uintptr) uintptr
	getStatusChange  func(hctx, timeout uintptr, states *sysReaderState, n uintptr) uintptr
	cancel           func(hctx uintptr) uintptr
	connect          func(hctx uintptr, reader *byte, mode, protocols uintptr, hcard *uintptr, active *uintptr) uintptr
	reconnect        func(hcard uintptr, mode, protocols, init uintptr, active *uintptr) uintptr
	disconnect       func(hcard, disp uintptr) uintptr
	transmit         func(hcard uintptr, sendPci *sysIORequest, send *byte, sendLen uintptr, recvPci *sysIORequest, recv *byte, recvLen *uintptr) uintptr
	control          func(hcard, code uintptr, send *byte, sendLen uintptr, recv *byte, recvLen uintptr, returned *uintptr) uintptr
	status           func(hcard uintptr, reader *byte, readerLen, state, protocol *uintptr, atr *byte, atrLen *uintptr) uintptr
}

func newPlatformDriver() driver {
	return &pcscLite{}
}

func (d *pcscLite) load() error {
	d.once.Do(func() {
		lib, err := purego.Dlopen("libpcsclite.so.1", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			d.err = fmt.Errorf("load libpcsclite: %w", err)
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

func (d *pcscLite) EstablishContext(scope uint32) (uintptr, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	var hctx uintptr
	rc := d.establishContext(uintptr(scope), 0, 0, &hctx)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return hctx, nil
}

func (d *pcscLite) ReleaseContext(hctx uintptr) error {
	if err := d.load(); err != nil {
		return err
	}
	return rcToError(uint32(d.releaseContext(hctx)))
}

func (d *pcscLite) IsValidContext(hctx uintptr) bool {
	if err := d.load(); err != nil {
		return false
	}
	return d.isValidContext(hctx) == 0
}

func (d *pcscLite) ListReaders(hctx uintptr) ([]string, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	var n uintptr
	rc := d.listReaders(hctx, nil, nil, &n)
	if err := rcToError(uint32(rc)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	rc = d.listReaders(hctx, nil, &buf[0], &n)
	if err := rcToError(uint32(rc)); err != nil {
		return nil, err
	}
	return decodeMultiString(buf[:n]), nil
}

func (d *pcscLite) GetStatusChange(hctx uintptr, timeout time.Duration, states []ReaderState) error {
	if err := d.load(); err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	names := make([][]byte, len(states))
	sys := make([]sysReaderState, len(states))
	for i := range states {
		names[i] = cstring(states[i].Reader)
		sys[i] = sysReaderState{
			szReader:       uintptr(unsafe.Pointer(&names[i][0])),
			dwCurrentState: uintptr(states[i].Current),
		}
	}
	rc := d.getStatusChange(hctx, uintptr(timeoutMillis(timeout)), &sys[0], uintptr(len(sys)))
	runtime.KeepAlive(names)
	if err := rcToError(uint32(rc)); err != nil {
		return err
	}
	for i := range states {
		states[i].Event = StateFlag(uint32(sys[i].dwEventState))
		states[i].ATR = nil
		if n := int(sys[i].cbAtr); n > 0 && n <= maxATRSize {
			states[i].ATR = cloneBytes(sys[i].rgbAtr[:n])
		}
	}
	return nil
}

func (d *pcscLite) Cancel(hctx uintptr) error {
	if err := d.load(); err != nil {
		return err
	}
	return rcToError(uint32(d.cancel(hctx)))
}

func (d *pcscLite) Connect(hctx uintptr, reader string, mode ShareMode, protocols Protocol) (uintptr, Protocol, error) {
	if err := d.load(); err != nil {
		return 0, 0, err
	}
	name := cstring(reader)
	var hcard, active uintptr
	rc := d.connect(hctx, &name[0], uintptr(mode), uintptr(protocols), &hcard, &active)
	runtime.KeepAlive(name)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, 0, err
	}
	return hcard, Protocol(uint32(active)), nil
}

func (d *pcscLite) Reconnect(hcard uintptr, mode ShareMode, protocols Protocol, init Disposition) (Protocol, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	var active uintptr
	rc := d.reconnect(hcard, uintptr(mode), uintptr(protocols), uintptr(init), &active)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return Protocol(uint32(active)), nil
}

func (d *pcscLite) Disconnect(hcard uintptr, disp Disposition) error {
	if err := d.load(); err != nil {
		return err
	}
	return rcToError(uint32(d.disconnect(hcard, uintptr(disp))))
}

func (d *pcscLite) Transmit(hcard uintptr, proto Protocol, send, recv []byte) (int, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	sendPci := sysIORequest{
		dwProtocol:  uintptr(proto),
		cbPciLength: unsafe.Sizeof(sysIORequest{}),
	}
	recvLen := uintptr(len(recv))
	var sendPtr, recvPtr *byte
	if len(send) > 0 {
		sendPtr = &send[0]
	}
	if len(recv) > 0 {
		recvPtr = &recv[0]
	}
	rc := d.transmit(hcard, &sendPci, sendPtr, uintptr(len(send)), nil, recvPtr, &recvLen)
	runtime.KeepAlive(send)
	runtime.KeepAlive(recv)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return int(recvLen), nil
}

func (d *pcscLite) Control(hcard uintptr, code uint32, send, recv []byte) (int, error) {
	if err := d.load(); err != nil {
		return 0, err
	}
	var returned uintptr
	var sendPtr, recvPtr *byte
	if len(send) > 0 {
		sendPtr = &send[0]
	}
	if len(recv) > 0 {
		recvPtr = &recv[0]
	}
	rc := d.control(hcard, uintptr(code), sendPtr, uintptr(len(send)), recvPtr, uintptr(len(recv)), &returned)
	runtime.KeepAlive(send)
	runtime.KeepAlive(recv)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return int(returned), nil
}

func (d *pcscLite) Status(hcard uintptr) (uint32, Protocol, []byte, error) {
	if err := d.load(); err != nil {
		return 0, 0, nil, err
	}
	var readerLen, state, protocol uintptr
	atr := make([]byte, maxATRSize)
	atrLen := uintptr(len(atr))
	rc := d.status(hcard, nil, &readerLen, &state, &protocol, &atr[0], &atrLen)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, 0, nil, err
	}
	if atrLen > maxATRSize {
		atrLen = maxATRSize
	}
	return uint32(state), Protocol(uint32(protocol)), cloneBytes(atr[:atrLen]), nil
}
