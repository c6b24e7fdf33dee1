//go:build windows

package scard

import (
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const maxATRSize = 36

var (
	modWinscard = windows.NewLazySystemDLL("winscard.dll")

	procEstablishContext = modWinscard.NewProc("SCardEstablishContext")
	procReleaseContext   = modWinscard.NewProc("SCardReleaseContext")
	procIsValidContext   = modWinscard.NewProc("SCardIsValidContext")
	procListReaders      = modWinscard.NewProc("SCardListReadersA")
	procGetStatusChange  = modWinscard.NewProc("SCardGetStatusChangeA")
	procCancel           = modWinscard.NewProc("SCardCancel")
	procConnect          = modWinscard.NewProc("SCardConnectA")
	procReconnect        = modWinscard.NewProc("SCardReconnect")
	procDisconnect       = modWinscard.NewProc("SCardDisconnect")
	procTransmit         = modWinscard.NewProc("SCardTransmit")
	procControl          = modWinscard.NewProc("SCardControl")
	procStatus           = modWinscard.NewProc("SCardStatusA")
)

type sysReaderState struct {
	szReader       uintptr
	pvUserData     uintptr
	dwCurrentState uint32
	dwEventState   uint32
	cbAtr          uint32
	rgbAtr         [maxATRSize]byte
}

type sysIORequest struct {
	dwProtocol  uint32
	cbPciLength uint32
}

type winscardDriver struct{}

func newPlatformDriver() driver {
	return &winscardDriver{}
}

func (d *winscardDriver) loadErr() error {
	return modWinscard.Load()
}

// winscard.dll uses 0x10000 for the raw protocol where pcsc-lite uses 4;
// the portable constants follow pcsc-lite, so translate in both directions.
const winProtocolRaw = 0x00010000

func toWinProto(p Protocol) uintptr {
	w := uintptr(p) &^ uintptr(ProtocolRaw)
	if p&ProtocolRaw != 0 {
		w |= winProtocolRaw
	}
	return w
}

func fromWinProto(w uint32) Protocol {
	p := Protocol(w) & ProtocolAny
	if w&winProtocolRaw != 0 {
		p |= ProtocolRaw
	}
	return p
}

func (d *winscardDriver) EstablishContext(scope uint32) (uintptr, error) {
	if err := d.loadErr(); err != nil {
		return 0, err
	}
	var hctx uintptr
	rc, _, _ := procEstablishContext.Call(uintptr(scope), 0, 0, uintptr(unsafe.Pointer(&hctx)))
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return hctx, nil
}

func (d *winscardDriver) ReleaseContext(hctx uintptr) error {
	rc, _, _ := procReleaseContext.Call(hctx)
	return rcToError(uint32(rc))
}

func (d *winscardDriver) IsValidContext(hctx uintptr) bool {
	rc, _, _ := procIsValidContext.Call(hctx)
	return uint32(rc) == 0
}

func (d *winscardDriver) ListReaders(hctx uintptr) ([]string, error) {
	var n uint32
	rc, _, _ := procListReaders.Call(hctx, 0, 0, uintptr(unsafe.Pointer(&n)))
	if err := rcToError(uint32(rc)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	rc, _, _ = procListReaders.Call(hctx, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&n)))
	if err := rcToError(uint32(rc)); err != nil {
		return nil, err
	}
	return decodeMultiString(buf[:n]), nil
}

func (d *winscardDriver) GetStatusChange(hctx uintptr, timeout time.Duration, states []ReaderState) error {
	if len(states) == 0 {
		return nil
	}
	names := make([][]byte, len(states))
	sys := make([]sysReaderState, len(states))
	for i := range states {
		names[i] = cstring(states[i].Reader)
		sys[i] = sysReaderState{
			szReader:       uintptr(unsafe.Pointer(&names[i][0])),
			dwCurrentState: uint32(states[i].Current),
		}
	}
	rc, _, _ := procGetStatusChange.Call(hctx, uintptr(timeoutMillis(timeout)),
		uintptr(unsafe.Pointer(&sys[0])), uintptr(len(sys)))
	runtime.KeepAlive(names)
	if err := rcToError(uint32(rc)); err != nil {
		return err
	}
	for i := range states {
		states[i].Event = StateFlag(sys[i].dwEventState)
		states[i].ATR = nil
		if n := int(sys[i].cbAtr); n > 0 && n <= maxATRSize {
			states[i].ATR = cloneBytes(sys[i].rgbAtr[:n])
		}
	}
	return nil
}

func (d *winscardDriver) Cancel(hctx uintptr) error {
	rc, _, _ := procCancel.Call(hctx)
	return rcToError(uint32(rc))
}

func (d *winscardDriver) Connect(hctx uintptr, reader string, mode ShareMode, protocols Protocol) (uintptr, Protocol, error) {
	name := cstring(reader)
	var hcard uintptr
	var active uint32
	rc, _, _ := procConnect.Call(hctx, uintptr(unsafe.Pointer(&name[0])), uintptr(mode),
		toWinProto(protocols), uintptr(unsafe.Pointer(&hcard)), uintptr(unsafe.Pointer(&active)))
	runtime.KeepAlive(name)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, 0, err
	}
	return hcard, fromWinProto(active), nil
}

func (d *winscardDriver) Reconnect(hcard uintptr, mode ShareMode, protocols Protocol, init Disposition) (Protocol, error) {
	var active uint32
	rc, _, _ := procReconnect.Call(hcard, uintptr(mode), toWinProto(protocols), uintptr(init),
		uintptr(unsafe.Pointer(&active)))
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return fromWinProto(active), nil
}

func (d *winscardDriver) Disconnect(hcard uintptr, disp Disposition) error {
	rc, _, _ := procDisconnect.Call(hcard, uintptr(disp))
	return rcToError(uint32(rc))
}

func (d *winscardDriver) Transmit(hcard uintptr, proto Protocol, send, recv []byte) (int, error) {
	sendPci := sysIORequest{
		dwProtocol:  uint32(toWinProto(proto)),
		cbPciLength: uint32(unsafe.Sizeof(sysIORequest{})),
	}
	recvLen := uint32(len(recv))
	var sendPtr, recvPtr uintptr
	if len(send) > 0 {
		sendPtr = uintptr(unsafe.Pointer(&send[0]))
	}
	if len(recv) > 0 {
		recvPtr = uintptr(unsafe.Pointer(&recv[0]))
	}
	rc, _, _ := procTransmit.Call(hcard, uintptr(unsafe.Pointer(&sendPci)), sendPtr,
		uintptr(len(send)), 0, recvPtr, uintptr(unsafe.Pointer(&recvLen)))
	runtime.KeepAlive(send)
	runtime.KeepAlive(recv)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return int(recvLen), nil
}

func (d *winscardDriver) Control(hcard uintptr, code uint32, send, recv []byte) (int, error) {
	var returned uint32
	var sendPtr, recvPtr uintptr
	if len(send) > 0 {
		sendPtr = uintptr(unsafe.Pointer(&send[0]))
	}
	if len(recv) > 0 {
		recvPtr = uintptr(unsafe.Pointer(&recv[0]))
	}
	rc, _, _ := procControl.Call(hcard, uintptr(code), sendPtr, uintptr(len(send)),
		recvPtr, uintptr(len(recv)), uintptr(unsafe.Pointer(&returned)))
	runtime.KeepAlive(send)
	runtime.KeepAlive(recv)
	if err := rcToError(uint32(rc)); err != nil {
		return 0, err
	}
	return int(returned), nil
}

func (d *winscardDriver) Status(hcard uintptr) (uint32, Protocol, []byte, error) {
	var readerLen, state, protocol uint32
	atr := make([]byte, maxATRSize)
	atrLen := uint32(len(atr))
	rc, _, _ := procStatus.Call(hcard, 0, uintptr(unsafe.Pointer(&readerLen)),
		uintptr(unsafe.Pointer(&state)), uintptr(unsafe.Pointer(&protocol)),
		uintptr(unsafe.Pointer(&atr[0])), uintptr(unsafe.Pointer(&atrLen)))
	if err := rcToError(uint32(rc)); err != nil {
		return 0, 0, nil, err
	}
	if atrLen > maxATRSize {
		atrLen = maxATRSize
	}
	return state, fromWinProto(protocol), cloneBytes(atr[:atrLen]), nil
}
