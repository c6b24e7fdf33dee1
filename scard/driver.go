package scard

import (
	"bytes"
	"time"
)

// PnPNotification is the pseudo-reader winscard watches for reader list
// changes. It can appear in wait sets next to real reader names.
const PnPNotification = `\\?PnP?\Notification`

// infiniteTimeout is the winscard INFINITE value.
const infiniteTimeout = 0xffffffff

// ReaderState is one entry of a status-change query. Current is what the
// caller believes the reader's state to be; the driver fills Event and ATR
// with what the daemon reports.
type ReaderState struct {
	Reader  string
	Current StateFlag
	Event   StateFlag
	ATR     []byte
}

// driver is the seam to the platform PC/SC stack. The monitor and the
// facades only ever talk to this interface; each build platform wires its
// winscard binding, tests wire a scripted fake.
type driver interface {
	EstablishContext(scope uint32) (uintptr, error)
	ReleaseContext(hctx uintptr) error
	IsValidContext(hctx uintptr) bool
	ListReaders(hctx uintptr) ([]string, error)
	GetStatusChange(hctx uintptr, timeout time.Duration, states []ReaderState) error
	Cancel(hctx uintptr) error
	Connect(hctx uintptr, reader string, mode ShareMode, protocols Protocol) (uintptr, Protocol, error)
	Reconnect(hcard uintptr, mode ShareMode, protocols Protocol, init Disposition) (Protocol, error)
	Disconnect(hcard uintptr, disp Disposition) error
	Transmit(hcard uintptr, proto Protocol, send, recv []byte) (int, error)
	Control(hcard uintptr, code uint32, send, recv []byte) (int, error)
	Status(hcard uintptr) (uint32, Protocol, []byte, error)
}

// sysDrv is the process-wide binding to the platform PC/SC library. Library
// loading is lazy, so a missing libpcsclite only surfaces once something
// establishes a context.
var sysDrv driver = newPlatformDriver()

// decodeMultiString splits the double-NUL terminated string list winscard
// uses for reader names.
func decodeMultiString(buf []byte) []string {
	var out []string
	for len(buf) > 0 {
		i := bytes.IndexByte(buf, 0)
		if i <= 0 {
			break
		}
		out = append(out, string(buf[:i]))
		buf = buf[i+1:]
	}
	return out
}

// cstring returns s as a NUL-terminated byte slice for the C side.
func cstring(s string) []byte {
	return append([]byte(s), 0)
}

// timeoutMillis converts a Go duration to the millisecond value winscard
// expects. Negative durations mean wait forever.
func timeoutMillis(d time.Duration) uint32 {
	if d < 0 {
		return infiniteTimeout
	}
	ms := d.Milliseconds()
	if ms >= infiniteTimeout {
		return infiniteTimeout
	}
	return uint32(ms)
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
