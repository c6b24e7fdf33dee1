package scard

import (
	"errors"
	"fmt"
)

// Error is a PC/SC status code paired with its standard description.
type Error struct {
	Code uint32
	desc string
}

func (e *Error) Error() string {
	return e.desc
}

// Is matches any Error carrying the same code, so wrapped errors and
// independently constructed instances compare equal under errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Canonical errors for the winscard return codes the library deals with.
// rcToError hands these exact instances back, so errors.Is works by
// identity as well as by code.
var (
	ErrInternal           = &Error{0x80100001, "internal error"}
	ErrCancelled          = &Error{0x80100002, "operation cancelled"}
	ErrInvalidHandle      = &Error{0x80100003, "invalid handle"}
	ErrInvalidParameter   = &Error{0x80100004, "invalid parameter"}
	ErrInvalidTarget      = &Error{0x80100005, "invalid target"}
	ErrNoMemory           = &Error{0x80100006, "not enough memory"}
	ErrInsufficientBuffer = &Error{0x80100008, "insufficient buffer"}
	ErrUnknownReader      = &Error{0x80100009, "unknown reader"}
	ErrTimeout            = &Error{0x8010000a, "operation timed out"}
	ErrSharingViolation   = &Error{0x8010000b, "sharing violation"}
	ErrNoSmartcard        = &Error{0x8010000c, "no smart card present"}
	ErrUnknownCard        = &Error{0x8010000d, "unknown card type"}
	ErrCantDispose        = &Error{0x8010000e, "cannot dispose handle"}
	ErrProtoMismatch      = &Error{0x8010000f, "protocol mismatch"}
	ErrNotReady           = &Error{0x80100010, "reader not ready"}
	ErrInvalidValue       = &Error{0x80100011, "invalid value"}
	ErrSystemCancelled    = &Error{0x80100012, "system cancelled operation"}
	ErrCommError          = &Error{0x80100013, "communication error"}
	ErrInvalidATR         = &Error{0x80100015, "invalid atr"}
	ErrNotTransacted      = &Error{0x80100016, "transaction failed"}
	ErrReaderUnavailable  = &Error{0x80100017, "reader unavailable"}
	ErrPCITooSmall        = &Error{0x80100019, "pci struct too small"}
	ErrNoService          = &Error{0x8010001d, "pc/sc service not running"}
	ErrServiceStopped     = &Error{0x8010001e, "pc/sc service stopped"}
	ErrNoReadersAvailable = &Error{0x8010002e, "no readers available"}
	ErrUnsupportedCard    = &Error{0x80100065, "card is not supported"}
	ErrUnresponsiveCard   = &Error{0x80100066, "card is unresponsive"}
	ErrUnpoweredCard      = &Error{0x80100067, "card is unpowered"}
	ErrResetCard          = &Error{0x80100068, "card was reset"}
	ErrRemovedCard        = &Error{0x80100069, "card was removed"}
)

var errByCode = map[uint32]*Error{}

func init() {
	for _, e := range []*Error{
		ErrInternal, ErrCancelled, ErrInvalidHandle, ErrInvalidParameter,
		ErrInvalidTarget, ErrNoMemory, ErrInsufficientBuffer, ErrUnknownReader,
		ErrTimeout, ErrSharingViolation, ErrNoSmartcard, ErrUnknownCard,
		ErrCantDispose, ErrProtoMismatch, ErrNotReady, ErrInvalidValue,
		ErrSystemCancelled, ErrCommError, ErrInvalidATR, ErrNotTransacted,
		ErrReaderUnavailable, ErrPCITooSmall, ErrNoService, ErrServiceStopped,
		ErrNoReadersAvailable, ErrUnsupportedCard, ErrUnresponsiveCard,
		ErrUnpoweredCard, ErrResetCard, ErrRemovedCard,
	} {
		errByCode[e.Code] = e
	}
}

// rcToError converts a raw winscard return code. Zero is success and maps
// to nil.
func rcToError(rc uint32) error {
	if rc == 0 {
		return nil
	}
	if e, ok := errByCode[rc]; ok {
		return e
	}
	return &Error{Code: rc, desc: fmt.Sprintf("unknown pc/sc error 0x%08x", rc)}
}

// Library misuse errors, separate from the winscard code space.
var (
	ErrMonitorRunning   = errors.New("monitor already started")
	ErrNilCallback      = errors.New("event callback required")
	ErrCardDisconnected = errors.New("card is not connected")
)
