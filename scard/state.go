package scard

import (
	"fmt"
	"strings"
)

// StateFlag is the reader state bit set reported by status queries. The
// values match the winscard ABI on every supported platform, so they pass
// through the platform driver untranslated.
type StateFlag uint32

const (
	StateUnaware     StateFlag = 0x0000
	StateIgnore      StateFlag = 0x0001
	StateChanged     StateFlag = 0x0002
	StateUnknown     StateFlag = 0x0004
	StateUnavailable StateFlag = 0x0008
	StateEmpty       StateFlag = 0x0010
	StatePresent     StateFlag = 0x0020
	StateAtrMatch    StateFlag = 0x0040
	StateExclusive   StateFlag = 0x0080
	StateInUse       StateFlag = 0x0100
	StateMute        StateFlag = 0x0200
	StateUnpowered   StateFlag = 0x0400
)

var stateNames = []struct {
	bit  StateFlag
	name string
}{
	{StateIgnore, "ignore"},
	{StateChanged, "changed"},
	{StateUnknown, "unknown"},
	{StateUnavailable, "unavailable"},
	{StateEmpty, "empty"},
	{StatePresent, "present"},
	{StateAtrMatch, "atrmatch"},
	{StateExclusive, "exclusive"},
	{StateInUse, "inuse"},
	{StateMute, "mute"},
	{StateUnpowered, "unpowered"},
}

func (s StateFlag) String() string {
	if s == StateUnaware {
		return "unaware"
	}
	var parts []string
	rest := s
	for _, n := range stateNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Present reports whether a card is physically in the reader.
func (s StateFlag) Present() bool {
	return s&StatePresent != 0
}

type transition int

const (
	transitionNone transition = iota
	transitionInserted
	transitionRemoved
)

// cardTransition classifies the card movement between two observed states.
// Only the present bit is compared; exclusive, in-use, mute and the rest
// change for reasons that are not card movements.
func cardTransition(from, to StateFlag) transition {
	switch was, is := from.Present(), to.Present(); {
	case !was && is:
		return transitionInserted
	case was && !is:
		return transitionRemoved
	}
	return transitionNone
}

// ShareMode selects how a connection shares the reader with other
// applications.
type ShareMode uint32

const (
	ShareExclusive ShareMode = 1
	ShareShared    ShareMode = 2
	ShareDirect    ShareMode = 3
)

// Protocol is the card communication protocol bit set.
type Protocol uint32

const (
	ProtocolUndefined Protocol = 0x0
	ProtocolT0        Protocol = 0x1
	ProtocolT1        Protocol = 0x2
	ProtocolRaw       Protocol = 0x4
	ProtocolAny       Protocol = ProtocolT0 | ProtocolT1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUndefined:
		return "undefined"
	case ProtocolT0:
		return "T0"
	case ProtocolT1:
		return "T1"
	case ProtocolRaw:
		return "RAW"
	case ProtocolAny:
		return "T0|T1"
	}
	return fmt.Sprintf("protocol(0x%x)", uint32(p))
}

// Disposition tells the daemon what to do with the card when a connection
// ends.
type Disposition uint32

const (
	LeaveCard   Disposition = 0
	ResetCard   Disposition = 1
	UnpowerCard Disposition = 2
	EjectCard   Disposition = 3
)

// Context establishment scopes.
const (
	ScopeUser     uint32 = 0
	ScopeTerminal uint32 = 1
	ScopeSystem   uint32 = 2
)
