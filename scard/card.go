package scard

import (
	"fmt"
	"sync"
)

const (
	// receive window for a short APDU response: 256 data bytes plus SW1/SW2
	defaultRecvLen = 258
	controlRecvLen = 256
)

// Card is an open connection to a card in a reader.
type Card struct {
	mu        sync.Mutex
	drv       driver
	h         uintptr
	reader    string
	protocol  Protocol
	connected bool
}

// Reader returns the name of the reader this card sits in.
func (c *Card) Reader() string {
	return c.reader
}

// Protocol returns the active protocol negotiated at connect or reconnect.
func (c *Card) Protocol() Protocol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol
}

func (c *Card) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ATR queries the card's answer-to-reset. Returns nil when the card is
// disconnected or the query fails.
func (c *Card) ATR() []byte {
	st, err := c.Status()
	if err != nil {
		return nil
	}
	return st.ATR
}

// Transmit sends an APDU and returns the response, using the default
// receive window of 258 bytes. Use TransmitMax for extended APDUs.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	return c.TransmitMax(cmd, defaultRecvLen)
}

// TransmitMax sends an APDU with an explicit receive window for responses
// longer than a short APDU allows.
func (c *Card) TransmitMax(cmd []byte, maxRecv int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrCardDisconnected
	}
	if maxRecv <= 0 {
		maxRecv = defaultRecvLen
	}
	recv := make([]byte, maxRecv)
	n, err := c.drv.Transmit(c.h, c.protocol, cmd, recv)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	return recv[:n], nil
}

// Control sends a control command directly to the reader.
func (c *Card) Control(code uint32, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrCardDisconnected
	}
	recv := make([]byte, controlRecvLen)
	n, err := c.drv.Control(c.h, code, data, recv)
	if err != nil {
		return nil, fmt.Errorf("control 0x%x: %w", code, err)
	}
	return recv[:n], nil
}

// CardStatus is the snapshot returned by Status. State is the raw card
// status value from the daemon (absent, present, powered, ...), not a
// StateFlag bit set.
type CardStatus struct {
	State    uint32
	Protocol Protocol
	ATR      []byte
}

func (c *Card) Status() (*CardStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrCardDisconnected
	}
	state, proto, atr, err := c.drv.Status(c.h)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &CardStatus{State: state, Protocol: proto, ATR: atr}, nil
}

// Disconnect ends the connection. The card counts as disconnected even if
// the daemon reports an error for the call itself.
func (c *Card) Disconnect(disp Disposition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	err := c.drv.Disconnect(c.h, disp)
	c.connected = false
	c.h = 0
	return err
}

// Reconnect re-establishes the connection, typically after a reset or to
// change the share mode, and updates the active protocol.
func (c *Card) Reconnect(mode ShareMode, protocols Protocol, init Disposition) (Protocol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return 0, ErrCardDisconnected
	}
	active, err := c.drv.Reconnect(c.h, mode, protocols, init)
	if err != nil {
		return 0, fmt.Errorf("reconnect: %w", err)
	}
	c.protocol = active
	return active, nil
}
