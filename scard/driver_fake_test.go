package scard

import (
	"sync"
	"time"
)

type fakeReader struct {
	flags StateFlag
	atr   []byte
}

// fakeDriver simulates the daemon side of the driver seam. Zero-timeout
// queries answer from truth immediately, the way the real daemon does for
// an unaware current state. Blocking queries only report changes that were
// explicitly announced, so tests can model the real primitive's unreliable
// delta semantics: state can drift silently and a wait can time out right
// past a transition.
type fakeDriver struct {
	mu   sync.Mutex
	cond *sync.Cond

	order []string
	truth map[string]*fakeReader

	pending     map[string]bool
	listPending bool

	cancelled bool
	waitErrs  []error

	establishErr error
	cancelErr    error
	established  int
	released     int
	cancels      int

	connectErr     error
	activeProto    Protocol
	transmitResp   []byte
	transmitErr    error
	lastTransmit   []byte
	controlResp    []byte
	lastControl    uint32
	disconnectErr  error
	disconnects    int
	statusState    uint32
	statusProto    Protocol
	statusATR      []byte
	reconnectProto Protocol
}

func newFakeDriver() *fakeDriver {
	d := &fakeDriver{
		truth:       map[string]*fakeReader{},
		pending:     map[string]bool{},
		activeProto: ProtocolT1,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// addReader attaches a reader silently, without announcing a list change.
func (d *fakeDriver) addReader(name string, flags StateFlag, atr []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.truth[name]; !ok {
		d.order = append(d.order, name)
	}
	d.truth[name] = &fakeReader{flags: flags, atr: cloneBytes(atr)}
}

// addReaderFront attaches a reader silently at the head of the enumeration
// order, taking the slot a dropped reader used to occupy.
func (d *fakeDriver) addReaderFront(name string, flags StateFlag, atr []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.truth[name]; !ok {
		d.order = append([]string{name}, d.order...)
	}
	d.truth[name] = &fakeReader{flags: flags, atr: cloneBytes(atr)}
}

// dropReader detaches a reader silently.
func (d *fakeDriver) dropReader(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.truth, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// setState changes a reader's truth silently. A blocking wait will not
// report it; only a ground-truth query sees it.
func (d *fakeDriver) setState(name string, flags StateFlag, atr []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.truth[name] = &fakeReader{flags: flags, atr: cloneBytes(atr)}
}

// announce flags a reader's current truth as a reportable change and wakes
// any blocked wait.
func (d *fakeDriver) announce(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[name] = true
	d.cond.Broadcast()
}

// announceBatch flags several reader changes, optionally together with a
// sentinel list change, as one wait result. Everything lands in the same
// batch, unlike separate announce calls which a blocked wait may observe
// one at a time.
func (d *fakeDriver) announceBatch(names []string, list bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range names {
		d.pending[n] = true
	}
	d.listPending = d.listPending || list
	d.cond.Broadcast()
}

// announceList wakes any blocked wait with a sentinel list change.
func (d *fakeDriver) announceList() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listPending = true
	d.cond.Broadcast()
}

// insertCard puts a card in a reader and announces the change.
func (d *fakeDriver) insertCard(name string, atr []byte) {
	d.mu.Lock()
	d.truth[name] = &fakeReader{flags: StatePresent, atr: cloneBytes(atr)}
	d.pending[name] = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// removeCard takes the card out of a reader and announces the change.
func (d *fakeDriver) removeCard(name string) {
	d.mu.Lock()
	d.truth[name] = &fakeReader{flags: StateEmpty}
	d.pending[name] = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// failNextWait scripts the outcome of the next blocking wait.
func (d *fakeDriver) failNextWait(err error) {
	d.mu.Lock()
	d.waitErrs = append(d.waitErrs, err)
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *fakeDriver) EstablishContext(scope uint32) (uintptr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.establishErr != nil {
		return 0, d.establishErr
	}
	d.established++
	return uintptr(0x1000 + d.established), nil
}

func (d *fakeDriver) ReleaseContext(hctx uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released++
	return nil
}

func (d *fakeDriver) IsValidContext(hctx uintptr) bool {
	return true
}

func (d *fakeDriver) ListReaders(hctx uintptr) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.order) == 0 {
		return nil, ErrNoReadersAvailable
	}
	return append([]string(nil), d.order...), nil
}

func (d *fakeDriver) Cancel(hctx uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels++
	if d.cancelErr != nil {
		return d.cancelErr
	}
	d.cancelled = true
	d.cond.Broadcast()
	return nil
}

func (d *fakeDriver) GetStatusChange(hctx uintptr, timeout time.Duration, states []ReaderState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timeout == 0 {
		d.fill(states)
		return nil
	}

	for {
		if d.cancelled {
			d.cancelled = false
			return ErrCancelled
		}
		if len(d.waitErrs) > 0 {
			err := d.waitErrs[0]
			d.waitErrs = d.waitErrs[1:]
			return err
		}
		if d.reportChanges(states) {
			return nil
		}
		d.cond.Wait()
	}
}

// reportChanges fills in announced changes for the queried set. Entries
// with nothing announced echo their current state back unchanged.
func (d *fakeDriver) reportChanges(states []ReaderState) bool {
	any := false
	for i := range states {
		s := &states[i]
		if s.Reader == PnPNotification {
			if d.listPending {
				any = true
			}
			continue
		}
		if d.pending[s.Reader] {
			any = true
		}
	}
	if !any {
		return false
	}
	for i := range states {
		s := &states[i]
		if s.Reader == PnPNotification {
			s.Event = s.Current &^ StateChanged
			if d.listPending {
				s.Event |= StateChanged
				d.listPending = false
			}
			continue
		}
		if d.pending[s.Reader] {
			delete(d.pending, s.Reader)
			if r, ok := d.truth[s.Reader]; ok {
				s.Event = r.flags | StateChanged
				s.ATR = cloneBytes(r.atr)
				continue
			}
			s.Event = StateUnknown | StateChanged
			s.ATR = nil
			continue
		}
		s.Event = s.Current
	}
	return true
}

func (d *fakeDriver) fill(states []ReaderState) {
	for i := range states {
		s := &states[i]
		if s.Reader == PnPNotification {
			s.Event = s.Current
			continue
		}
		if r, ok := d.truth[s.Reader]; ok {
			s.Event = r.flags
			s.ATR = cloneBytes(r.atr)
			continue
		}
		s.Event = StateUnknown
		s.ATR = nil
	}
}

func (d *fakeDriver) Connect(hctx uintptr, reader string, mode ShareMode, protocols Protocol) (uintptr, Protocol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectErr != nil {
		return 0, 0, d.connectErr
	}
	return 0x42, d.activeProto, nil
}

func (d *fakeDriver) Reconnect(hcard uintptr, mode ShareMode, protocols Protocol, init Disposition) (Protocol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnectProto, nil
}

func (d *fakeDriver) Disconnect(hcard uintptr, disp Disposition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	return d.disconnectErr
}

func (d *fakeDriver) Transmit(hcard uintptr, proto Protocol, send, recv []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transmitErr != nil {
		return 0, d.transmitErr
	}
	d.lastTransmit = cloneBytes(send)
	if len(recv) < len(d.transmitResp) {
		return 0, ErrInsufficientBuffer
	}
	return copy(recv, d.transmitResp), nil
}

func (d *fakeDriver) Control(hcard uintptr, code uint32, send, recv []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastControl = code
	return copy(recv, d.controlResp), nil
}

func (d *fakeDriver) Status(hcard uintptr) (uint32, Protocol, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusState, d.statusProto, cloneBytes(d.statusATR), nil
}
