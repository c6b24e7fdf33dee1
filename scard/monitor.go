package scard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultWaitTimeout    = time.Second
	defaultErrorBackoff   = time.Second
	defaultReconcileEvery = 30
)

type lifecycle int

const (
	lifeIdle lifecycle = iota
	lifeStarting
	lifeRunning
	lifeStopping
)

// Monitor watches the machine's readers and delivers reader-attached,
// reader-detached, card-inserted, card-removed and error events to a
// callback, in order, from a dedicated goroutine.
//
//	Idle -> Starting -> Running -> Stopping -> Idle
//
// A Monitor owns a private PC/SC context for the duration of a run, so it
// can cancel its own blocking status query without disturbing any other
// context the program holds. Exactly two goroutines run per session: the
// worker driving the status queries and the consumer invoking the
// callback. A slow callback therefore delays delivery, never monitoring.
type Monitor struct {
	mu    sync.Mutex
	state lifecycle

	drv   driver
	hctx  uintptr
	store *stateStore
	queue *eventQueue

	// last reported state of the PnP sentinel, carried across iterations
	// so the blocking query does not wake immediately on every call
	pnpState StateFlag

	workerDone   chan struct{}
	consumerDone chan struct{}
	stopDone     chan struct{}

	waitTimeout    time.Duration
	errorBackoff   time.Duration
	reconcileEvery int
}

// MonitorOption adjusts monitor timing.
type MonitorOption func(*Monitor)

// WithWaitTimeout sets how long each blocking status query waits before
// the loop wakes up for a ground-truth pass.
func WithWaitTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.waitTimeout = d
		}
	}
}

// WithErrorBackoff sets the pause after a failed status query.
func WithErrorBackoff(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.errorBackoff = d
		}
	}
}

// WithReconcileEvery sets how many loop iterations pass between full
// reconciliations against the daemon's view. Zero disables the periodic
// pass; wait timeouts still reconcile.
func WithReconcileEvery(n int) MonitorOption {
	return func(m *Monitor) {
		if n >= 0 {
			m.reconcileEvery = n
		}
	}
}

func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		drv:            sysDrv,
		store:          newStateStore(),
		waitTimeout:    defaultWaitTimeout,
		errorBackoff:   defaultErrorBackoff,
		reconcileEvery: defaultReconcileEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start brings the monitor up and begins delivering events to cb. It fails
// synchronously when the monitor context cannot be established or a session
// is already active.
func (m *Monitor) Start(cb func(Event)) error {
	if cb == nil {
		return ErrNilCallback
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != lifeIdle {
		return ErrMonitorRunning
	}
	m.state = lifeStarting
	hctx, err := m.drv.EstablishContext(ScopeSystem)
	if err != nil {
		m.state = lifeIdle
		return fmt.Errorf("establish monitor context: %w", err)
	}
	m.hctx = hctx
	m.pnpState = StateUnaware
	m.queue = newEventQueue()
	m.workerDone = make(chan struct{})
	m.consumerDone = make(chan struct{})
	m.stopDone = make(chan struct{})
	m.state = lifeRunning
	go m.consume(cb)
	go m.run()
	return nil
}

// Stop cancels the in-flight status query, waits for the worker to exit
// and the queued events to drain, then releases the monitor context. Safe
// to call when not running, and safe to call concurrently: every caller
// returns only once the monitor is fully down. Teardown problems are
// logged, not returned; the monitor is down either way.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == lifeStopping {
		// another caller is tearing down; wait it out
		done := m.stopDone
		m.mu.Unlock()
		<-done
		return nil
	}
	if m.state != lifeRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = lifeStopping
	hctx := m.hctx
	done := m.stopDone
	m.mu.Unlock()

	if err := m.drv.Cancel(hctx); err != nil && !errors.Is(err, ErrInvalidHandle) {
		log.Debugf("scard: cancel monitor wait: %v", err)
	}
	<-m.workerDone
	m.queue.close()
	<-m.consumerDone

	m.mu.Lock()
	if err := m.drv.ReleaseContext(m.hctx); err != nil {
		log.Debugf("scard: release monitor context: %v", err)
	}
	m.hctx = 0
	m.store.clear()
	m.state = lifeIdle
	m.mu.Unlock()
	close(done)
	return nil
}

// Close stops the monitor, so one can sit in a defer like any other
// resource.
func (m *Monitor) Close() error {
	return m.Stop()
}

// IsRunning reports whether the monitor loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == lifeRunning
}

func (m *Monitor) stopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != lifeRunning
}

func (m *Monitor) consume(cb func(Event)) {
	defer close(m.consumerDone)
	for {
		ev, ok := m.queue.next()
		if !ok {
			return
		}
		cb(ev)
	}
}

func (m *Monitor) emit(ev Event) {
	log.Debugf("scard: %s reader=%q state=%v", ev.Kind, ev.Reader, ev.State)
	m.queue.push(ev)
}

func (m *Monitor) run() {
	defer close(m.workerDone)

	m.bootstrap()

	for iter := 1; ; iter++ {
		if m.stopping() {
			return
		}
		if m.reconcileEvery > 0 && iter%m.reconcileEvery == 0 {
			m.reconcile()
		}

		states := m.waitSet()
		err := m.drv.GetStatusChange(m.hctx, m.waitTimeout, states)
		if m.stopping() || errors.Is(err, ErrCancelled) {
			return
		}
		switch {
		case errors.Is(err, ErrTimeout):
			// nothing reported in this window; make sure nothing was missed
			m.reconcile()
		case err != nil:
			m.emit(Event{Kind: MonitorError, Err: err})
			time.Sleep(m.errorBackoff)
		default:
			m.apply(states)
		}
	}
}

// bootstrap populates the store with the readers present at start and
// announces them. Their current card state is absorbed silently first, so
// the attach events carry real flags and ATRs and a card that was already
// inserted does not produce a synthetic insert.
func (m *Monitor) bootstrap() {
	names, err := m.listNames()
	if err != nil {
		log.Debugf("scard: initial reader enumeration failed: %v", err)
		return
	}
	m.store.syncNames(names)
	for _, s := range m.groundTruth() {
		m.store.update(s.Reader, s.Event, s.ATR)
	}
	for _, e := range m.store.snapshot() {
		m.emit(Event{Kind: ReaderAttached, Reader: e.name, State: e.flags, ATR: e.atr})
	}
}

// listNames enumerates reader names; a daemon with no readers at all
// counts as an empty list.
func (m *Monitor) listNames() ([]string, error) {
	names, err := m.drv.ListReaders(m.hctx)
	if errors.Is(err, ErrNoReadersAvailable) {
		return nil, nil
	}
	return names, err
}

// groundTruth re-queries every stored reader from scratch; an unaware
// current state makes the daemon report the actual state immediately.
func (m *Monitor) groundTruth() []ReaderState {
	names := m.store.names()
	if len(names) == 0 {
		return nil
	}
	states := make([]ReaderState, len(names))
	for i, n := range names {
		states[i] = ReaderState{Reader: n, Current: StateUnaware}
	}
	if err := m.drv.GetStatusChange(m.hctx, 0, states); err != nil {
		log.Debugf("scard: ground-truth query failed: %v", err)
		return nil
	}
	return states
}

// reconcile forces a ground-truth pass and emits whatever transitions the
// store missed. Runs periodically and after every wait timeout, so a
// change that fell into a blind window is only ever delayed, not lost.
func (m *Monitor) reconcile() {
	for _, s := range m.groundTruth() {
		m.applyReader(s.Reader, s.Event, s.ATR)
	}
}

// waitSet is the store's view plus the PnP sentinel.
func (m *Monitor) waitSet() []ReaderState {
	states := m.store.waitStates()
	return append(states, ReaderState{Reader: PnPNotification, Current: m.pnpState})
}

// apply folds a successful wait result into the store. When the sentinel
// reports a reader-list change, the rest of the batch is dropped on the
// floor: it may describe a set that no longer lines up with reality, and
// the refresh's ground-truth pass picks those transitions up anyway.
func (m *Monitor) apply(states []ReaderState) {
	listChanged := false
	for i := range states {
		s := &states[i]
		if s.Reader != PnPNotification {
			continue
		}
		m.pnpState = s.Event &^ StateChanged
		listChanged = s.Event&StateChanged != 0
	}
	if listChanged {
		m.refreshReaders()
		return
	}
	for i := range states {
		s := &states[i]
		if s.Reader == PnPNotification || s.Event&StateChanged == 0 {
			continue
		}
		m.applyReader(s.Reader, s.Event, s.ATR)
	}
}

// applyReader folds one reported reader state into the store and emits the
// card transition it implies, if any. Correlation is strictly by name.
func (m *Monitor) applyReader(name string, flags StateFlag, atr []byte) {
	prev, ok := m.store.get(name)
	if !ok {
		return
	}
	m.store.update(name, flags, atr)
	switch cardTransition(prev.flags, flags) {
	case transitionInserted:
		m.emit(Event{Kind: CardInserted, Reader: name, State: flags, ATR: cloneBytes(atr)})
	case transitionRemoved:
		m.emit(Event{Kind: CardRemoved, Reader: name, State: flags})
	}
}

// refreshReaders re-enumerates after a sentinel change, announces the
// membership delta and ground-truths the result. New readers absorb their
// state before the attach event so it carries real flags and an ATR;
// readers that kept their name across the change (one unit swapped for
// another inside the window) surface any card difference as insert or
// remove events after the membership events.
func (m *Monitor) refreshReaders() {
	names, err := m.listNames()
	if err != nil {
		log.Debugf("scard: reader enumeration failed: %v", err)
		return
	}
	added, removed := m.store.syncNames(names)
	truth := m.groundTruth()

	isNew := make(map[string]bool, len(added))
	for _, n := range added {
		isNew[n] = true
	}
	for _, s := range truth {
		if isNew[s.Reader] {
			m.store.update(s.Reader, s.Event, s.ATR)
		}
	}

	for _, n := range added {
		e, ok := m.store.get(n)
		if !ok {
			continue
		}
		m.emit(Event{Kind: ReaderAttached, Reader: n, State: e.flags, ATR: e.atr})
	}
	for _, n := range removed {
		m.emit(Event{Kind: ReaderDetached, Reader: n})
	}
	for _, s := range truth {
		if !isNew[s.Reader] {
			m.applyReader(s.Reader, s.Event, s.ATR)
		}
	}
}
