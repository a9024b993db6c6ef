package modem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Modem wraps a Driver for use from multiple goroutines. It owns the
// transport and runs a single event loop which is the only goroutine that
// polls the Driver; other goroutines hand sequences to it over channels.
type Modem struct {
	// transport provides the physical connection to the modem
	transport Transport
	// config contains the modem configuration settings
	config Config
	// driver executes sequences; only touched by init and Loop
	driver *Driver
	logger *slog.Logger

	// closed indicates if the modem has been shut down
	closed atomic.Bool
	// loopRunning indicates if the Loop is currently running
	loopRunning atomic.Bool

	// submit queues sequences for the Loop
	submit chan *Sequence
	// canceled holds sequences whose callers gave up; cancelReady wakes
	// the Loop to drop them
	cancelMu    sync.Mutex
	canceled    []*Sequence
	cancelReady chan struct{}

	// loopCtx is cancelled by Close to stop the event loop
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// outcome is what Do waits for.
type outcome struct {
	artifacts Artifacts
	err       error
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection, runs the configured init
// commands and prepares the event loop context.
//
// Returns an error if the transport connection or modem initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		transport:   transport,
		config:      config,
		driver:      NewDriver(transport, config),
		logger:      config.Logger,
		submit:      make(chan *Sequence),
		cancelReady: make(chan struct{}, 1),
	}

	// Prepare context for Loop (but don't start it yet)
	m.loopCtx, m.loopCancel = context.WithCancel(context.Background())

	if len(config.Init) > 0 {
		initCtx, cancel := context.WithTimeout(ctx, config.InitTimeout)
		defer cancel()

		if _, err := m.runDirect(initCtx, NewSequence("init", config.Init, nil)); err != nil {
			m.loopCancel()
			transport.Close()
			return nil, fmt.Errorf("initialize modem: %w", err)
		}
	}

	return m, nil
}

// Loop is the main event loop that drives the modem. It must be called
// exactly once after New and before Submit or Do are used.
//
// The Loop is the ONLY goroutine that polls the Driver and therefore the only
// one that writes to the transport or clears its receive buffer. It:
//
// 1. Accepts sequences from Submit and Do and enqueues them
// 2. Polls the Driver every TickInterval
// 3. Removes sequences whose callers gave up
//
// The Loop runs until ctx is cancelled or the Modem is closed; pending and
// active sequences are then aborted.
func (m *Modem) Loop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.driver.Drain(fmt.Errorf("modem loop stopped: %w", ctx.Err()))
			return ctx.Err()

		case <-m.loopCtx.Done():
			m.driver.Drain(ErrAlreadyClosed)
			return nil

		case seq := <-m.submit:
			if err := m.driver.Enqueue(seq); err != nil {
				seq.abort(m.driver, nil, err)
			}

		case <-m.cancelReady:
			for _, seq := range m.takeCanceled() {
				if m.driver.Cancel(seq) {
					m.logger.Debug("Sequence cancelled", "sequence", seq.Name())
				}
			}

		case <-ticker.C:
			m.driver.Poll()
		}
	}
}

// Submit hands seq to the Loop without waiting for it to run. Its callback
// fires from the Loop goroutine on completion.
func (m *Modem) Submit(ctx context.Context, seq *Sequence) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	select {
	case m.submit <- seq:
		return nil
	case <-m.loopCtx.Done():
		return ErrAlreadyClosed
	case <-ctx.Done():
		return fmt.Errorf("sequence %q cancelled before queueing: %w", seq.Name(), ctx.Err())
	}
}

// Do submits seq and waits until it completes or aborts. It returns the
// final artifacts on completion and the abort cause otherwise. When ctx ends
// first, the sequence is cancelled.
func (m *Modem) Do(ctx context.Context, seq *Sequence) (Artifacts, error) {
	result := make(chan outcome, 1)
	seq.observer = func(a Artifacts, err error) {
		result <- outcome{artifacts: a, err: err}
	}

	if err := m.Submit(ctx, seq); err != nil {
		return nil, err
	}

	select {
	case o := <-result:
		return o.artifacts, o.err
	case <-ctx.Done():
		m.cancel(seq)
		return nil, fmt.Errorf("sequence %q: %w", seq.Name(), ctx.Err())
	}
}

// Close shuts down the modem and releases all resources.
// It stops the event loop, closes the transport connection, and marks
// the modem as closed. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}

	if m.loopCancel != nil {
		m.loopCancel()
	}

	if m.transport != nil {
		return m.transport.Close()
	}

	return nil
}

// cancel asks the Loop to drop seq. It never blocks and never loses a
// request; the Loop picks the list up on its next iteration.
func (m *Modem) cancel(seq *Sequence) {
	m.cancelMu.Lock()
	m.canceled = append(m.canceled, seq)
	m.cancelMu.Unlock()

	select {
	case m.cancelReady <- struct{}{}:
	default:
	}
}

func (m *Modem) takeCanceled() []*Sequence {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	seqs := m.canceled
	m.canceled = nil
	return seqs
}

// runDirect drives seq to completion on the calling goroutine. It is used
// during initialization, before the Loop is started.
//
// WARNING: This method must not be used once Loop is running.
func (m *Modem) runDirect(ctx context.Context, seq *Sequence) (Artifacts, error) {
	if err := m.driver.Enqueue(seq); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for !seq.Done() {
		select {
		case <-ctx.Done():
			m.driver.Drain(ctx.Err())
			return nil, fmt.Errorf("sequence %q: %w", seq.Name(), ctx.Err())
		case <-ticker.C:
			m.driver.Poll()
		}
	}
	if seq.Aborted() {
		return nil, seq.Err()
	}
	return seq.Artifacts(), nil
}
