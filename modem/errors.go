package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has no transport, for example because the Dialer returned none.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when work is submitted after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is started a second time.
	ErrLoopRunning = errors.New("modem loop already running")

	// ErrModemError is the abort cause of a sequence whose current command
	// saw its error response in the receive buffer.
	ErrModemError = errors.New("modem reported error")

	// ErrCommandTimeout is the abort cause of a sequence whose current
	// command stayed in flight longer than its timeout.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrWrite is the abort cause of a sequence whose command payload could
	// not be written to the transport.
	ErrWrite = errors.New("transport write failed")

	// ErrCanceled is the abort cause of a sequence removed through Cancel.
	ErrCanceled = errors.New("sequence canceled")

	// ErrQueueFull is returned by Enqueue when the pending queue has reached
	// the configured limit.
	ErrQueueFull = errors.New("sequence queue full")

	// ErrEmptySequence is returned by Enqueue for a sequence without
	// commands, which could never complete.
	ErrEmptySequence = errors.New("sequence has no commands")
)
