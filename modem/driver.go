package modem

import (
	"log/slog"
	"time"
)

// Driver owns a Transport and executes queued sequences against it, one at
// a time, from the non-blocking Poll method.
//
// A Driver is not safe for concurrent use. On the device it is polled from
// the main loop; on a host, Modem.Loop is the only goroutine that touches it.
type Driver struct {
	transport Transport
	clock     Clock
	logger    *slog.Logger

	pollInterval   time.Duration
	commandTimeout time.Duration
	queueLimit     int

	pending  []*Sequence
	active   *Sequence
	pollGate uint64
}

// NewDriver creates a Driver over an established transport. Zero values in
// config fall back to the same defaults as Build.
func NewDriver(transport Transport, config Config) *Driver {
	config.setDefaults()
	return &Driver{
		transport:      transport,
		clock:          config.Clock,
		logger:         config.Logger,
		pollInterval:   config.PollInterval,
		commandTimeout: config.CommandTimeout,
		queueLimit:     config.QueueLimit,
	}
}

// Transport returns the transport driven by d.
func (d *Driver) Transport() Transport { return d.transport }

// Active returns the sequence currently being processed, or nil.
func (d *Driver) Active() *Sequence { return d.active }

// Len returns the number of sequences waiting behind the active one.
func (d *Driver) Len() int { return len(d.pending) }

// Idle reports whether there is nothing to do.
func (d *Driver) Idle() bool { return d.active == nil && len(d.pending) == 0 }

// Enqueue appends seq to the pending queue. It fails for a sequence without
// commands and when a configured queue limit is reached.
func (d *Driver) Enqueue(seq *Sequence) error {
	if seq == nil || seq.Len() == 0 {
		return ErrEmptySequence
	}
	if d.queueLimit > 0 && len(d.pending) >= d.queueLimit {
		return ErrQueueFull
	}
	d.pending = append(d.pending, seq)
	d.logger.Debug("Sequence queued", "sequence", seq.name, "pending", len(d.pending))
	return nil
}

// Poll advances the engine by one step. It is meant to be called on every
// scheduler tick and returns immediately when idle or rate limited.
func (d *Driver) Poll() {
	if d.Idle() {
		return
	}

	now := d.now()
	if now < d.pollGate {
		return
	}
	d.pollGate = now + uint64(d.pollInterval)

	if d.active == nil {
		d.next()
		return
	}

	// the callback may drain or cancel on d, replacing d.active
	seq := d.active
	seq.Process(d, d.transport, d.transport.ReceiveBuffer())
	if d.active == seq && seq.Done() {
		d.finish()
	}
}

// Cancel removes seq from the pending queue, or aborts it with ErrCanceled
// if it is the active sequence. It reports whether seq was found.
func (d *Driver) Cancel(seq *Sequence) bool {
	if seq == nil {
		return false
	}
	if d.active == seq {
		seq.abort(d, d.transport, ErrCanceled)
		d.finish()
		return true
	}
	for i, p := range d.pending {
		if p == seq {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			seq.abort(d, nil, ErrCanceled)
			return true
		}
	}
	return false
}

// Drain aborts the active sequence and every pending one with err.
func (d *Driver) Drain(err error) {
	if d.active != nil {
		d.active.abort(d, d.transport, err)
		d.active = nil
	}
	for _, seq := range d.pending {
		seq.abort(d, nil, err)
	}
	d.pending = nil
}

// finish logs the outcome of the active sequence and moves on.
func (d *Driver) finish() {
	if seq := d.active; seq.completed {
		d.logger.Info("Sequence completed", "sequence", seq.name, "artifacts", len(seq.artifacts))
	}
	d.next()
}

func (d *Driver) next() {
	if len(d.pending) == 0 {
		d.active = nil
		return
	}
	d.active = d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	d.logger.Debug("Sequence started", "sequence", d.active.name, "pending", len(d.pending))
}

func (d *Driver) now() uint64 {
	return d.clock.NowNanos()
}
