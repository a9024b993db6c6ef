package modem

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"i4.energy/across/atlink/at"
)

// Callback is invoked exactly once when a sequence completes successfully.
// It runs inside Driver.Poll, so it may enqueue follow-up sequences on d.
type Callback func(d *Driver, artifacts Artifacts)

// Sequence is an ordered list of commands executed one at a time toward one
// logical operation, such as a single HTTP request/response cycle.
//
// A Sequence is created fully formed and is then advanced poll by poll by the
// Driver that owns it until it is completed or aborted. It is not safe for
// concurrent use; only the owning Driver may touch it.
type Sequence struct {
	name      string
	commands  []Command
	callback  Callback
	artifacts Artifacts

	cursor    int
	sent      bool
	completed bool
	aborted   bool
	err       error

	started        bool
	lastTransition uint64
	sentAt         uint64

	// observer is notified after the callback or on abort; used by Modem.Do.
	observer func(Artifacts, error)
}

// NewSequence creates a sequence over a copy of commands. cb may be nil.
func NewSequence(name string, commands []Command, cb Callback) *Sequence {
	return &Sequence{
		name:      name,
		commands:  append([]Command(nil), commands...),
		callback:  cb,
		artifacts: Artifacts{},
	}
}

// Name returns the name given at construction.
func (s *Sequence) Name() string { return s.name }

// Cursor returns the index of the command currently being processed.
func (s *Sequence) Cursor() int { return s.cursor }

// Len returns the number of commands.
func (s *Sequence) Len() int { return len(s.commands) }

// Completed reports whether every command has completed.
func (s *Sequence) Completed() bool { return s.completed }

// Aborted reports whether the sequence was aborted.
func (s *Sequence) Aborted() bool { return s.aborted }

// Done reports whether the sequence reached a terminal state.
func (s *Sequence) Done() bool { return s.completed || s.aborted }

// Err returns the abort cause, or nil.
func (s *Sequence) Err() error { return s.err }

// Artifacts returns a copy of the artifacts accumulated so far.
func (s *Sequence) Artifacts() Artifacts { return maps.Clone(s.artifacts) }

// Process advances the sequence by at most one step. buf is the transport's
// receive buffer as seen by this poll.
func (s *Sequence) Process(d *Driver, t Transport, buf []byte) {
	if s.completed || s.aborted {
		return
	}
	if s.cursor < 0 || s.cursor >= len(s.commands) {
		return
	}

	now := d.now()
	if !s.started {
		s.started = true
		s.lastTransition = now
	}

	cmd := &s.commands[s.cursor]
	if !s.sent {
		if now-s.lastTransition < uint64(cmd.Delay) {
			return
		}
		wire := make([]byte, 0, len(cmd.Payload)+len(at.CRLF))
		wire = append(append(wire, cmd.Payload...), at.CRLF...)
		if _, err := t.Write(wire); err != nil {
			s.abort(d, t, fmt.Errorf("%w: %q: %w", ErrWrite, cmd.Payload, err))
			return
		}
		s.sent = true
		s.sentAt = now
		d.logger.Debug("Sent command", "sequence", s.name, "index", s.cursor, "command", printable(cmd.Payload))

		if cmd.fireAndForget() {
			s.advance(d, t, buf)
		}
		return
	}

	if t.Available() > 0 {
		if cmd.failed(buf) {
			s.abort(d, t, fmt.Errorf("%w: %q answered %q", ErrModemError, cmd.Payload, cmd.Error))
			return
		}
		if cmd.succeeded(buf) {
			s.advance(d, t, buf)
			return
		}
	}

	if cmd.Until != nil && cmd.Until(buf) {
		s.advance(d, t, buf)
		return
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = d.commandTimeout
	}
	if timeout > 0 && now-s.sentAt > uint64(timeout) {
		s.abort(d, t, fmt.Errorf("%w: %q after %s", ErrCommandTimeout, cmd.Payload, timeout))
	}
}

func (s *Sequence) advance(d *Driver, t Transport, buf []byte) {
	cmd := &s.commands[s.cursor]
	if d.logger.Enabled(context.Background(), slog.LevelDebug) {
		for _, line := range at.Lines(buf) {
			d.logger.Debug("Response line", "sequence", s.name, "index", s.cursor, "type", line.Type, "line", line.Text)
		}
	}
	if cmd.Transform != nil {
		maps.Copy(s.artifacts, cmd.Transform(buf))
	}

	s.cursor++
	s.sent = false
	s.lastTransition = d.now()
	t.ClearReceiveBuffer()

	if s.cursor >= len(s.commands) {
		s.completed = true
		if s.callback != nil {
			s.callback(d, s.artifacts)
		}
		if s.observer != nil {
			s.observer(s.Artifacts(), nil)
		}
	}
}

// abort marks the sequence aborted with err and resets the transport. The
// callback never runs for an aborted sequence.
func (s *Sequence) abort(d *Driver, t Transport, err error) {
	if s.completed || s.aborted {
		return
	}
	s.aborted = true
	s.sent = false
	s.err = err
	if t != nil {
		t.ClearReceiveBuffer()
	}
	d.logger.Warn("Sequence aborted", "sequence", s.name, "index", s.cursor, "error", err)
	if s.observer != nil {
		s.observer(nil, err)
	}
}

// printable trims the payload for logging.
func printable(p []byte) string {
	const limit = 64
	if len(p) > limit {
		return string(p[:limit]) + "..."
	}
	return string(p)
}
