package modem

import (
	"bytes"
	"time"
)

// Artifacts holds named values extracted from command responses. Later
// transforms overwrite earlier keys.
type Artifacts map[string]string

// Command is a single AT instruction together with the criteria that decide
// when it has completed. Commands are plain values and may be copied freely.
//
// A command with none of Expect, Error and Until set is fire-and-forget: it
// completes as soon as its payload has been written.
type Command struct {
	// Payload is written verbatim, followed by a CRLF terminator.
	Payload []byte

	// Expect, when set, completes the command once it appears anywhere in the
	// receive buffer.
	Expect []byte

	// Error, when set, aborts the whole sequence once it appears anywhere in
	// the receive buffer. It is checked before Expect.
	Error []byte

	// Until is evaluated against the receive buffer on every poll while the
	// command is in flight and completes the command when it returns true.
	// It covers completions that are not a fixed substring, such as a full
	// HTTP response having arrived.
	Until func(buf []byte) bool

	// Transform runs once against the receive buffer when the command
	// completes. Its result is merged into the sequence artifacts.
	Transform func(buf []byte) map[string]string

	// Delay is the minimum time between the previous command completing and
	// this command being sent.
	Delay time.Duration

	// Timeout aborts the sequence with ErrCommandTimeout when the command has
	// been in flight for longer. Zero falls back to the driver default; a
	// zero default disables the check.
	Timeout time.Duration
}

// Cmd builds a command that succeeds on "OK" and fails on "ERROR", which is
// how most ESP8266 configuration commands answer.
func Cmd(payload string) Command {
	return Command{
		Payload: []byte(payload),
		Expect:  []byte("OK"),
		Error:   []byte("ERROR"),
	}
}

// fireAndForget reports whether the command has no completion signal.
func (c *Command) fireAndForget() bool {
	return c.Expect == nil && c.Error == nil && c.Until == nil
}

func (c *Command) failed(buf []byte) bool {
	return c.Error != nil && bytes.Contains(buf, c.Error)
}

func (c *Command) succeeded(buf []byte) bool {
	return c.Expect != nil && bytes.Contains(buf, c.Expect)
}
