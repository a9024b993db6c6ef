package modem

import (
	"bytes"
	"sync"
	"time"
)

// TestTransport is an in-memory Transport. Tests and emulators feed modem
// output with Receive and inspect what the Driver wrote with Written.
//
// An optional Responder is called for every write and whatever it returns is
// appended to the receive buffer, which makes it possible to script a modem
// that answers commands as they arrive.
type TestTransport struct {
	mu        sync.Mutex
	rx        []byte
	tx        [][]byte
	closed    bool
	responder func(written []byte) []byte
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{}
}

// SetResponder installs fn as the scripted modem. fn runs with the transport
// lock released.
func (t *TestTransport) SetResponder(fn func(written []byte) []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrAlreadyClosed
	}
	t.tx = append(t.tx, bytes.Clone(p))
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		if reply := responder(p); len(reply) > 0 {
			t.Receive(string(reply))
		}
	}
	return len(p), nil
}

func (t *TestTransport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

func (t *TestTransport) ReceiveBuffer() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.rx)
}

func (t *TestTransport) ClearReceiveBuffer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = t.rx[:0]
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Receive appends data to the receive buffer.
// This simulates receiving data from the modem.
func (t *TestTransport) Receive(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.rx = append(t.rx, data...)
	}
}

// Written returns every write so far, one entry per Write call.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.tx))
	for i, p := range t.tx {
		out[i] = string(p)
	}
	return out
}

// Closed reports whether Close was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *ManualClock) NowNanos() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d)
}

// Exchange is one expected command and the modem output it triggers.
type Exchange struct {
	Command string
	Reply   string
}

// Script is a scripted modem for TestTransport.SetResponder. Writes are
// matched in order by prefix; a write that does not match the next
// expected command gets no reply.
type Script struct {
	mu    sync.Mutex
	steps []Exchange
	next  int
}

// NewScript returns an empty script.
func NewScript() *Script {
	return &Script{}
}

// Expect appends an exchange.
func (s *Script) Expect(command, reply string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, Exchange{Command: command, Reply: reply})
	return s
}

// Respond implements the responder signature of TestTransport.
func (s *Script) Respond(written []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) || !bytes.HasPrefix(written, []byte(s.steps[s.next].Command)) {
		return nil
	}
	reply := s.steps[s.next].Reply
	s.next++
	return []byte(reply)
}

// Done reports whether every exchange was played.
func (s *Script) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next == len(s.steps)
}
