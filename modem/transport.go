package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport_test.go -package=modem

import (
	"context"
	"io"
	"time"
)

// Transport represents an established, half-duplex byte link to a Wi-Fi modem.
//
// Inbound bytes accumulate in a receive buffer owned by the Transport (on the
// device this is the UART interrupt buffer, on a host it is filled by a reader
// goroutine). The Driver inspects that buffer on every poll and clears it when
// a command completes, so a Transport must only ever be driven by one Driver.
type Transport interface {
	io.WriteCloser

	// Available reports how many received bytes are waiting in the buffer.
	Available() int

	// ReceiveBuffer returns a snapshot of everything received since the
	// last ClearReceiveBuffer. The caller must not retain it across a clear.
	ReceiveBuffer() []byte

	// ClearReceiveBuffer discards all received bytes.
	ClearReceiveBuffer()
}

// Dialer opens a Transport to a Wi-Fi modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or an in-memory emulator) and is intended to be used during
// modem construction only. Once a Transport is obtained, the Dialer is no
// longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// Clock is the monotonic time source used for command delays, timeouts and
// poll rate limiting.
type Clock interface {
	NowNanos() uint64
}

type systemClock struct {
	start time.Time
}

// SystemClock returns a Clock counting nanoseconds from its creation using
// the runtime's monotonic clock.
func SystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowNanos() uint64 {
	return uint64(time.Since(c.start))
}
