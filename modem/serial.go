package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the factory rate of ESP8266 AT firmware.
	DefaultBaudRate = 115200
	// DefaultReceiveBuffer caps the bytes held between two clears. It fits
	// a few full +IPD chunks.
	DefaultReceiveBuffer = 16 * 1024

	serialReadTimeout = 10 * time.Millisecond
)

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, such as /dev/ttyUSB0.
	PortName string
	// Mode defaults to 115200 8N1 when nil.
	Mode *serial.Mode
	// BufferSize caps the receive buffer; defaults to DefaultReceiveBuffer.
	BufferSize int
}

// Dial opens the port and starts the goroutine that moves received bytes
// into the transport's receive buffer.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: DefaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("modem: open serial port %s: %w", d.PortName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("modem: set read timeout on %s: %w", d.PortName, err)
	}

	limit := d.BufferSize
	if limit <= 0 {
		limit = DefaultReceiveBuffer
	}
	t := &serialTransport{
		port:  port,
		limit: limit,
		done:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// serialTransport accumulates everything read from the port until the
// Driver clears it, mimicking the interrupt-fed UART buffer on the device.
type serialTransport struct {
	port  serial.Port
	limit int

	mu      sync.Mutex
	rx      []byte
	readErr error

	closeOnce sync.Once
	done      chan struct{}
}

func (t *serialTransport) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			var portErr *serial.PortError
			if !errors.As(err, &portErr) || portErr.Code() != serial.PortClosed {
				t.mu.Lock()
				t.readErr = err
				t.mu.Unlock()
			}
			return
		}
		if n == 0 {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}

		t.mu.Lock()
		// a full buffer drops new bytes, as the device UART buffer does
		if room := t.limit - len(t.rx); n > room {
			n = max(room, 0)
		}
		t.rx = append(t.rx, buf[:n]...)
		t.mu.Unlock()
	}
}

func (t *serialTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	err := t.readErr
	t.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("modem: serial reader stopped: %w", err)
	}
	return t.port.Write(p)
}

func (t *serialTransport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

func (t *serialTransport) ReceiveBuffer() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.rx)
}

func (t *serialTransport) ClearReceiveBuffer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = t.rx[:0]
}

func (t *serialTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.port.Close()
	})
	return err
}
