// Package link owns the serial device used to reach the receiver module.
package link

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

var (
	ErrNotOpen = errors.New("link: not open")
	ErrStopped = errors.New("link: stopped")
)

// Link wraps one exclusively-owned serial port configured for the module:
// raw 8N1 at a fixed baud rate with a bounded inter-byte read timeout so a
// blocked read can observe a stop request.
type Link struct {
	port      *serial.Port
	log       zerolog.Logger
	stopped   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open opens and configures the serial device. The read timeout bounds how
// long a single ReadByte attempt can block without data; it also bounds how
// long a stop request can go unobserved.
func Open(path string, baud int, readTimeout time.Duration, log zerolog.Logger) (*Link, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		Parity:      serial.ParityNone,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Int("baud", baud).Msg("serial device opened")
	return &Link{port: port, log: log}, nil
}

func (l *Link) IsOpen() bool {
	return l != nil && l.port != nil
}

// ReadByte reads the next byte from the port. A zero-byte read is a timeout
// with no data and is retried until a byte arrives or RequestStop is called,
// in which case ErrStopped is returned. Any other read failure means the
// serial device is gone; there is no recovery path and the error is
// returned for the receive loop to terminate on.
func (l *Link) ReadByte() (byte, error) {
	if !l.IsOpen() {
		return 0, ErrNotOpen
	}
	var buf [1]byte
	for {
		if l.stopped.Load() {
			return 0, ErrStopped
		}
		n, err := l.port.Read(buf[:])
		if n > 0 {
			return buf[0], nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			l.log.Error().Err(err).Msg("serial read failed")
			return 0, err
		}
	}
}

// Write transmits p in full.
func (l *Link) Write(p []byte) (int, error) {
	if !l.IsOpen() {
		return 0, ErrNotOpen
	}
	written := 0
	for written < len(p) {
		n, err := l.port.Write(p[written:])
		written += n
		if err != nil {
			l.log.Error().Err(err).Msg("serial write failed")
			return written, err
		}
	}
	return written, nil
}

// RequestStop makes the next ReadByte retry return ErrStopped. It is safe
// to call from any goroutine.
func (l *Link) RequestStop() {
	l.stopped.Store(true)
}

// Close releases the port exactly once.
func (l *Link) Close() error {
	if !l.IsOpen() {
		return ErrNotOpen
	}
	l.closeOnce.Do(func() {
		l.stopped.Store(true)
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}
