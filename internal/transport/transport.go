// Package transport drives the receive loop over the serial link: it syncs
// to frame boundaries, decodes and acknowledges frames, and dispatches
// decoded op-code/payload pairs to a registered handler.
package transport

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/radioctl/internal/link"
	"github.com/danmuck/radioctl/internal/protocol"
	"github.com/danmuck/radioctl/internal/protocol/frame"
)

var (
	ErrLinkNotOpen    = errors.New("transport: link not open")
	ErrAlreadyStarted = errors.New("transport: already started")
)

// Link is the byte-level serial capability the engine drives. ReadByte
// blocks until a byte arrives, RequestStop is observed while blocked, or
// the device fails.
type Link interface {
	IsOpen() bool
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
	RequestStop()
}

// FrameHandler is called for every valid message frame, from the receive
// goroutine.
type FrameHandler interface {
	OnFrameReceived(op protocol.OpCode, payload []byte)
}

// FrameHandlerFunc is the func form of FrameHandler.
type FrameHandlerFunc func(op protocol.OpCode, payload []byte)

func (f FrameHandlerFunc) OnFrameReceived(op protocol.OpCode, payload []byte) {
	f(op, payload)
}

type state int

const (
	stateIdle state = iota
	stateReceiving
	stateStopped
)

// Engine owns the receive loop and the shared outgoing sequence counter.
type Engine struct {
	link    Link
	handler FrameHandler
	log     zerolog.Logger

	writeMu sync.Mutex
	seq     byte

	stateMu sync.Mutex
	state   state
}

func New(l Link, handler FrameHandler, log zerolog.Logger) *Engine {
	return &Engine{link: l, handler: handler, log: log}
}

// Start runs the receive loop on the calling goroutine until Stop is called
// or the link fails. It returns ErrLinkNotOpen immediately if the link was
// never opened, nil after a clean stop, and the underlying read error when
// the serial device disappears.
func (e *Engine) Start() error {
	if !e.link.IsOpen() {
		return ErrLinkNotOpen
	}

	e.stateMu.Lock()
	if e.state != stateIdle {
		e.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = stateReceiving
	e.stateMu.Unlock()

	defer func() {
		e.stateMu.Lock()
		e.state = stateStopped
		e.stateMu.Unlock()
	}()

	r := frame.NewReader(e.link)
	for {
		f, discarded, err := r.Next()
		if discarded > 0 {
			e.log.Debug().Int("bytes", discarded).Msg("resynchronized to frame boundary")
		}
		switch {
		case err == nil:
			e.handleFrame(f)
		case errors.Is(err, frame.ErrChecksumMismatch):
			e.log.Warn().Msg("dropping frame with invalid checksum")
		case errors.Is(err, frame.ErrInvalidEscape):
			// The link is desynchronized at the byte level; drop and hunt
			// for the next sync byte.
			e.log.Warn().Msg("dropping frame with invalid escape sequence")
		case errors.Is(err, link.ErrStopped):
			e.log.Debug().Msg("receive loop stopped")
			return nil
		default:
			e.log.Error().Err(err).Msg("receive loop terminated by link failure")
			return err
		}
	}
}

// Stop asynchronously ends the receive loop. The loop observes the request
// at its next read boundary, bounded by the link's read timeout; Start
// returns once it has wound down.
func (e *Engine) Stop() {
	e.link.RequestStop()
}

func (e *Engine) handleFrame(f frame.Frame) {
	switch f.Type {
	case frame.TypeMessage:
		if err := e.sendAckFrame(f.Seq); err != nil {
			e.log.Error().Err(err).Uint8("seq", f.Seq).Msg("failed to ack frame")
		}
		op, body, err := frame.SplitPayload(f.Body)
		if err != nil {
			e.log.Warn().Uint8("seq", f.Seq).Msg("dropping message frame with short payload")
			return
		}
		if e.handler != nil {
			e.handler.OnFrameReceived(op, body)
		}
	case frame.TypeAck:
		// Reserved for future retry logic.
		e.log.Debug().Uint8("seq", f.Seq).Msg("ack frame received")
	default:
		e.log.Warn().Uint8("type", f.Type).Msg("dropping frame with unknown type")
	}
}

// SendMessageFrame escapes and transmits one message frame, consuming the
// next value of the shared sequence counter. The counter wraps 255 to 0.
func (e *Engine) SendMessageFrame(op protocol.OpCode, body []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	wire, err := frame.EncodeWire(frame.Frame{
		Seq:    e.seq,
		Type:   frame.TypeMessage,
		OpCode: op,
		Body:   body,
	})
	if err != nil {
		return err
	}
	e.seq++
	_, err = e.link.Write(wire)
	return err
}

func (e *Engine) sendAckFrame(seq byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	wire, err := frame.EncodeWire(frame.Frame{Seq: seq, Type: frame.TypeAck})
	if err != nil {
		return err
	}
	_, err = e.link.Write(wire)
	return err
}
