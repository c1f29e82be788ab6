// Package radio layers the synchronous command surface of the receiver
// module on top of the transport engine: blocking request/response
// exchanges, device-ready waits, and routing of unsolicited metadata
// pushes to a registered event sink.
package radio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/radioctl/internal/link"
	"github.com/danmuck/radioctl/internal/protocol"
	"github.com/danmuck/radioctl/internal/protocol/pdt"
	"github.com/danmuck/radioctl/internal/transport"
)

var (
	ErrTimeout       = errors.New("radio: request timed out")
	ErrCommandFailed = errors.New("radio: command failed")
	ErrShortResponse = errors.New("radio: response too short")
)

// EventSink receives unsolicited events. It is invoked from the receive
// goroutine and must not block it indefinitely.
type EventSink interface {
	OnMetadataChange(channelID uint8, md pdt.Metadata)
}

// EventSinkFunc is the func form of EventSink.
type EventSinkFunc func(channelID uint8, md pdt.Metadata)

func (f EventSinkFunc) OnMetadataChange(channelID uint8, md pdt.Metadata) {
	f(channelID, md)
}

// sender is the transport capability the command layer needs.
type sender interface {
	SendMessageFrame(op protocol.OpCode, body []byte) error
}

// Config carries the link parameters and command timeouts.
type Config struct {
	Path string
	Baud int

	// ReadTimeout bounds one blocking byte read; it also bounds how long a
	// stop request can go unobserved by the receive loop.
	ReadTimeout time.Duration

	// CommandTimeout bounds each request/response exchange; ReadyTimeout
	// bounds each wait for the module-ready announcement after a reset.
	CommandTimeout time.Duration
	ReadyTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Path:           "/dev/ttyUSB0",
		Baud:           57600,
		ReadTimeout:    time.Second,
		CommandTimeout: 100 * time.Millisecond,
		ReadyTimeout:   5000 * time.Millisecond,
	}
}

// pendingRequest is the single active rendezvous slot. At most one request
// is in flight per Radio; the command mutex serializes issuers.
type pendingRequest struct {
	op   protocol.OpCode
	done chan []byte
}

// Radio drives one receiver module over one serial link.
type Radio struct {
	link   *link.Link
	engine *transport.Engine
	sender sender
	sink   EventSink
	log    zerolog.Logger
	cfg    Config

	// cmdMu single-threads command issuance; mu guards the pending slot
	// and the monitoring flag, shared with the receive goroutine.
	cmdMu      sync.Mutex
	mu         sync.Mutex
	pending    *pendingRequest
	monitoring bool
}

// Open opens and configures the serial link. Start must be called (on its
// own goroutine) before any command is issued.
func Open(cfg Config, sink EventSink, logger zerolog.Logger) (*Radio, error) {
	l, err := link.Open(cfg.Path, cfg.Baud, cfg.ReadTimeout,
		logger.With().Str("component", "link").Logger())
	if err != nil {
		return nil, fmt.Errorf("radio: open link: %w", err)
	}

	r := &Radio{
		link: l,
		sink: sink,
		log:  logger.With().Str("component", "radio").Logger(),
		cfg:  cfg,
	}
	r.engine = transport.New(l, r,
		logger.With().Str("component", "transport").Logger())
	r.sender = r.engine
	return r, nil
}

func (r *Radio) IsOpen() bool {
	return r.link.IsOpen()
}

// Start runs the receive loop on the calling goroutine; it returns after
// Stop takes effect or the link fails.
func (r *Radio) Start() error {
	return r.engine.Start()
}

// Stop asynchronously ends the receive loop.
func (r *Radio) Stop() {
	r.engine.Stop()
}

// Close releases the serial link.
func (r *Radio) Close() error {
	return r.link.Close()
}

// OnFrameReceived implements transport.FrameHandler. A frame matching the
// awaited op-code completes the pending rendezvous; metadata pushes are
// routed to the event sink while monitoring is enabled; everything else is
// logged and dropped.
func (r *Radio) OnFrameReceived(op protocol.OpCode, payload []byte) {
	r.mu.Lock()
	if p := r.pending; p != nil && p.op == op {
		r.pending = nil
		r.mu.Unlock()
		buf := make([]byte, len(payload))
		copy(buf, payload)
		p.done <- buf
		return
	}
	monitoring := r.monitoring
	r.mu.Unlock()

	if op == protocol.OpPutPdtEvent {
		if monitoring {
			r.handleMetadataFrame(payload)
		} else {
			r.log.Debug().Msg("unsolicited metadata change dropped, monitoring disabled")
		}
		return
	}
	r.log.Debug().Stringer("op", op).Msg("unhandled op code")
}

// sendCommand registers the expected response op-code, transmits the
// request inside the same critical section, and blocks until the matching
// frame arrives or the timeout elapses. The response is a fresh copy of
// whatever bytes the frame delivered.
func (r *Radio) sendCommand(reqOp, respOp protocol.OpCode, body []byte, timeout time.Duration) ([]byte, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	return r.await(respOp, timeout, func() error {
		return r.sender.SendMessageFrame(reqOp, body)
	})
}

// WaitPut blocks until an unsolicited frame with the given op-code arrives
// or the timeout elapses.
func (r *Radio) WaitPut(putOp protocol.OpCode, timeout time.Duration) ([]byte, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	return r.await(putOp, timeout, nil)
}

func (r *Radio) await(op protocol.OpCode, timeout time.Duration, send func() error) ([]byte, error) {
	done := make(chan []byte, 1)

	r.mu.Lock()
	r.pending = &pendingRequest{op: op, done: done}
	if send != nil {
		if err := send(); err != nil {
			r.pending = nil
			r.mu.Unlock()
			return nil, err
		}
	}
	r.mu.Unlock()

	select {
	case resp := <-done:
		return resp, nil
	case <-time.After(timeout):
	}

	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()

	// The response may have landed between the timeout firing and the slot
	// being cleared; the one-shot channel holds it if so.
	select {
	case resp := <-done:
		return resp, nil
	default:
	}

	r.log.Error().Stringer("op", op).Dur("timeout", timeout).Msg("request timed out")
	return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, op, timeout)
}

func (r *Radio) handleMetadataFrame(payload []byte) {
	channelID, md, err := pdt.DecodeEvent(payload, r.log)
	if err != nil {
		r.log.Warn().Err(err).Msg("dropping metadata event")
		return
	}
	if r.sink != nil {
		r.sink.OnMetadataChange(channelID, md)
	}
}
