package frame

import (
	"errors"

	"github.com/danmuck/radioctl/internal/protocol"
)

// Wire constants for the vendor serial framing. The sync byte only ever
// appears unescaped as the first byte of a frame; everywhere else the two
// reserved values are replaced by 2-byte escape sequences.
const (
	SyncByte          byte = 0xA4
	EscapeByte        byte = 0x1B
	EscapedSyncMarker byte = 0x53

	ProtocolByte byte = 0x03

	TypeMessage byte = 0x00
	TypeAck     byte = 0x80
)

// MaxBody is the largest message body that fits the 1-byte payload length
// once the 2 op-code bytes are counted.
const MaxBody = 255 - 2

var (
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	ErrShortPayload     = errors.New("frame: message payload too short for op-code")
	ErrInvalidEscape    = errors.New("frame: invalid escape sequence")
	ErrBodyTooLarge     = errors.New("frame: body exceeds payload length field")
)

// Frame is one complete unit exchanged over the link, before escaping.
// OpCode is meaningful when encoding message frames only; ack frames carry
// none, and decoded frames hold the raw payload in Body until SplitPayload
// separates the op-code out.
type Frame struct {
	Seq    byte
	Type   byte
	OpCode protocol.OpCode
	Body   []byte
}

// SplitPayload splits a received message-frame payload into the 16-bit
// op-code and the remaining body. Payloads too small to hold an op-code
// fail with ErrShortPayload.
func SplitPayload(payload []byte) (protocol.OpCode, []byte, error) {
	if len(payload) < 2 {
		return 0, nil, ErrShortPayload
	}
	return protocol.OpCode(uint16(payload[0])<<8 | uint16(payload[1])), payload[2:], nil
}

// Checksum returns the byte that balances the sum of b to zero mod 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}

// Encode assembles the unescaped frame: sync, protocol, module id (always
// zero), sequence number, frame type, payload length, op-code (message
// frames only), body, checksum.
func Encode(f Frame) ([]byte, error) {
	if len(f.Body) > MaxBody {
		return nil, ErrBodyTooLarge
	}

	payloadLen := len(f.Body)
	if f.Type == TypeMessage {
		payloadLen += 2
	}

	buf := make([]byte, 0, 6+payloadLen+1)
	buf = append(buf, SyncByte, ProtocolByte, 0x00, f.Seq, f.Type, byte(payloadLen))
	if f.Type == TypeMessage {
		buf = append(buf, byte(f.OpCode>>8), byte(f.OpCode))
	}
	buf = append(buf, f.Body...)
	buf = append(buf, Checksum(buf))
	return buf, nil
}

// Escape byte-stuffs p. The caller is responsible for keeping the leading
// sync byte of a frame out of p; only bytes after sync are escaped.
func Escape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		switch b {
		case SyncByte:
			out = append(out, EscapeByte, EscapedSyncMarker)
		case EscapeByte:
			out = append(out, EscapeByte, EscapeByte)
		default:
			out = append(out, b)
		}
	}
	return out
}

// Unescape reverses Escape. An escape byte followed by anything other than
// the two recognized markers fails with ErrInvalidEscape.
func Unescape(p []byte) ([]byte, error) {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		b := p[i]
		if b != EscapeByte {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(p) {
			return nil, ErrInvalidEscape
		}
		switch p[i] {
		case EscapedSyncMarker:
			out = append(out, SyncByte)
		case EscapeByte:
			out = append(out, EscapeByte)
		default:
			return nil, ErrInvalidEscape
		}
	}
	return out, nil
}

// EncodeWire produces the on-wire form: the unescaped sync byte followed by
// the escaped remainder of the frame.
func EncodeWire(f Frame) ([]byte, error) {
	raw, err := Encode(f)
	if err != nil {
		return nil, err
	}
	return append([]byte{SyncByte}, Escape(raw[1:])...), nil
}
