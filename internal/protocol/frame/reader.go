package frame

import "io"

// Reader decodes frames one byte at a time from an escaped stream,
// typically a serial link read with an inter-byte timeout.
type Reader struct {
	br io.ByteReader
}

func NewReader(br io.ByteReader) *Reader {
	return &Reader{br: br}
}

// Next blocks until one complete frame has been read. It resynchronizes to
// the next sync byte first, reporting how many garbage bytes were skipped.
// The returned frame carries the raw payload; message frames are split into
// op-code and body with SplitPayload. Decode failures (ErrChecksumMismatch,
// ErrInvalidEscape) leave the stream positioned for another
// resynchronization attempt; errors from the underlying reader are passed
// through unchanged.
func (r *Reader) Next() (Frame, int, error) {
	discarded := 0
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return Frame{}, discarded, err
		}
		if b == SyncByte {
			break
		}
		discarded++
	}

	// Header tail after sync: protocol, module id, seq, type, payload len.
	var hdr [5]byte
	sum := SyncByte
	for i := range hdr {
		b, err := r.readUnescaped()
		if err != nil {
			return Frame{}, discarded, err
		}
		hdr[i] = b
		sum += b
	}
	seq := hdr[2]
	frameType := hdr[3]
	payloadLen := int(hdr[4])

	payload := make([]byte, payloadLen)
	for i := range payload {
		b, err := r.readUnescaped()
		if err != nil {
			return Frame{}, discarded, err
		}
		payload[i] = b
		sum += b
	}

	checksum, err := r.readUnescaped()
	if err != nil {
		return Frame{}, discarded, err
	}
	if sum+checksum != 0 {
		return Frame{}, discarded, ErrChecksumMismatch
	}

	return Frame{Seq: seq, Type: frameType, Body: payload}, discarded, nil
}

func (r *Reader) readUnescaped() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != EscapeByte {
		return b, nil
	}
	marker, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	switch marker {
	case EscapedSyncMarker:
		return SyncByte, nil
	case EscapeByte:
		return EscapeByte, nil
	default:
		return 0, ErrInvalidEscape
	}
}
