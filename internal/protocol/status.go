package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Status is the 16-bit result word at the front of every command response.
type Status uint16

const StatusSuccess Status = 0x0001

var ErrShortStatus = errors.New("protocol: response too short for status word")

// UnpackStatus reads the status word from the first two response bytes.
func UnpackStatus(payload []byte) (Status, error) {
	if len(payload) < 2 {
		return 0, ErrShortStatus
	}
	return Status(binary.BigEndian.Uint16(payload[0:2])), nil
}

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return fmt.Sprintf("0x%04x", uint16(s))
}
