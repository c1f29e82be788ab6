package protocol

import "fmt"

// OpCode identifies which application-level command or event a message
// frame carries. Requests live in 0x00xx; the module answers with the
// request op-code plus 0x2000, and pushes unsolicited frames from the
// 0x60xx/0x80xx announce ranges.
type OpCode uint16

const (
	OpSetPowerModeRequest  OpCode = 0x0002
	OpSetPowerModeResponse OpCode = 0x2002

	OpSetResetRequest  OpCode = 0x0009
	OpSetResetResponse OpCode = 0x2009

	OpSetChannelRequest  OpCode = 0x000A
	OpSetChannelResponse OpCode = 0x200A

	OpGetChannelRequest  OpCode = 0x0025
	OpGetChannelResponse OpCode = 0x2025

	OpGetSignalRequest  OpCode = 0x0043
	OpGetSignalResponse OpCode = 0x2043

	OpGetChannelListRequest  OpCode = 0x0045
	OpGetChannelListResponse OpCode = 0x2045

	OpSetFeatureMonitorRequest  OpCode = 0x0051
	OpSetFeatureMonitorResponse OpCode = 0x2051

	// OpPutPdtEvent is pushed by the module when program data text changes
	// on a monitored channel.
	OpPutPdtEvent OpCode = 0x6081

	// OpPutModuleReady is announced by the module after a reset once it is
	// able to accept commands again.
	OpPutModuleReady OpCode = 0x8080
)

// opCodeNames maps op-codes to human-readable names for logging.
var opCodeNames = map[OpCode]string{
	OpSetPowerModeRequest:       "SET_POWER_MODE_REQUEST",
	OpSetPowerModeResponse:      "SET_POWER_MODE_RESPONSE",
	OpSetResetRequest:           "SET_RESET_REQUEST",
	OpSetResetResponse:          "SET_RESET_RESPONSE",
	OpSetChannelRequest:         "SET_CHANNEL_REQUEST",
	OpSetChannelResponse:        "SET_CHANNEL_RESPONSE",
	OpGetChannelRequest:         "GET_CHANNEL_REQUEST",
	OpGetChannelResponse:        "GET_CHANNEL_RESPONSE",
	OpGetSignalRequest:          "GET_SIGNAL_REQUEST",
	OpGetSignalResponse:         "GET_SIGNAL_RESPONSE",
	OpGetChannelListRequest:     "GET_CHANNEL_LIST_REQUEST",
	OpGetChannelListResponse:    "GET_CHANNEL_LIST_RESPONSE",
	OpSetFeatureMonitorRequest:  "SET_FEATURE_MONITOR_REQUEST",
	OpSetFeatureMonitorResponse: "SET_FEATURE_MONITOR_RESPONSE",
	OpPutPdtEvent:               "PUT_PDT_EVENT",
	OpPutModuleReady:            "PUT_MODULE_READY",
}

func (op OpCode) String() string {
	if name, ok := opCodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(op))
}
