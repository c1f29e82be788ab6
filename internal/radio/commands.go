package radio

import (
	"errors"
	"fmt"

	"github.com/danmuck/radioctl/internal/protocol"
	"github.com/danmuck/radioctl/internal/protocol/pdt"
)

var ErrBadSignalValue = errors.New("radio: signal strength out of range")

// PowerState selects the module power mode.
type PowerState uint8

const (
	PowerOff   PowerState = 0x00
	PowerSleep PowerState = 0x01
	PowerFull  PowerState = 0x02
)

// SignalStrength is one reception quality enumerant; the module reports
// values 0 through 3 only.
type SignalStrength uint8

const (
	SignalNone SignalStrength = iota
	SignalWeak
	SignalGood
	SignalExcellent
)

func (s SignalStrength) IsValid() bool {
	return s <= SignalExcellent
}

func (s SignalStrength) String() string {
	switch s {
	case SignalNone:
		return "none"
	case SignalWeak:
		return "weak"
	case SignalGood:
		return "good"
	case SignalExcellent:
		return "excellent"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(s))
	}
}

// SignalReport carries the three independently reported strengths.
type SignalReport struct {
	Summary     SignalStrength
	Satellite   SignalStrength
	Terrestrial SignalStrength
}

// ChannelList is the ordered sequence of channel ids returned by one list
// query.
type ChannelList []uint8

// ChannelDescriptor is one channel's naming and current metadata,
// constructed fresh per query.
type ChannelDescriptor struct {
	ChannelID         uint8
	CategoryID        uint8
	ShortName         string
	LongName          string
	ShortCategoryName string
	LongCategoryName  string
	Metadata          pdt.Metadata
}

// Reset restarts the module, then waits for the ready announcement. The
// module announces non-zero "not yet ready" payloads while it boots; each
// wait gets its own timeout and only a timed-out wait fails the reset.
func (r *Radio) Reset() error {
	resp, err := r.sendCommand(protocol.OpSetResetRequest, protocol.OpSetResetResponse,
		nil, r.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("reset request: %w", err)
	}

	for {
		put, err := r.WaitPut(protocol.OpPutModuleReady, r.cfg.ReadyTimeout)
		if err != nil {
			return err
		}
		if len(put) > 0 && put[0] == 0 {
			return nil
		}
		r.log.Debug().Msg("module not ready yet")
	}
}

// SetPowerMode selects the module power mode.
func (r *Radio) SetPowerMode(state PowerState) error {
	resp, err := r.sendCommand(protocol.OpSetPowerModeRequest, protocol.OpSetPowerModeResponse,
		[]byte{byte(state)}, r.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("set power mode: %w", err)
	}
	return nil
}

// SetChannel tunes the module to the given channel.
func (r *Radio) SetChannel(channelID uint8) error {
	resp, err := r.sendCommand(protocol.OpSetChannelRequest, protocol.OpSetChannelResponse,
		[]byte{channelID, 0, 0, 0}, r.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("set channel %d: %w", channelID, err)
	}
	return nil
}

// GetSignalStrength queries the current reception quality.
func (r *Radio) GetSignalStrength() (SignalReport, error) {
	resp, err := r.sendCommand(protocol.OpGetSignalRequest, protocol.OpGetSignalResponse,
		nil, r.cfg.CommandTimeout)
	if err != nil {
		return SignalReport{}, err
	}
	if err := checkStatus(resp); err != nil {
		return SignalReport{}, fmt.Errorf("get signal strength: %w", err)
	}
	if len(resp) < 5 {
		return SignalReport{}, ErrShortResponse
	}

	report := SignalReport{
		Summary:     SignalStrength(resp[2]),
		Satellite:   SignalStrength(resp[3]),
		Terrestrial: SignalStrength(resp[4]),
	}
	if !report.Summary.IsValid() || !report.Satellite.IsValid() || !report.Terrestrial.IsValid() {
		return SignalReport{}, ErrBadSignalValue
	}
	return report, nil
}

// SetGlobalMetadataMonitoringEnabled stores the monitoring flag and pushes
// it to the module's feature monitor. The flag sits in bit 3 of the fourth
// request byte.
func (r *Radio) SetGlobalMetadataMonitoringEnabled(enabled bool) error {
	r.mu.Lock()
	r.monitoring = enabled
	r.mu.Unlock()

	var flag byte
	if enabled {
		flag = 1 << 3
	}
	resp, err := r.sendCommand(protocol.OpSetFeatureMonitorRequest, protocol.OpSetFeatureMonitorResponse,
		[]byte{0, 0, 0, flag, 0}, r.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("set monitoring state: %w", err)
	}
	return nil
}

// GetChannelList scans the full channel range (base channel 0, ascending,
// up to 224 entries) and returns the ids in the order the module reported
// them.
func (r *Radio) GetChannelList() (ChannelList, error) {
	resp, err := r.sendCommand(protocol.OpGetChannelListRequest, protocol.OpGetChannelListResponse,
		[]byte{0 /* base channel */, 1 /* upward */, 224 /* count */, 0 /* overrides */},
		r.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get channel list: %w", err)
	}
	if len(resp) < 3 {
		return nil, ErrShortResponse
	}

	count := int(resp[2])
	if len(resp) < 3+count {
		return nil, ErrShortResponse
	}
	channels := make(ChannelList, 0, count)
	for i := 0; i < count; i++ {
		channels = append(channels, resp[3+i])
	}
	return channels, nil
}

// GetChannelDescriptor queries a single channel's descriptor: no category
// grouping, no overrides.
func (r *Radio) GetChannelDescriptor(channelID uint8) (ChannelDescriptor, error) {
	resp, err := r.sendCommand(protocol.OpGetChannelRequest, protocol.OpGetChannelResponse,
		[]byte{channelID, 0 /* direction: direct */, 0 /* use category: no */, 0 /* overrides */},
		r.cfg.CommandTimeout)
	if err != nil {
		return ChannelDescriptor{}, err
	}
	if err := checkStatus(resp); err != nil {
		return ChannelDescriptor{}, fmt.Errorf("get channel %d: %w", channelID, err)
	}
	return r.parseChannelDescriptor(resp)
}

// parseChannelDescriptor decodes channel and category ids, four
// length-prefixed strings, and the trailing metadata block. The metadata
// decoder receives the true remaining length so malformed descriptors fail
// instead of reading past the response.
func (r *Radio) parseChannelDescriptor(resp []byte) (ChannelDescriptor, error) {
	if len(resp) < 7 {
		return ChannelDescriptor{}, ErrShortResponse
	}
	desc := ChannelDescriptor{
		ChannelID:  resp[2],
		CategoryID: resp[4],
	}

	offset := 7
	for _, dst := range []*string{
		&desc.ShortName, &desc.LongName, &desc.ShortCategoryName, &desc.LongCategoryName,
	} {
		if offset >= len(resp) {
			return ChannelDescriptor{}, ErrShortResponse
		}
		length := int(resp[offset])
		offset++
		if offset+length > len(resp) {
			return ChannelDescriptor{}, ErrShortResponse
		}
		*dst = string(resp[offset : offset+length])
		offset += length
	}

	md, err := pdt.DecodeBlock(resp[offset:], r.log)
	if err != nil {
		return ChannelDescriptor{}, fmt.Errorf("channel descriptor metadata: %w", err)
	}
	desc.Metadata = md
	return desc, nil
}

func checkStatus(resp []byte) error {
	status, err := protocol.UnpackStatus(resp)
	if err != nil {
		return err
	}
	if status != protocol.StatusSuccess {
		return fmt.Errorf("%w: status %s", ErrCommandFailed, status)
	}
	return nil
}
