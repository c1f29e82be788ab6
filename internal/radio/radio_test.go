package radio

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/radioctl/internal/protocol"
	"github.com/danmuck/radioctl/internal/protocol/pdt"
)

var okStatus = []byte{0x00, 0x01}

type sentFrame struct {
	op   protocol.OpCode
	body []byte
}

// fakeSender records outgoing requests and, when a responder is installed,
// delivers the scripted response from a separate goroutine the way the
// receive loop would.
type fakeSender struct {
	r       *Radio
	respond func(op protocol.OpCode, body []byte) (protocol.OpCode, []byte, bool)

	mu   sync.Mutex
	sent []sentFrame
}

func (s *fakeSender) SendMessageFrame(op protocol.OpCode, body []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentFrame{op: op, body: append([]byte(nil), body...)})
	s.mu.Unlock()

	if s.respond != nil {
		if respOp, payload, ok := s.respond(op, body); ok {
			go s.r.OnFrameReceived(respOp, payload)
		}
	}
	return nil
}

func (s *fakeSender) lastSent(t *testing.T) sentFrame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

func newTestRadio(respond func(op protocol.OpCode, body []byte) (protocol.OpCode, []byte, bool)) (*Radio, *fakeSender) {
	s := &fakeSender{respond: respond}
	r := &Radio{
		sender: s,
		log:    zerolog.Nop(),
		cfg: Config{
			CommandTimeout: 250 * time.Millisecond,
			ReadyTimeout:   time.Second,
		},
	}
	s.r = r
	return r, s
}

// respondWith answers every request with the same response frame.
func respondWith(respOp protocol.OpCode, payload []byte) func(protocol.OpCode, []byte) (protocol.OpCode, []byte, bool) {
	return func(protocol.OpCode, []byte) (protocol.OpCode, []byte, bool) {
		return respOp, payload, true
	}
}

// deliverWhenAwaiting spins until the radio is waiting on op, then delivers
// the payload as the receive loop would.
func deliverWhenAwaiting(t *testing.T, r *Radio, op protocol.OpCode, payload []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		awaiting := r.pending != nil && r.pending.op == op
		r.mu.Unlock()
		if awaiting {
			r.OnFrameReceived(op, payload)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("radio never awaited %s", op)
}

func TestSetChannelEncodesRequest(t *testing.T) {
	r, s := newTestRadio(respondWith(protocol.OpSetChannelResponse, okStatus))

	require.NoError(t, r.SetChannel(5))
	sent := s.lastSent(t)
	require.Equal(t, protocol.OpSetChannelRequest, sent.op)
	require.Equal(t, protocol.OpCode(0x000A), sent.op)
	require.Equal(t, []byte{5, 0, 0, 0}, sent.body)
}

func TestSetChannelFailureStatus(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpSetChannelResponse, []byte{0x00, 0x00}))
	require.ErrorIs(t, r.SetChannel(5), ErrCommandFailed)
}

func TestSendCommandTimeoutLeavesNoPending(t *testing.T) {
	r, _ := newTestRadio(nil)

	start := time.Now()
	err := r.SetChannel(5)
	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, elapsed, r.cfg.CommandTimeout)

	r.mu.Lock()
	pending := r.pending
	r.mu.Unlock()
	require.Nil(t, pending)

	// A response arriving after the timeout must not be misdelivered.
	r.OnFrameReceived(protocol.OpSetChannelResponse, okStatus)
}

func TestResetRetriesUntilReady(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpSetResetResponse, okStatus))

	go func() {
		deliverWhenAwaiting(t, r, protocol.OpPutModuleReady, []byte{2})
		deliverWhenAwaiting(t, r, protocol.OpPutModuleReady, []byte{1})
		deliverWhenAwaiting(t, r, protocol.OpPutModuleReady, []byte{0})
	}()

	require.NoError(t, r.Reset())
}

func TestResetFailsWhenReadyNeverAnnounced(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpSetResetResponse, okStatus))
	r.cfg.ReadyTimeout = 50 * time.Millisecond
	require.ErrorIs(t, r.Reset(), ErrTimeout)
}

func TestSetPowerModeEncodesState(t *testing.T) {
	r, s := newTestRadio(respondWith(protocol.OpSetPowerModeResponse, okStatus))

	require.NoError(t, r.SetPowerMode(PowerFull))
	sent := s.lastSent(t)
	require.Equal(t, protocol.OpSetPowerModeRequest, sent.op)
	require.Equal(t, []byte{byte(PowerFull)}, sent.body)
}

func TestGetSignalStrength(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpGetSignalResponse, []byte{0x00, 0x01, 2, 3, 1}))

	report, err := r.GetSignalStrength()
	require.NoError(t, err)
	require.Equal(t, SignalGood, report.Summary)
	require.Equal(t, SignalExcellent, report.Satellite)
	require.Equal(t, SignalWeak, report.Terrestrial)
}

func TestGetSignalStrengthRejectsOutOfRange(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpGetSignalResponse, []byte{0x00, 0x01, 4, 0, 0}))
	_, err := r.GetSignalStrength()
	require.ErrorIs(t, err, ErrBadSignalValue)
}

func TestGetSignalStrengthShortResponse(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpGetSignalResponse, []byte{0x00, 0x01, 2}))
	_, err := r.GetSignalStrength()
	require.ErrorIs(t, err, ErrShortResponse)
}

func TestSetMonitoringEncodesFlagBit(t *testing.T) {
	r, s := newTestRadio(respondWith(protocol.OpSetFeatureMonitorResponse, okStatus))

	require.NoError(t, r.SetGlobalMetadataMonitoringEnabled(true))
	require.Equal(t, []byte{0, 0, 0, 1 << 3, 0}, s.lastSent(t).body)

	require.NoError(t, r.SetGlobalMetadataMonitoringEnabled(false))
	require.Equal(t, []byte{0, 0, 0, 0, 0}, s.lastSent(t).body)
}

func TestGetChannelList(t *testing.T) {
	r, s := newTestRadio(respondWith(protocol.OpGetChannelListResponse,
		[]byte{0x00, 0x01, 3, 5, 9, 12}))

	channels, err := r.GetChannelList()
	require.NoError(t, err)
	require.Equal(t, ChannelList{5, 9, 12}, channels)

	sent := s.lastSent(t)
	require.Equal(t, protocol.OpGetChannelListRequest, sent.op)
	require.Equal(t, []byte{0, 1, 224, 0}, sent.body)
}

func TestGetChannelListTruncatedCount(t *testing.T) {
	r, _ := newTestRadio(respondWith(protocol.OpGetChannelListResponse,
		[]byte{0x00, 0x01, 5, 1, 2}))
	_, err := r.GetChannelList()
	require.ErrorIs(t, err, ErrShortResponse)
}

func descriptorResponse() []byte {
	resp := []byte{0x00, 0x01, 51, 0, 7, 0, 0}
	for _, s := range []string{"ALT", "Alt Nation", "RCK", "Rock"} {
		resp = append(resp, byte(len(s)))
		resp = append(resp, s...)
	}
	resp = append(resp, 1, pdt.TypeArtist, 4)
	resp = append(resp, "Muse"...)
	return resp
}

func TestGetChannelDescriptor(t *testing.T) {
	r, s := newTestRadio(respondWith(protocol.OpGetChannelResponse, descriptorResponse()))

	desc, err := r.GetChannelDescriptor(51)
	require.NoError(t, err)
	require.Equal(t, uint8(51), desc.ChannelID)
	require.Equal(t, uint8(7), desc.CategoryID)
	require.Equal(t, "ALT", desc.ShortName)
	require.Equal(t, "Alt Nation", desc.LongName)
	require.Equal(t, "RCK", desc.ShortCategoryName)
	require.Equal(t, "Rock", desc.LongCategoryName)
	require.NotNil(t, desc.Metadata.Artist)
	require.Equal(t, "Muse", *desc.Metadata.Artist)

	sent := s.lastSent(t)
	require.Equal(t, protocol.OpGetChannelRequest, sent.op)
	require.Equal(t, []byte{51, 0, 0, 0}, sent.body)
}

func TestGetChannelDescriptorTruncatedString(t *testing.T) {
	resp := descriptorResponse()
	resp = resp[:10] // cut inside the first name
	r, _ := newTestRadio(respondWith(protocol.OpGetChannelResponse, resp))
	_, err := r.GetChannelDescriptor(51)
	require.ErrorIs(t, err, ErrShortResponse)
}

func TestGetChannelDescriptorTruncatedMetadata(t *testing.T) {
	resp := descriptorResponse()
	resp = resp[:len(resp)-2] // cut inside the metadata value
	r, _ := newTestRadio(respondWith(protocol.OpGetChannelResponse, resp))
	_, err := r.GetChannelDescriptor(51)
	require.ErrorIs(t, err, pdt.ErrShortPacket)
}

func metadataEvent(channelID uint8) []byte {
	event := []byte{channelID, 1, pdt.TypeTitle, 8}
	return append(event, "Uprising"...)
}

func TestMetadataEventDeliveredWhileMonitoring(t *testing.T) {
	r, _ := newTestRadio(nil)

	type sinkCall struct {
		channelID uint8
		md        pdt.Metadata
	}
	calls := make(chan sinkCall, 1)
	r.sink = EventSinkFunc(func(channelID uint8, md pdt.Metadata) {
		calls <- sinkCall{channelID: channelID, md: md}
	})

	r.mu.Lock()
	r.monitoring = true
	r.mu.Unlock()

	r.OnFrameReceived(protocol.OpPutPdtEvent, metadataEvent(42))
	select {
	case got := <-calls:
		require.Equal(t, uint8(42), got.channelID)
		require.NotNil(t, got.md.Title)
		require.Equal(t, "Uprising", *got.md.Title)
	case <-time.After(time.Second):
		t.Fatal("event sink was not invoked")
	}
}

func TestMetadataEventDroppedWhileNotMonitoring(t *testing.T) {
	r, _ := newTestRadio(nil)
	invoked := false
	r.sink = EventSinkFunc(func(uint8, pdt.Metadata) { invoked = true })

	r.OnFrameReceived(protocol.OpPutPdtEvent, metadataEvent(42))
	require.False(t, invoked)
}

func TestMalformedMetadataEventDropped(t *testing.T) {
	r, _ := newTestRadio(nil)
	invoked := false
	r.sink = EventSinkFunc(func(uint8, pdt.Metadata) { invoked = true })

	r.mu.Lock()
	r.monitoring = true
	r.mu.Unlock()

	r.OnFrameReceived(protocol.OpPutPdtEvent, []byte{42, 3, pdt.TypeTitle, 200})
	require.False(t, invoked)
}

func TestWaitPutTimesOut(t *testing.T) {
	r, _ := newTestRadio(nil)
	_, err := r.WaitPut(protocol.OpPutModuleReady, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}
