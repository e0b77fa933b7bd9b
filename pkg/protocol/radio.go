package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencontroller/padbridge/pkg/types"
)

// Telemetry is one frame received back over the radio link.
type Telemetry struct {
	Type    byte
	Payload []byte
	At      time.Time
}

// LinkStats is the decoded uplink portion of a link statistics frame.
type LinkStats struct {
	RSSI        int
	LinkQuality int
	SNR         int
}

// DecodeLinkStats extracts uplink statistics from a link statistics
// telemetry frame.
func DecodeLinkStats(t Telemetry) (LinkStats, error) {
	if t.Type != crsfTypeLinkStats {
		return LinkStats{}, fmt.Errorf("telemetry type 0x%02x is not link statistics", t.Type)
	}
	if len(t.Payload) < 10 {
		return LinkStats{}, fmt.Errorf("link statistics payload too short: %d bytes", len(t.Payload))
	}
	return LinkStats{
		RSSI:        -int(t.Payload[0]),
		LinkQuality: int(t.Payload[2]),
		SNR:         int(int8(t.Payload[3])),
	}, nil
}

// Link is a byte-oriented radio link, typically a serial port.
type Link interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// LinkDialer opens a Link. It must honor context cancellation.
type LinkDialer func(ctx context.Context) (Link, error)

// RadioHandler is the radio-facing handler specialization: channel frames
// out, telemetry frames in.
type RadioHandler = Handler[types.ChannelFrame, Telemetry]

// NewRadioHandler builds a handler over a radio link transport.
func NewRadioHandler(dial LinkDialer, policy RetryPolicy) *RadioHandler {
	return New[types.ChannelFrame, Telemetry]("radio", &radioTransport{dial: dial}, policy)
}

type radioTransport struct {
	dial LinkDialer
}

func (t *radioTransport) Dial(ctx context.Context) (Session[types.ChannelFrame, Telemetry], error) {
	link, err := t.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("radio link: %w", err)
	}
	sess := &radioSession{
		link:    link,
		inbound: make(chan Telemetry, 16),
	}
	go sess.readLoop()
	return sess, nil
}

type radioSession struct {
	link    Link
	inbound chan Telemetry
	once    sync.Once
}

func (s *radioSession) Send(frame types.ChannelFrame) error {
	if _, err := s.link.Write(encodeChannels(frame)); err != nil {
		return fmt.Errorf("radio write: %w", err)
	}
	return nil
}

func (s *radioSession) Inbound() <-chan Telemetry {
	return s.inbound
}

func (s *radioSession) Close() error {
	err := s.link.Close()
	// readLoop closes inbound when the link read fails.
	return err
}

func (s *radioSession) closeInbound() {
	s.once.Do(func() { close(s.inbound) })
}

// readLoop extracts telemetry frames from the link until it fails, then
// signals connection loss by closing the inbound channel.
func (s *radioSession) readLoop() {
	defer s.closeInbound()
	var reader frameReader
	buf := make([]byte, 256)
	for {
		n, err := s.link.Read(buf)
		if err != nil {
			return
		}
		for _, body := range reader.push(buf[:n]) {
			t := Telemetry{Type: body[0], At: time.Now()}
			if len(body) > 1 {
				t.Payload = append([]byte(nil), body[1:]...)
			}
			select {
			case s.inbound <- t:
			default:
			}
		}
	}
}
