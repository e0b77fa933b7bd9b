package protocol

import (
	"fmt"

	"github.com/opencontroller/padbridge/pkg/types"
)

// CRSF framing constants.
const (
	crsfSyncByte        = 0xC8
	crsfTypeRCChannels  = 0x16
	crsfTypeLinkStats   = 0x14
	crsfTypeBattery     = 0x08
	crsfChannelCount    = 16
	crsfPayloadLen      = 22 // 16 channels x 11 bits
	crsfMaxFrameLen     = 64
	crsfChannelValueMin = 172
	crsfChannelValueMid = 992
	crsfChannelValueMax = 1811
)

// usToTicks converts a pulse width in microseconds to the 11-bit CRSF
// channel value: 988µs maps to 172, 1500µs to 992, 2012µs to 1811.
func usToTicks(us uint16) uint16 {
	if us < 988 {
		us = 988
	}
	if us > 2012 {
		us = 2012
	}
	v := (uint32(us)-988)*(crsfChannelValueMax-crsfChannelValueMin)/1024 + crsfChannelValueMin
	return uint16(v)
}

// encodeChannels packs a channel frame into a complete RC channels frame:
// sync, length, type, 22 bytes of little-endian 11-bit channels, CRC.
// Channels beyond the mapped twelve sit at the CRSF midpoint.
func encodeChannels(frame types.ChannelFrame) []byte {
	var ticks [crsfChannelCount]uint16
	for i := range ticks {
		ticks[i] = crsfChannelValueMid
	}
	for i, us := range frame {
		ticks[i] = usToTicks(us)
	}

	payload := make([]byte, crsfPayloadLen)
	bit := 0
	for _, v := range ticks {
		v &= 0x07FF
		for i := 0; i < 11; i++ {
			if v&(1<<i) != 0 {
				payload[bit/8] |= 1 << (bit % 8)
			}
			bit++
		}
	}

	out := make([]byte, 0, crsfPayloadLen+4)
	out = append(out, crsfSyncByte, byte(crsfPayloadLen+2), crsfTypeRCChannels)
	out = append(out, payload...)
	out = append(out, crc8DVBS2(out[2:]))
	return out
}

// decodeChannels unpacks an RC channels payload back into pulse widths.
// Used by tests and by the loopback link check.
func decodeChannels(payload []byte) (types.ChannelFrame, error) {
	var frame types.ChannelFrame
	if len(payload) != crsfPayloadLen {
		return frame, fmt.Errorf("rc channels payload is %d bytes, want %d", len(payload), crsfPayloadLen)
	}
	bit := 0
	for i := 0; i < crsfChannelCount; i++ {
		var v uint16
		for j := 0; j < 11; j++ {
			if payload[bit/8]&(1<<(bit%8)) != 0 {
				v |= 1 << j
			}
			bit++
		}
		if i < types.NumChannels {
			frame[i] = ticksToUs(v)
		}
	}
	return frame, nil
}

func ticksToUs(ticks uint16) uint16 {
	if ticks < crsfChannelValueMin {
		ticks = crsfChannelValueMin
	}
	if ticks > crsfChannelValueMax {
		ticks = crsfChannelValueMax
	}
	return uint16(uint32(ticks-crsfChannelValueMin)*1024/(crsfChannelValueMax-crsfChannelValueMin) + 988)
}

// crc8DVBS2 is the CRC-8/DVB-S2 used by CRSF, computed over the type and
// payload bytes.
func crc8DVBS2(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0xD5
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// frameReader incrementally extracts CRSF frames from a byte stream,
// resynchronizing on the sync byte after garbage or partial reads.
type frameReader struct {
	buf []byte
}

// push appends raw bytes and returns any complete, CRC-valid frames as
// (type, payload) pairs.
func (r *frameReader) push(data []byte) [][]byte {
	r.buf = append(r.buf, data...)
	var frames [][]byte
	for {
		// Seek sync.
		for len(r.buf) > 0 && r.buf[0] != crsfSyncByte {
			r.buf = r.buf[1:]
		}
		if len(r.buf) < 2 {
			return frames
		}
		length := int(r.buf[1])
		if length < 2 || length > crsfMaxFrameLen {
			r.buf = r.buf[1:]
			continue
		}
		total := 2 + length
		if len(r.buf) < total {
			return frames
		}
		frame := r.buf[:total]
		body := frame[2 : total-1]
		if crc8DVBS2(body) != frame[total-1] {
			r.buf = r.buf[1:]
			continue
		}
		out := make([]byte, len(body))
		copy(out, body)
		frames = append(frames, out)
		r.buf = r.buf[total:]
	}
}
