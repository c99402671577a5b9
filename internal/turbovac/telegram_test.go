package turbovac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTelegramLengthAndChecksum(t *testing.T) {
	frames := [][]byte{
		EncodeTelegram(EncodeParams{}),
		EncodeTelegram(EncodeParams{StartBit: true, PZD2: true, EPD: true, Overrides: map[int]uint16{payloadOffset: 800}}),
		EncodeTelegram(EncodeParams{EPD: false}),
	}
	for _, frame := range frames {
		require.Len(t, frame, TelegramLength)
		assert.Equal(t, checksum(frame[:TelegramLength-1]), frame[TelegramLength-1])
	}
}

func TestEncodeTelegramStartScenario(t *testing.T) {
	// spec §8 scenario 4: start with stored setpoint 800Hz.
	frame := EncodeTelegram(EncodeParams{StartBit: true, PZD2: true, EPD: true, Overrides: map[int]uint16{payloadOffset: 800}})
	assert.Equal(t, byte(0x02), frame[0])
	assert.Equal(t, byte(0x16), frame[1])
	word := uint16(frame[controlWordHi])<<8 | uint16(frame[controlWordHi+1])
	assert.Equal(t, uint16(0x0441), word)
	assert.Equal(t, uint16(0x0320), uint16(frame[payloadOffset])<<8|uint16(frame[payloadOffset+1]))
}

func TestEncodeTelegramStopScenario(t *testing.T) {
	first := EncodeTelegram(EncodeParams{StartBit: false, PZD2: false, EPD: true, Overrides: map[int]uint16{payloadOffset: 0}})
	second := EncodeTelegram(EncodeParams{StartBit: false, PZD2: false, EPD: false, Overrides: map[int]uint16{payloadOffset: 0}})

	w1 := uint16(first[controlWordHi])<<8 | uint16(first[controlWordHi+1])
	w2 := uint16(second[controlWordHi])<<8 | uint16(second[controlWordHi+1])
	assert.Equal(t, uint16(0x0400), w1)
	assert.Equal(t, uint16(0x0000), w2)
}

func TestTelegramRoundTrip(t *testing.T) {
	cases := []EncodeParams{
		{StartBit: true, PZD2: true, EPD: true, Overrides: map[int]uint16{payloadOffset: 800}},
		{StartBit: false, PZD2: false, EPD: true, Overrides: map[int]uint16{payloadOffset: 0}},
		{StartBit: true, PZD2: false, EPD: true},
	}
	for _, p := range cases {
		frame := EncodeTelegram(p)
		d, err := DecodeTelegram(frame)
		require.NoError(t, err)
		assert.True(t, d.ChecksumOK)
		assert.Equal(t, p.StartBit, d.Running)
		assert.Equal(t, p.PZD2, d.IsSetpoint)
		if p.PZD2 {
			assert.Equal(t, p.Overrides[payloadOffset], d.Setpoint)
		}
	}
}

func TestDecodeTelegramWrongLength(t *testing.T) {
	_, err := DecodeTelegram(make([]byte, 10))
	require.Error(t, err)
}

func TestDecodeTelegramChecksumMismatchNotRejected(t *testing.T) {
	frame := EncodeTelegram(EncodeParams{StartBit: true, PZD2: true, EPD: true, Overrides: map[int]uint16{payloadOffset: 500}})
	frame[TelegramLength-1] ^= 0xFF // corrupt the checksum
	d, err := DecodeTelegram(frame)
	require.NoError(t, err)
	assert.False(t, d.ChecksumOK)
	assert.True(t, d.Running)
}
