// Package turbovac implements the Leybold frequency-converter telegram: a
// fixed 24-byte frame with a packed control word and an XOR checksum,
// carried over a raw serial line at 19200 8N1 (spec §4.3). There is no
// off-the-shelf wire format here, so the codec is adapted byte-for-byte
// from original_source/refrig_turbine_iface.py rather than grounded on
// any example repo's protocol package.
package turbovac

import "fmt"

// TelegramLength is the fixed size of every turbovac telegram.
const TelegramLength = 24

const (
	startByte       = 0x02
	lengthByte      = 22
	controlWordHi   = 11 // control word occupies bytes [11:13)
	payloadOffset   = 13 // bytes [13:15) hold setpoint/frequency
	freqTempByte    = 15
	bearingTempByte = 20
)

// controlWord bit positions (spec §4.3).
const (
	bitStart = 0
	bitPZD2  = 6
	bitEPD   = 10
)

// EncodeControlWord packs the three control bits into the 16-bit control
// word placed at telegram bytes [11:13).
func EncodeControlWord(startBit, pzd2, epd bool) uint16 {
	var w uint16
	if epd {
		w |= 1 << bitEPD
	}
	if startBit {
		w |= 1 << bitStart
	}
	if pzd2 {
		w |= 1 << bitPZD2
	}
	return w
}

// DecodeControlWord extracts the running and is-setpoint flags from a
// received control word.
func DecodeControlWord(word uint16) (running, isSetpoint bool) {
	running = word&(1<<bitStart) != 0
	isSetpoint = word&(1<<bitPZD2) != 0
	return
}

// EncodeParams carries the fields a caller supplies to EncodeTelegram.
// Overrides is a sparse byte-offset → value map applied after the control
// word is written, matching the Python encoder's in_bytes argument (used
// by read_temp's [3]=0x10,[4]=0x01 override and by explicit setpoints).
type EncodeParams struct {
	StartBit  bool
	PZD2      bool
	EPD       bool
	Overrides map[int]uint16 // offset -> 16-bit value, written big-endian at offset,offset+1
}

// EncodeTelegram builds a 24-byte telegram from params. Byte [0] is always
// the start byte 0x02, byte [1] the fixed length 22, bytes [11:13) the
// control word, and byte [23] the XOR checksum computed last.
func EncodeTelegram(p EncodeParams) []byte {
	tele := make([]byte, TelegramLength)
	tele[0] = startByte
	tele[1] = lengthByte

	word := EncodeControlWord(p.StartBit, p.PZD2, p.EPD)
	tele[controlWordHi] = byte(word >> 8)
	tele[controlWordHi+1] = byte(word & 0xff)

	for offset, value := range p.Overrides {
		tele[offset] = byte(value >> 8)
		tele[offset+1] = byte(value & 0xff)
	}

	tele[TelegramLength-1] = checksum(tele[:TelegramLength-1])
	return tele
}

// checksum is the XOR of every byte preceding the checksum byte.
func checksum(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

// DecodedTelegram is the structured view of a frame received from the
// turbovac.
type DecodedTelegram struct {
	Running     bool
	IsSetpoint  bool
	Setpoint    uint16 // valid when IsSetpoint
	Frequency   uint16 // valid when !IsSetpoint
	FreqTemp    uint8
	BearingTemp uint8
	ChecksumOK  bool
}

// DecodeTelegram parses a received 24-byte frame. Per spec §4.3 the
// checksum is not validated by the caller's decision logic — ChecksumOK is
// reported so the caller can log a mismatch at debug level without
// rejecting the frame (open question, resolved in DESIGN.md: accept and log).
func DecodeTelegram(frame []byte) (DecodedTelegram, error) {
	if len(frame) != TelegramLength {
		return DecodedTelegram{}, fmt.Errorf("turbovac: telegram length %d, want %d", len(frame), TelegramLength)
	}
	word := uint16(frame[controlWordHi])<<8 | uint16(frame[controlWordHi+1])
	running, isSetpoint := DecodeControlWord(word)

	d := DecodedTelegram{
		Running:     running,
		IsSetpoint:  isSetpoint,
		FreqTemp:    frame[freqTempByte],
		BearingTemp: frame[bearingTempByte],
		ChecksumOK:  checksum(frame[:TelegramLength-1]) == frame[TelegramLength-1],
	}
	payload := uint16(frame[payloadOffset])<<8 | uint16(frame[payloadOffset+1])
	if isSetpoint {
		d.Setpoint = payload
	} else {
		d.Frequency = payload
	}
	return d, nil
}
