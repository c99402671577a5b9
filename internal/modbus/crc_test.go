package modbus

import "testing"

func TestCRC16KnownVector(t *testing.T) {
	// Read Holding Registers, unit 1, addr 0, count 1: 01 03 00 00 00 01 -> CRC 0x0A84 (84 0A on wire).
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	got := computeCRC16(frame)
	want := uint16(0x0A84)
	if got != want {
		t.Fatalf("computeCRC16 = 0x%04x, want 0x%04x", got, want)
	}
}

func TestBuildRTUFrameChecksum(t *testing.T) {
	a := adu{unit: 1, pdu: pdu{function: 0x03, data: []byte{0x00, 0x00, 0x00, 0x01}}}
	frame := buildRTUFrame(a)
	if len(frame) != 8 {
		t.Fatalf("expected 8-byte frame, got %d", len(frame))
	}
	crc := computeCRC16(frame[:len(frame)-2])
	got := getWordLE(frame, len(frame)-2)
	if crc != got {
		t.Fatalf("frame CRC mismatch: computed 0x%04x, embedded 0x%04x", crc, got)
	}
}
