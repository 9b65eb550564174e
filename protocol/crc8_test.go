package protocol

import "testing"

func TestCRC8CheckValue(t *testing.T) {
	// Standard CRC-8/SMBUS check value
	if got := CRC8(0, []byte("123456789")); got != 0xF4 {
		t.Errorf("CRC8 check value: expected 0xF4, got 0x%02X", got)
	}
}

func TestCRC8Incremental(t *testing.T) {
	data := []byte{0x16, 0xA7, 0x17, 0x05, 0x55, 0x55}
	whole := CRC8(0, data)
	split := CRC8(CRC8(0, data[:3]), data[3:])
	if whole != split {
		t.Errorf("incremental CRC8 mismatch: whole=0x%02X split=0x%02X", whole, split)
	}
}

func TestCRC8AppendedIsZero(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30}
	pec := CRC8(0, data)
	if got := CRC8(0, append(data, pec)); got != 0 {
		t.Errorf("packet with PEC appended should fold to 0, got 0x%02X", got)
	}
}
