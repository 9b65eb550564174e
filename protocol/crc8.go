package protocol

// crc8Poly is x^8 + x^2 + x + 1, the SMBus packet error code polynomial
const crc8Poly = 0x07

// CRC8 folds data into crc using the SMBus PEC polynomial. Start a new
// packet with crc = 0; the address byte (addr<<1 | rw) is part of the data.
func CRC8(crc uint8, data []byte) uint8 {
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crc8Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
