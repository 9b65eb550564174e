package protocol

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
)

// Message is one decoded frame. Payload aliases the receive buffer and is
// only valid until the callback that received it returns.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// framer tracks sync state while splitting a byte stream into frames
type framer struct {
	synced bool
	// accept can reject an otherwise valid frame, forcing a resync
	accept func(m *Message) bool
	// onFrame receives each accepted frame
	onFrame func(m *Message)
	// onResync is called whenever sync is regained
	onResync func()
}

// split consumes as many complete frames from data as possible and
// returns the number of bytes used. Partial frames are left in place.
func (f *framer) split(data []byte) int {
	total := len(data)
	for len(data) > 0 {
		if !f.synced {
			i := 0
			for i < len(data) && data[i] != MessageValueSync {
				i++
			}
			if i == len(data) {
				data = nil
				break
			}
			data = data[i+1:]
			f.synced = true
			if f.onResync != nil {
				f.onResync()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}
		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			f.synced = false
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			f.synced = false
			continue
		}
		crc := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
		if crc != CRC16(data[:msgLen-MessageTrailerSize]) {
			f.synced = false
			continue
		}
		m := Message{
			Length:   uint8(msgLen),
			Sequence: data[MessagePositionSeq],
			Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
			CRC:      crc,
		}
		if f.accept != nil && !f.accept(&m) {
			f.synced = false
			continue
		}
		data = data[msgLen:]
		f.onFrame(&m)
	}
	return total - len(data)
}

// appendFrame builds a complete frame around payload
func appendFrame(dst []byte, seq uint8, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, uint8(MessageHeaderSize+len(payload)+MessageTrailerSize), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync)
}

func nextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
