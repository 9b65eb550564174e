package protocol

// CommandHandler handles one decoded command. data is positioned after the
// command ID and must be advanced past the command's arguments.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the responding end of the link. It validates incoming
// frames, dispatches their commands in sequence order and acknowledges
// every frame with the next expected sequence number.
//
// Transport is not safe for concurrent use; callers serialize Receive and
// SendCommand.
type Transport struct {
	f       framer
	nextSeq uint8
	output  OutputBuffer
	handler CommandHandler
}

// NewTransport creates a Transport writing frames to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
	t.f = framer{
		synced: true,
		accept: func(m *Message) bool {
			return m.Sequence&^MessageSeqMask == MessageDest
		},
		onFrame:  t.handleFrame,
		onResync: t.encodeAckNak,
	}
	return t
}

// Receive processes all complete frames available in input
func (t *Transport) Receive(input InputBuffer) {
	if n := t.f.split(input.Data()); n > 0 {
		input.Pop(n)
	}
}

func (t *Transport) handleFrame(m *Message) {
	// A sender restarting at the base sequence resets our state
	if m.Sequence == MessageDest {
		t.nextSeq = MessageDest
	}
	if m.Sequence == t.nextSeq {
		t.nextSeq = nextSequence(m.Sequence)
		_ = t.parseFrame(m.Payload)
	}
	// Out of sequence frames still get an ack; it doubles as a NAK
	// carrying the expected sequence.
	t.encodeAckNak()
}

func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.f.synced = false
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.f.synced = false
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) encodeAckNak() {
	t.output.Output(appendFrame(nil, t.nextSeq, nil))
}

// EncodeFrame writes one frame whose payload is produced by frameData
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	t.output.Output([]byte{0, t.nextSeq})
	frameData(t.output)

	n := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(n+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand encodes cmdID followed by its arguments as one frame
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}
