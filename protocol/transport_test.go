package protocol

import (
	"net"
	"sync"
	"testing"
	"time"
)

// serveFrames runs a responding Transport on conn until it is closed
func serveFrames(conn net.Conn, handler func(tr *Transport, cmdID uint16, data *[]byte) error) *sync.Mutex {
	var mu sync.Mutex
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(cmdID uint16, data *[]byte) error {
		return handler(tr, cmdID, data)
	})
	flush := func() {
		if res := out.Result(); len(res) > 0 {
			pkt := append([]byte(nil), res...)
			out.Reset()
			conn.Write(pkt)
		}
	}

	go func() {
		fifo := NewFifoBuffer(512)
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			mu.Lock()
			fifo.Write(buf[:n])
			tr.Receive(fifo)
			flush()
			mu.Unlock()
		}
	}()
	return &mu
}

func echoRegisters(tr *Transport, cmdID uint16, data *[]byte) error {
	switch cmdID {
	case CmdRegRead:
		args, err := DecodeArgs(data, 1)
		if err != nil {
			return err
		}
		tr.SendCommand(CmdRegValue, func(out OutputBuffer) {
			EncodeArgs(out, args[0], args[0]&0xFF)
		})
	case CmdRegWrite:
		_, err := DecodeArgs(data, 2)
		return err
	}
	return nil
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()
	serveFrames(devEnd, echoRegisters)

	host := NewHostTransport(hostEnd)
	defer host.Close()

	for i := 0; i < 20; i++ {
		port := uint32(0xF000 + i)
		err := host.SendCommand(CmdRegRead, func(out OutputBuffer) { EncodeArgs(out, port) })
		if err != nil {
			t.Fatalf("exchange %d: %v", i, err)
		}
		resp, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("exchange %d: %v", i, err)
		}
		payload := resp.Payload
		vals, err := DecodeArgs(&payload, 3)
		if err != nil {
			t.Fatalf("exchange %d: decode: %v", i, err)
		}
		if uint16(vals[0]) != CmdRegValue || vals[1] != port || vals[2] != port&0xFF {
			t.Errorf("exchange %d: unexpected response %v", i, vals)
		}
	}

	// Sixteen sequence numbers wrap back into the 0x10-0x1F window
	if seq := host.GetCurrentSequence(); seq&^MessageSeqMask != MessageDest {
		t.Errorf("sequence left the host window: 0x%02X", seq)
	}
}

func TestHostTransportHandlerConsumesEvents(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	events := make(chan struct{}, 4)
	host.SetResponseHandler(func(cmdID uint16, data *[]byte) bool {
		if cmdID == CmdIRQ {
			events <- struct{}{}
			return true
		}
		return false
	})

	// Unsolicited event frame followed by an ordinary response
	var frame []byte
	frame = appendFrame(frame, MessageDest, []byte{byte(CmdIRQ)})
	frame = appendFrame(frame, MessageDest, []byte{byte(CmdCfgValue), 0x40, 0x01})
	go devEnd.Write(frame)

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("event frame was not delivered to the handler")
	}

	resp, err := host.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatalf("ReceiveResponse: %v", err)
	}
	if resp.Payload[0] != byte(CmdCfgValue) {
		t.Errorf("expected the cfg value response, got payload %v", resp.Payload)
	}
}

func TestTransportResyncsAfterGarbage(t *testing.T) {
	out := NewScratchOutput()
	var got []uint32
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		args, err := DecodeArgs(data, 2)
		if err == nil {
			got = append(got, uint32(cmdID), args[0], args[1])
		}
		return err
	})

	payload := NewScratchOutput()
	EncodeArgs(payload, uint32(CmdRegWrite), 0x10, 0x55)
	good := appendFrame(nil, MessageDest, payload.Result())

	corrupt := append([]byte(nil), good...)
	corrupt[3] ^= 0xFF // break the CRC

	stream := append(append([]byte{0x01, 0x02}, corrupt...), good...)
	in := NewSliceInputBuffer(stream)
	tr.Receive(in)

	if len(got) != 3 || got[0] != uint32(CmdRegWrite) || got[1] != 0x10 || got[2] != 0x55 {
		t.Errorf("expected the good frame to be dispatched once, got %v", got)
	}
	if in.Available() != 0 {
		t.Errorf("expected the stream to be fully consumed, %d bytes left", in.Available())
	}
	if out.CurPosition() == 0 {
		t.Error("expected at least one ack to be queued")
	}
}
