package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// ErrTransportClosed is returned once Close has been called
var ErrTransportClosed = errors.New("transport stopped")

// ResponseHandler sees every response frame as it arrives. Returning true
// consumes the frame; otherwise it is queued for ReceiveResponse.
type ResponseHandler func(cmdID uint16, data *[]byte) bool

// HostTransport is the initiating end of the link: it sends commands,
// waits for their acks and collects responses.
type HostTransport struct {
	port io.ReadWriteCloser

	seqMu      sync.Mutex
	currentSeq uint8

	readMu      sync.Mutex
	f           framer
	inputBuffer *FifoBuffer

	ackChan      chan Message
	responseChan chan Message

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	writeMutex sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport creates a host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(512),
		ackChan:      make(chan Message, 1),
		responseChan: make(chan Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.f = framer{synced: true, onFrame: t.dispatchMessage}

	go t.readLoop()
	return t
}

// SendCommand sends a command and waits for its ack
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends a command with a custom ack timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	msg, err := t.buildCommandMessage(cmdID, args)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}
	if err := t.writeMessage(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := t.waitForAck(timeout); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (t *HostTransport) buildCommandMessage(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	payload := scratch.Result()

	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", msgLen, MessageLengthMax)
	}
	return appendFrame(make([]byte, 0, msgLen), t.currentSeq, payload), nil
}

func (t *HostTransport) writeMessage(msg []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// waitForAck expects an ack carrying the sequence after the one just sent.
// Stale acks from earlier exchanges are skipped.
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	want := nextSequence(t.currentSeq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != want {
				continue
			}
			t.currentSeq = want
			return nil
		case <-timer.C:
			return fmt.Errorf("timeout after %v", timeout)
		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse returns the next queued response
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler installs a callback run on the reader goroutine for
// every response. It must not block on this transport.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.readMu.Lock()
			t.inputBuffer.Write(buffer[:n])
			if used := t.f.split(t.inputBuffer.Data()); used > 0 {
				t.inputBuffer.Pop(used)
			}
			t.readMu.Unlock()
		}
		if err != nil {
			// Serial ports report io.EOF on read timeout, so only a
			// closed port ends the loop.
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return
			}
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func (t *HostTransport) dispatchMessage(m *Message) {
	msg := *m
	msg.Payload = append([]byte(nil), m.Payload...)

	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
			// drop the stale ack so the newest one is kept
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		payload := msg.Payload
		if cmdID, err := DecodeVLQUint(&payload); err == nil && handler(uint16(cmdID), &payload) {
			return
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			// closing the port unblocks a pending Read
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset drops queued acks, responses and partial input
func (t *HostTransport) Reset() {
	t.seqMu.Lock()
	t.currentSeq = MessageDest
	t.seqMu.Unlock()

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}

	t.readMu.Lock()
	t.f.synced = true
	t.inputBuffer.Reset()
	t.readMu.Unlock()
}

// GetCurrentSequence returns the sequence of the next command
func (t *HostTransport) GetCurrentSequence() uint8 {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()
	return t.currentSeq
}
