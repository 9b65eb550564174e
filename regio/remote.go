package regio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"smbmux/logging"
	"smbmux/protocol"
)

// DefaultRemoteTimeout bounds one register exchange over the link
const DefaultRemoteTimeout = time.Second

// Remote reaches a register window served by a Bridge on the other end
// of a byte stream. It implements Bus, ConfigSpace and Interrupt.
type Remote struct {
	t       *protocol.HostTransport
	log     *logging.Logger
	timeout time.Duration

	// mu keeps each request paired with its response
	mu sync.Mutex

	handlerMu sync.Mutex
	handler   func()

	kick chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRemote starts a host transport on port
func NewRemote(port io.ReadWriteCloser, log *logging.Logger) *Remote {
	r := &Remote{
		t:       protocol.NewHostTransport(port),
		log:     log,
		timeout: DefaultRemoteTimeout,
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.t.SetResponseHandler(r.onResponse)
	go r.irqLoop()
	return r
}

// SetTimeout changes the per-exchange timeout
func (r *Remote) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// onResponse runs on the transport reader; interrupt events are handed to
// irqLoop because the handler itself needs the reader to make progress.
func (r *Remote) onResponse(cmdID uint16, data *[]byte) bool {
	if cmdID != protocol.CmdIRQ {
		return false
	}
	select {
	case r.kick <- struct{}{}:
	default:
	}
	return true
}

func (r *Remote) irqLoop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		case <-r.kick:
		}
		r.handlerMu.Lock()
		h := r.handler
		r.handlerMu.Unlock()
		if h != nil {
			h()
		}
		// the bridge holds its line until we report the handler finished
		if err := r.send(protocol.CmdIRQDone); err != nil {
			r.log.Errorf("remote: irq done: %v", err)
		}
	}
}

func (r *Remote) send(cmdID uint16, args ...uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t.SendCommandWithTimeout(cmdID, func(out protocol.OutputBuffer) {
		protocol.EncodeArgs(out, args...)
	}, r.timeout)
}

// query sends req with key and waits for a resp message echoing key
func (r *Remote) query(req, resp uint16, key uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.t.SendCommandWithTimeout(req, func(out protocol.OutputBuffer) {
		protocol.EncodeArgs(out, key)
	}, r.timeout)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(r.timeout)
	for {
		msg, err := r.t.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return 0, err
		}
		payload := msg.Payload
		vals, err := protocol.DecodeArgs(&payload, 3)
		if err != nil || uint16(vals[0]) != resp || vals[1] != key {
			// late answer to an earlier, timed out query
			continue
		}
		return vals[2], nil
	}
}

func (r *Remote) In8(port uint16) uint8 {
	v, err := r.query(protocol.CmdRegRead, protocol.CmdRegValue, uint32(port))
	if err != nil {
		r.log.Errorf("remote: in8 0x%04x: %v", port, err)
		return 0xFF
	}
	return uint8(v)
}

func (r *Remote) Out8(port uint16, v uint8) {
	if err := r.send(protocol.CmdRegWrite, uint32(port), uint32(v)); err != nil {
		r.log.Errorf("remote: out8 0x%04x: %v", port, err)
	}
}

func (r *Remote) ReadConfig8(offset uint8) uint8 {
	v, err := r.query(protocol.CmdCfgRead, protocol.CmdCfgValue, uint32(offset))
	if err != nil {
		r.log.Errorf("remote: config read 0x%02x: %v", offset, err)
		return 0xFF
	}
	return uint8(v)
}

func (r *Remote) WriteConfig8(offset uint8, v uint8) {
	if err := r.send(protocol.CmdCfgWrite, uint32(offset), uint32(v)); err != nil {
		r.log.Errorf("remote: config write 0x%02x: %v", offset, err)
	}
}

// Enable asks the bridge to forward its interrupt line
func (r *Remote) Enable(handler func()) error {
	r.handlerMu.Lock()
	r.handler = handler
	r.handlerMu.Unlock()
	if err := r.send(protocol.CmdIRQEnable, 1); err != nil {
		r.handlerMu.Lock()
		r.handler = nil
		r.handlerMu.Unlock()
		return fmt.Errorf("remote: enable interrupt: %w", err)
	}
	return nil
}

func (r *Remote) Disable() {
	if err := r.send(protocol.CmdIRQEnable, 0); err != nil {
		r.log.Errorf("remote: disable interrupt: %v", err)
	}
	r.handlerMu.Lock()
	r.handler = nil
	r.handlerMu.Unlock()
}

// Close shuts down the link
func (r *Remote) Close() error {
	var err error
	r.once.Do(func() {
		close(r.quit)
		err = r.t.Close()
		<-r.done
	})
	return err
}
