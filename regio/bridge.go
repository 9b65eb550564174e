package regio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"smbmux/logging"
	"smbmux/protocol"
)

// irqAckTimeout bounds how long the bridge holds its line waiting for the
// remote handler to finish
const irqAckTimeout = time.Second

// Bridge serves a local register window to a Remote on the other end of
// port.
type Bridge struct {
	port io.ReadWriteCloser
	bus  Bus
	cfg  ConfigSpace
	line Interrupt
	log  *logging.Logger

	// mu guards the transport and its output buffer
	mu  sync.Mutex
	out *protocol.ScratchOutput
	tr  *protocol.Transport

	irqDone chan struct{}
}

// NewBridge creates a bridge; line may be nil
func NewBridge(port io.ReadWriteCloser, bus Bus, cfg ConfigSpace, line Interrupt, log *logging.Logger) *Bridge {
	if line == nil {
		line = NoInterrupt{}
	}
	b := &Bridge{
		port:    port,
		bus:     bus,
		cfg:     cfg,
		line:    line,
		log:     log,
		out:     protocol.NewScratchOutput(),
		irqDone: make(chan struct{}, 1),
	}
	b.tr = protocol.NewTransport(b.out, b.handle)
	return b
}

// Serve processes requests until ctx is cancelled or the port is closed
func (b *Bridge) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { b.port.Close() })
	defer stop()
	defer b.line.Disable()

	fifo := protocol.NewFifoBuffer(512)
	buf := make([]byte, 256)
	for {
		n, err := b.port.Read(buf)
		if n > 0 {
			b.mu.Lock()
			fifo.Write(buf[:n])
			b.tr.Receive(fifo)
			b.flushLocked()
			b.mu.Unlock()
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
			return nil
		}
		// io.EOF is a read timeout on serial ports
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (b *Bridge) flushLocked() {
	res := b.out.Result()
	if len(res) == 0 {
		return
	}
	pkt := append([]byte(nil), res...)
	b.out.Reset()
	if _, err := b.port.Write(pkt); err != nil {
		b.log.Errorf("bridge: write: %v", err)
	}
}

func (b *Bridge) reply(cmdID uint16, args ...uint32) {
	b.tr.SendCommand(cmdID, func(out protocol.OutputBuffer) {
		protocol.EncodeArgs(out, args...)
	})
}

// handle runs with mu held
func (b *Bridge) handle(cmdID uint16, data *[]byte) error {
	switch cmdID {
	case protocol.CmdRegRead:
		args, err := protocol.DecodeArgs(data, 1)
		if err != nil {
			return err
		}
		b.reply(protocol.CmdRegValue, args[0], uint32(b.bus.In8(uint16(args[0]))))
	case protocol.CmdRegWrite:
		args, err := protocol.DecodeArgs(data, 2)
		if err != nil {
			return err
		}
		b.bus.Out8(uint16(args[0]), uint8(args[1]))
	case protocol.CmdCfgRead:
		args, err := protocol.DecodeArgs(data, 1)
		if err != nil {
			return err
		}
		b.reply(protocol.CmdCfgValue, args[0], uint32(b.cfg.ReadConfig8(uint8(args[0]))))
	case protocol.CmdCfgWrite:
		args, err := protocol.DecodeArgs(data, 2)
		if err != nil {
			return err
		}
		b.cfg.WriteConfig8(uint8(args[0]), uint8(args[1]))
	case protocol.CmdIRQEnable:
		args, err := protocol.DecodeArgs(data, 1)
		if err != nil {
			return err
		}
		if args[0] != 0 {
			if err := b.line.Enable(b.raise); err != nil {
				b.log.Errorf("bridge: enable interrupt: %v", err)
			}
		} else {
			// Disable may wait for a handler that is itself waiting on mu
			go b.line.Disable()
		}
	case protocol.CmdIRQDone:
		select {
		case b.irqDone <- struct{}{}:
		default:
		}
	default:
		return fmt.Errorf("bridge: unknown command %d", cmdID)
	}
	return nil
}

// raise forwards one interrupt and holds the line until the remote
// handler has run, so a level-triggered source does not refire early
func (b *Bridge) raise() {
	select {
	case <-b.irqDone:
	default:
	}

	b.mu.Lock()
	b.tr.SendCommand(protocol.CmdIRQ, nil)
	b.flushLocked()
	b.mu.Unlock()

	select {
	case <-b.irqDone:
	case <-time.After(irqAckTimeout):
		b.log.Errorf("bridge: interrupt not acknowledged within %v", irqAckTimeout)
	}
}
