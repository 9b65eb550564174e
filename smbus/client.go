package smbus

import (
	"context"
	"fmt"
)

// Client binds a slave address and its flags to an adapter
type Client struct {
	Adapter Transferer
	Addr    uint16
	Flags   ClientFlags
}

func (c *Client) do(ctx context.Context, dir Direction, cmd uint8, proto Protocol, data *Data) error {
	return c.Adapter.Transfer(ctx, &Request{
		Addr:     c.Addr,
		Flags:    c.Flags,
		Dir:      dir,
		Command:  cmd,
		Protocol: proto,
		Data:     data,
	})
}

// Quick sends only the address and the read/write bit
func (c *Client) Quick(ctx context.Context, dir Direction) error {
	return c.do(ctx, dir, 0, ProtoQuick, nil)
}

// ReadByte receives a single byte without a command
func (c *Client) ReadByte(ctx context.Context) (uint8, error) {
	var d Data
	if err := c.do(ctx, Read, 0, ProtoByte, &d); err != nil {
		return 0, err
	}
	return d.Byte, nil
}

// WriteByte sends a single byte as the command
func (c *Client) WriteByte(ctx context.Context, v uint8) error {
	return c.do(ctx, Write, v, ProtoByte, nil)
}

func (c *Client) ReadByteData(ctx context.Context, cmd uint8) (uint8, error) {
	var d Data
	if err := c.do(ctx, Read, cmd, ProtoByteData, &d); err != nil {
		return 0, err
	}
	return d.Byte, nil
}

func (c *Client) WriteByteData(ctx context.Context, cmd, v uint8) error {
	return c.do(ctx, Write, cmd, ProtoByteData, &Data{Byte: v})
}

func (c *Client) ReadWordData(ctx context.Context, cmd uint8) (uint16, error) {
	var d Data
	if err := c.do(ctx, Read, cmd, ProtoWordData, &d); err != nil {
		return 0, err
	}
	return d.Word, nil
}

func (c *Client) WriteWordData(ctx context.Context, cmd uint8, v uint16) error {
	return c.do(ctx, Write, cmd, ProtoWordData, &Data{Word: v})
}

// ReadBlockData reads an SMBus block, whose length the device supplies
func (c *Client) ReadBlockData(ctx context.Context, cmd uint8) ([]byte, error) {
	var d Data
	if err := c.do(ctx, Read, cmd, ProtoBlockData, &d); err != nil {
		return nil, err
	}
	return d.BlockBytes(), nil
}

// WriteBlockData writes an SMBus block of 1 to 32 bytes
func (c *Client) WriteBlockData(ctx context.Context, cmd uint8, b []byte) error {
	if len(b) == 0 || len(b) > BlockMax {
		return fmt.Errorf("smbus: block length %d out of range", len(b))
	}
	var d Data
	d.SetBlock(b)
	return c.do(ctx, Write, cmd, ProtoBlockData, &d)
}

// ReadI2CBlockData reads n bytes starting at cmd without a count byte
func (c *Client) ReadI2CBlockData(ctx context.Context, cmd uint8, n int) ([]byte, error) {
	if n <= 0 || n > BlockMax {
		return nil, fmt.Errorf("smbus: block length %d out of range", n)
	}
	var d Data
	d.Block[0] = uint8(n)
	if err := c.do(ctx, Read, cmd, ProtoI2CBlockData, &d); err != nil {
		return nil, err
	}
	return d.BlockBytes(), nil
}

func (c *Client) WriteI2CBlockData(ctx context.Context, cmd uint8, b []byte) error {
	if len(b) == 0 || len(b) > BlockMax {
		return fmt.Errorf("smbus: block length %d out of range", len(b))
	}
	var d Data
	d.SetBlock(b)
	return c.do(ctx, Write, cmd, ProtoI2CBlockData, &d)
}
