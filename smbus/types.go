package smbus

import (
	"context"
	"strings"

	"github.com/rs/xid"

	"smbmux/i801"
)

// BlockMax is the largest block payload an SMBus transfer carries
const BlockMax = i801.BlockMax

// Protocol selects the SMBus transaction format. The values match the
// Linux i2c-dev size codes.
type Protocol uint8

const (
	ProtoQuick Protocol = iota
	ProtoByte
	ProtoByteData
	ProtoWordData
	ProtoProcCall
	ProtoBlockData
	ProtoI2CBlockBroken
	ProtoBlockProcCall
	ProtoI2CBlockData
)

var protocolNames = [...]string{
	ProtoQuick:          "quick",
	ProtoByte:           "byte",
	ProtoByteData:       "byte-data",
	ProtoWordData:       "word-data",
	ProtoProcCall:       "proc-call",
	ProtoBlockData:      "block-data",
	ProtoI2CBlockBroken: "i2c-block-broken",
	ProtoBlockProcCall:  "block-proc-call",
	ProtoI2CBlockData:   "i2c-block-data",
}

func (p Protocol) String() string {
	if int(p) < len(protocolNames) {
		return protocolNames[p]
	}
	return "unknown"
}

// Direction is the read/write bit sent with the slave address
type Direction uint8

const (
	Write Direction = 0
	Read  Direction = 1
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// ClientFlags are per-device options
type ClientFlags uint16

const (
	FlagPEC        ClientFlags = 0x04
	FlagTenBit     ClientFlags = 0x10
	FlagSlave      ClientFlags = 0x20
	FlagHostNotify ClientFlags = 0x40
	FlagWake       ClientFlags = 0x80
)

var flagNames = []struct {
	f    ClientFlags
	name string
}{
	{FlagPEC, "pec"},
	{FlagTenBit, "ten-bit"},
	{FlagSlave, "slave"},
	{FlagHostNotify, "host-notify"},
	{FlagWake, "wake"},
}

func (f ClientFlags) String() string {
	var parts []string
	for _, n := range flagNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseClientFlag maps a flag name to its bit
func ParseClientFlag(name string) (ClientFlags, bool) {
	for _, n := range flagNames {
		if n.name == name {
			return n.f, true
		}
	}
	return 0, false
}

// Feature is a capability of the host controller
type Feature uint32

const (
	FeaturePEC Feature = 1 << iota
	FeatureBlockBuffer
	FeatureI2CBlockRead
	FeatureIRQ
	FeatureHostNotify
)

// DefaultFeatures matches ICH9 and later parts
const DefaultFeatures = FeaturePEC | FeatureBlockBuffer | FeatureI2CBlockRead | FeatureIRQ | FeatureHostNotify

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeaturePEC, "pec"},
	{FeatureBlockBuffer, "block-buffer"},
	{FeatureI2CBlockRead, "i2c-block-read"},
	{FeatureIRQ, "irq"},
	{FeatureHostNotify, "host-notify"},
}

func (f Feature) String() string {
	var parts []string
	for _, n := range featureNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseFeature maps a feature name to its bit
func ParseFeature(name string) (Feature, bool) {
	for _, n := range featureNames {
		if n.name == name {
			return n.f, true
		}
	}
	return 0, false
}

// Data carries the payload of one transfer. Block[0] holds the block
// length and Block[1:] the bytes.
type Data struct {
	Byte  uint8
	Word  uint16
	Block [BlockMax + 2]byte
}

// BlockBytes returns a copy of the block payload
func (d *Data) BlockBytes() []byte {
	n := min(int(d.Block[0]), BlockMax)
	return append([]byte(nil), d.Block[1:1+n]...)
}

// SetBlock loads b as the block payload, truncated to BlockMax
func (d *Data) SetBlock(b []byte) {
	n := copy(d.Block[1:1+BlockMax], b)
	d.Block[0] = uint8(n)
}

// Request is one SMBus transfer
type Request struct {
	ID       xid.ID
	Addr     uint16
	Flags    ClientFlags
	Dir      Direction
	Command  uint8
	Protocol Protocol
	Data     *Data
}

// Transferer executes SMBus requests
type Transferer interface {
	Transfer(ctx context.Context, req *Request) error
}

// HostNotify is an alert raised by a slave through the host notify protocol
type HostNotify struct {
	Address uint16
	Data    uint16
}

// NotifyConsumer receives host notify events for a device. It runs on the
// device's own goroutine and may issue transfers.
type NotifyConsumer interface {
	HandleHostNotify(n HostNotify)
}

// NotifyFunc adapts a function to NotifyConsumer
type NotifyFunc func(n HostNotify)

func (f NotifyFunc) HandleHostNotify(n HostNotify) { f(n) }

// DeviceConfig describes a device published when the controller starts
type DeviceConfig struct {
	Addr       uint16
	Flags      ClientFlags
	Properties map[string]string
}
