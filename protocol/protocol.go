// Package protocol implements the framed link used to reach a register
// window on another machine: a length/sequence header, VLQ encoded
// command payloads, a CRC16 trailer and a sync byte. It also carries the
// SMBus packet error code (CRC-8) shared by the controller model.
package protocol

// Frame layout limits
const (
	MessageMax = 512 // scratch output capacity

	// Message sequence masks
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// Register link command IDs. The host issues reads and writes; the
// remote end answers reads with a value message and raises CmdIRQ
// asynchronously whenever its interrupt line fires.
const (
	CmdRegRead   uint16 = 1 // port
	CmdRegValue  uint16 = 2 // port value
	CmdRegWrite  uint16 = 3 // port value
	CmdCfgRead   uint16 = 4 // offset
	CmdCfgWrite  uint16 = 5 // offset value
	CmdCfgValue  uint16 = 6 // offset value
	CmdIRQ       uint16 = 7 // (no args)
	CmdIRQEnable uint16 = 8 // on
	CmdIRQDone   uint16 = 9 // (no args)
)
