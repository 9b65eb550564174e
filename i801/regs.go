// Package i801 holds the register map of Intel ICH/PCH SMBus host
// controllers, shared by the engine and the controller model.
package i801

// I/O register offsets from the SMBus base address
const (
	HSTSTS  = 0  // host status
	HSTCNT  = 2  // host control
	HSTCMD  = 3  // host command
	HSTADD  = 4  // transmit slave address
	HSTDAT0 = 5  // data 0 / block count
	HSTDAT1 = 6  // data 1 / I2C block read command
	BLKDAT  = 7  // block data
	PEC     = 8  // packet error code
	AUXSTS  = 12 // auxiliary status
	AUXCTL  = 13 // auxiliary control
	SLVSTS  = 16 // slave status
	SLVCMD  = 17 // slave command
	NTFDADD = 20 // notify device address (address << 1)
	NTFDDAT = 22 // notify data, low byte; high byte at NTFDDAT+1

	RegionSize = 32
)

// PCI configuration space
const (
	CfgSMBBA  = 0x20 // I/O base address register, bit 0 is the I/O space flag
	CfgHSTCFG = 0x40
)

// HSTCFG bits
const (
	HstcfgHSTEn = 0x01
	HstcfgSMIEn = 0x02
	HstcfgI2CEn = 0x04
	HstcfgSPDWD = 0x10 // SPD write disable
)

// HSTCNT bits
const (
	CntIntrEn   = 0x01
	CntKill     = 0x02
	CntLastByte = 0x20
	CntStart    = 0x40
	CntPECEn    = 0x80
)

// HSTSTS bits
const (
	StsHostBusy = 0x01
	StsIntr     = 0x02
	StsDevErr   = 0x04
	StsBusErr   = 0x08
	StsFailed   = 0x10
	StsSMBAlert = 0x20
	StsInUse    = 0x40
	StsByteDone = 0x80

	StsErrorFlags = StsFailed | StsBusErr | StsDevErr
	StsFlags      = StsByteDone | StsIntr | StsErrorFlags
)

// AUXSTS and AUXCTL bits
const (
	AuxStsCRCE = 0x01
	AuxStsSTCO = 0x02

	AuxCtlCRC  = 0x01
	AuxCtlE32B = 0x02
)

// SLVSTS and SLVCMD bits
const (
	SlvStsHostNotify      = 0x01
	SlvCmdHostNotifyIntEn = 0x01
)

// Transaction types written to HSTCNT bits 4:2
const (
	XactQuick    = 0x00
	XactByte     = 0x04
	XactByteData = 0x08
	XactWordData = 0x0C
	XactProcCall = 0x10
	XactBlock    = 0x14
	XactI2CBlock = 0x18
	XactMask     = 0x1C
)

// BlockMax is the largest SMBus block payload
const BlockMax = 32
