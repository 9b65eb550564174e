package smbus

import "smbmux/i801"

// access programs and runs one attempt of req
func (c *Controller) access(req *Request) error {
	if req.Flags&FlagTenBit != 0 || req.Addr > 0x7f {
		return ErrUnsupported
	}
	switch req.Protocol {
	case ProtoQuick, ProtoByte, ProtoByteData, ProtoWordData, ProtoBlockData:
	case ProtoI2CBlockData:
		if req.Dir == Read && c.features&FeatureI2CBlockRead == 0 {
			c.log.Debugf("I2C block read is unsupported")
			return ErrUnsupported
		}
	default:
		c.log.Errorf("unsupported transaction %s", req.Protocol)
		return ErrUnsupported
	}

	hwpec := c.features&FeaturePEC != 0 && req.Flags&FlagPEC != 0 &&
		req.Protocol != ProtoQuick && req.Protocol != ProtoI2CBlockData

	if err := c.checkPre(); err != nil {
		return err
	}

	addr := uint8(req.Addr)<<1 | uint8(req.Dir)
	d := req.Data
	var xact uint8
	block := false
	switch req.Protocol {
	case ProtoQuick:
		c.regs.Write(i801.HSTADD, addr)
		xact = i801.XactQuick
	case ProtoByte:
		c.regs.Write(i801.HSTADD, addr)
		if req.Dir == Write {
			c.regs.Write(i801.HSTCMD, req.Command)
		}
		xact = i801.XactByte
	case ProtoByteData:
		c.regs.Write(i801.HSTADD, addr)
		c.regs.Write(i801.HSTCMD, req.Command)
		if req.Dir == Write {
			c.regs.Write(i801.HSTDAT0, d.Byte)
		}
		xact = i801.XactByteData
	case ProtoWordData:
		c.regs.Write(i801.HSTADD, addr)
		c.regs.Write(i801.HSTCMD, req.Command)
		if req.Dir == Write {
			c.regs.Write(i801.HSTDAT0, uint8(d.Word))
			c.regs.Write(i801.HSTDAT1, uint8(d.Word>>8))
		}
		xact = i801.XactWordData
	case ProtoBlockData:
		c.regs.Write(i801.HSTADD, addr)
		c.regs.Write(i801.HSTCMD, req.Command)
		block = true
	case ProtoI2CBlockData:
		// With SPD write disable set the read fails unless R/W is set
		a := uint8(req.Addr) << 1
		if c.origHstcfg&i801.HstcfgSPDWD != 0 {
			a |= uint8(req.Dir)
		}
		c.regs.Write(i801.HSTADD, a)
		if req.Dir == Read {
			c.regs.Write(i801.HSTDAT1, req.Command)
		} else {
			c.regs.Write(i801.HSTCMD, req.Command)
		}
		block = true
	}

	if hwpec {
		c.regs.Set(i801.AUXCTL, i801.AuxCtlCRC)
	} else if c.features&FeaturePEC != 0 {
		c.regs.Clear(i801.AUXCTL, i801.AuxCtlCRC)
	}

	var err error
	if block {
		err = c.blockTransaction(req, hwpec)
	} else {
		err = c.transaction(xact)
	}

	// PEC and the 32-byte buffer are off outside a transaction
	if hwpec || block {
		c.regs.Clear(i801.AUXCTL, i801.AuxCtlCRC|i801.AuxCtlE32B)
	}

	if block || err != nil || req.Dir == Write || xact == i801.XactQuick {
		return err
	}
	switch xact {
	case i801.XactByte, i801.XactByteData:
		d.Byte = c.regs.Read(i801.HSTDAT0)
	case i801.XactWordData:
		d.Word = uint16(c.regs.Read(i801.HSTDAT0)) | uint16(c.regs.Read(i801.HSTDAT1))<<8
	}
	return nil
}
