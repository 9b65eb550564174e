package smbus

import "smbmux/i801"

// blockTransaction runs an SMBus or I2C block transfer, in buffer mode
// when the hardware allows it and byte by byte otherwise
func (c *Controller) blockTransaction(req *Request, hwpec bool) error {
	d := req.Data
	i2c := req.Protocol == ProtoI2CBlockData

	if i2c && req.Dir == Write {
		// I2C_EN suppresses the count byte
		hostc := c.pci.ReadConfig8(i801.CfgHSTCFG)
		c.pci.WriteConfig8(i801.CfgHSTCFG, hostc|i801.HstcfgI2CEn)
		defer c.pci.WriteConfig8(i801.CfgHSTCFG, hostc)
	}

	if req.Dir == Write || i2c {
		d.Block[0] = min(max(d.Block[0], 1), BlockMax)
	} else {
		d.Block[0] = BlockMax
	}

	if c.features&FeatureBlockBuffer != 0 && !i2c && c.setBlockBuffer() {
		return c.blockByBuffer(req, hwpec)
	}
	return c.blockByteByByte(req, hwpec)
}

// setBlockBuffer enables the 32-byte buffer and reports whether it stuck
func (c *Controller) setBlockBuffer() bool {
	c.regs.Set(i801.AUXCTL, i801.AuxCtlE32B)
	return c.regs.Read(i801.AUXCTL)&i801.AuxCtlE32B != 0
}

func (c *Controller) blockByBuffer(req *Request, hwpec bool) error {
	d := req.Data

	c.regs.Read(i801.HSTCNT) // resets the buffer index
	if req.Dir == Write {
		n := int(d.Block[0])
		c.regs.Write(i801.HSTDAT0, uint8(n))
		for i := 1; i <= n; i++ {
			c.regs.Write(i801.BLKDAT, d.Block[i])
		}
	}

	xact := uint8(i801.XactBlock)
	if hwpec {
		xact |= i801.CntPECEn
	}
	if err := c.transaction(xact); err != nil {
		return err
	}

	if req.Dir == Read {
		n := int(c.regs.Read(i801.HSTDAT0))
		if n < 1 || n > BlockMax {
			c.log.Errorf("illegal SMBus block read size %d", n)
			return ErrProtocol
		}
		d.Block[0] = uint8(n)
		for i := 1; i <= n; i++ {
			d.Block[i] = c.regs.Read(i801.BLKDAT)
		}
	}
	return nil
}

func (c *Controller) blockByteByByte(req *Request, hwpec bool) error {
	d := req.Data
	read := req.Dir == Read
	smbusBlock := req.Protocol == ProtoBlockData

	// I2C block writes run as SMBus block writes with I2C_EN set
	cmd := uint8(i801.XactBlock)
	if !smbusBlock && read {
		cmd = i801.XactI2CBlock
	}
	if hwpec {
		cmd |= i801.CntPECEn
	}

	n := int(d.Block[0])
	if !read {
		c.regs.Write(i801.HSTDAT0, uint8(n))
		c.regs.Write(i801.BLKDAT, d.Block[1])
	}

	if c.features&FeatureIRQ != 0 {
		return c.byteByByteIRQ(cmd, read, smbusBlock, n, d)
	}

	for i := 1; i <= n; i++ {
		if i == n && read {
			cmd |= i801.CntLastByte
		}
		c.regs.Write(i801.HSTCNT, cmd)
		if i == 1 {
			c.regs.Write(i801.HSTCNT, cmd|i801.CntStart)
		}

		status, err := c.waitByteDone()
		if err != nil {
			return c.kill()
		}
		if status != 0 {
			return c.checkPost(status)
		}

		if i == 1 && read && smbusBlock {
			n = int(c.regs.Read(i801.HSTDAT0))
			if n < 1 || n > BlockMax {
				c.log.Errorf("illegal SMBus block read size %d", n)
				c.drain(cmd)
				return ErrProtocol
			}
			d.Block[0] = uint8(n)
		}

		if read {
			d.Block[i] = c.regs.Read(i801.BLKDAT)
		} else if i < n {
			c.regs.Write(i801.BLKDAT, d.Block[i+1])
		}

		// BLKDAT is ready, release the next byte
		c.regs.Write(i801.HSTSTS, i801.StsByteDone)
	}

	status, err := c.waitIntr()
	if err != nil {
		return c.kill()
	}
	return c.checkPost(status)
}

// drain walks a byte-by-byte read with a bad length to its end so the host
// is not left busy
func (c *Controller) drain(cmd uint8) {
	c.regs.Write(i801.HSTCNT, cmd|i801.CntLastByte)
	for i := 0; i < c.cfg.PollLimit && c.regs.Read(i801.HSTSTS)&i801.StsHostBusy != 0; i++ {
		c.regs.Write(i801.HSTSTS, i801.StsByteDone)
	}
	c.regs.Write(i801.HSTSTS, i801.StsIntr)
}

// byteByByteIRQ hands the transfer to the interrupt handler, which moves
// one byte per BYTE_DONE interrupt
func (c *Controller) byteByByteIRQ(cmd uint8, read, smbusBlock bool, n int, d *Data) error {
	if read && n == 1 {
		cmd |= i801.CntLastByte
	}
	cur := &byteCursor{
		cmd:        cmd | i801.CntIntrEn,
		read:       read,
		smbusBlock: smbusBlock,
		len:        n,
		data:       d,
	}
	c.armWait(cur)
	c.regs.Write(i801.HSTCNT, cur.cmd|i801.CntStart)
	status, ok := c.waitIRQ()

	c.irq.Lock()
	err := cur.err
	c.irq.Unlock()

	if !ok {
		c.log.Errorf("block transaction timeout after %v", c.cfg.Timeout)
		return ErrTimeout
	}
	if err != nil {
		return err
	}
	return c.checkPost(status)
}
