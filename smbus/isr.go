package smbus

import (
	"smbmux/i801"
	"smbmux/logging"
)

// HandleInterrupt is the interrupt entry point. Start installs it on the
// interrupt line; it is exported for backends that deliver interrupts on
// their own. It must not block.
func (c *Controller) HandleInterrupt() {
	c.irq.Lock()
	defer c.irq.Unlock()

	if c.features&FeatureHostNotify != 0 &&
		c.regs.Read(i801.SLVSTS)&i801.SlvStsHostNotify != 0 {
		c.handleHostNotify()
		return
	}

	status := c.regs.Read(i801.HSTSTS)
	if status&i801.StsByteDone != 0 {
		c.isrByteDone(c.cursor)
	}

	status &= i801.StsIntr | i801.StsErrorFlags
	if status != 0 {
		c.regs.Write(i801.HSTSTS, status)
		c.status = status
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// isrByteDone moves one byte of a byte-by-byte block transfer
func (c *Controller) isrByteDone(cur *byteCursor) {
	if cur == nil {
		c.log.Async(logging.LevelDebug, "spurious BYTE_DONE")
		c.regs.Write(i801.HSTSTS, i801.StsByteDone)
		return
	}

	if cur.read {
		if cur.count == 0 && cur.smbusBlock {
			n := int(c.regs.Read(i801.HSTDAT0))
			if n < 1 || n > BlockMax {
				c.log.Async(logging.LevelError, "illegal SMBus block read size %d", n)
				// end the transfer after the byte in flight
				cur.err = ErrProtocol
				cur.len = 0
				c.regs.Write(i801.HSTCNT, cur.cmd|i801.CntLastByte)
			} else {
				cur.len = n
				cur.data.Block[0] = uint8(n)
			}
		}
		if cur.count < cur.len {
			cur.count++
			cur.data.Block[cur.count] = c.regs.Read(i801.BLKDAT)
		} else {
			c.log.Async(logging.LevelDebug, "discarding extra byte")
		}
		if cur.count == cur.len-1 {
			c.regs.Write(i801.HSTCNT, cur.cmd|i801.CntLastByte)
		}
	} else if cur.count < cur.len-1 {
		cur.count++
		c.regs.Write(i801.BLKDAT, cur.data.Block[cur.count+1])
	}

	c.regs.Write(i801.HSTSTS, i801.StsByteDone)
}

// handleHostNotify routes a latched notification to the device registered
// at the notifying address
func (c *Controller) handleHostNotify() {
	addr := uint16(c.regs.Read(i801.NTFDADD) >> 1)
	data := uint16(c.regs.Read(i801.NTFDDAT)) | uint16(c.regs.Read(i801.NTFDDAT+1))<<8

	if dev := c.devices.Lookup(addr); dev == nil {
		c.log.Async(logging.LevelInfo, "host notify from unknown address 0x%02x dropped", addr)
	} else {
		switch dev.n.post(HostNotify{Address: addr, Data: data}) {
		case noConsumer:
			c.log.Async(logging.LevelDebug, "host notify for 0x%02x has no consumer", addr)
		case queueFull:
			c.log.Async(logging.LevelError, "host notify queue for 0x%02x full, event dropped", addr)
		}
	}

	c.regs.Write(i801.SLVSTS, i801.SlvStsHostNotify)
}
