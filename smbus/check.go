package smbus

import "smbmux/i801"

// checkPre makes sure the host is idle and its status is clean before a
// transaction is programmed
func (c *Controller) checkPre() error {
	status := c.regs.Read(i801.HSTSTS)
	if status&i801.StsHostBusy != 0 {
		c.log.Errorf("SMBus is busy, can't use it (status 0x%02x)", status)
		return ErrBusy
	}

	if status &= i801.StsFlags; status != 0 {
		c.log.Debugf("clearing status flags 0x%02x", status)
		c.regs.Write(i801.HSTSTS, status)
		if left := c.regs.Read(i801.HSTSTS) & i801.StsFlags; left != 0 {
			c.log.Errorf("failed clearing status flags 0x%02x", left)
			return ErrBusy
		}
	}

	if c.features&FeaturePEC != 0 {
		if crce := c.regs.Read(i801.AUXSTS) & i801.AuxStsCRCE; crce != 0 {
			c.log.Debugf("clearing aux status flags 0x%02x", crce)
			c.regs.Write(i801.AUXSTS, crce)
			if c.regs.Read(i801.AUXSTS)&i801.AuxStsCRCE != 0 {
				c.log.Errorf("failed clearing aux status flags")
				return ErrBusy
			}
		}
	}
	return nil
}

// checkPost turns the status captured at completion into an error and
// clears it. A later check overrides an earlier one.
func (c *Controller) checkPost(status uint8) error {
	var err error
	if status&i801.StsFailed != 0 {
		c.log.Errorf("transaction failed")
		err = ErrFailed
	}
	if status&i801.StsDevErr != 0 {
		if c.features&FeaturePEC != 0 && c.regs.Read(i801.AUXSTS)&i801.AuxStsCRCE != 0 {
			c.regs.Write(i801.AUXSTS, i801.AuxStsCRCE)
			c.log.Debugf("PEC error")
			err = ErrBadMessage
		} else {
			c.log.Debugf("no response")
			err = ErrNoResponse
		}
	}
	if status&i801.StsBusErr != 0 {
		c.log.Debugf("lost arbitration")
		err = ErrArbitrationLost
	}
	if status &= i801.StsFlags; status != 0 {
		c.regs.Write(i801.HSTSTS, status)
	}
	return err
}

// kill aborts the transaction in progress after a polling timeout
func (c *Controller) kill() error {
	c.log.Errorf("transaction timeout")
	c.regs.Set(i801.HSTCNT, i801.CntKill)
	c.cfg.Delay(killDelay)
	c.regs.Clear(i801.HSTCNT, i801.CntKill)

	status := c.regs.Read(i801.HSTSTS)
	if status&i801.StsHostBusy != 0 || status&i801.StsFailed == 0 {
		c.log.Errorf("failed terminating the transaction (status 0x%02x)", status)
	}
	if status &= i801.StsFlags; status != 0 {
		c.regs.Write(i801.HSTSTS, status)
	}
	return ErrTimeout
}
