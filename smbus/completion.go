package smbus

import (
	"errors"
	"time"

	"smbmux/i801"
)

var errPollTimeout = errors.New("poll limit reached")

// armWait forgets any completion left over from an earlier transaction.
// It must run before the transaction is started.
func (c *Controller) armWait(cur *byteCursor) {
	c.irq.Lock()
	c.status = 0
	c.cursor = cur
	select {
	case <-c.wake:
	default:
	}
	c.irq.Unlock()
}

// waitIRQ blocks until the interrupt handler reports completion or the
// timeout expires. It consumes the stored status and the cursor.
func (c *Controller) waitIRQ() (uint8, bool) {
	t := time.NewTimer(c.cfg.Timeout)
	defer t.Stop()

	ok := true
	select {
	case <-c.wake:
	case <-t.C:
		ok = false
	}

	c.irq.Lock()
	status := c.status
	c.status = 0
	c.cursor = nil
	c.irq.Unlock()
	return status, ok
}

// waitIntr polls until the host is idle with INTR or an error set, and
// returns the status bits seen
func (c *Controller) waitIntr() (uint8, error) {
	for i := 0; i < c.cfg.PollLimit; i++ {
		c.cfg.Delay(c.cfg.PollInterval)
		status := c.regs.Read(i801.HSTSTS)
		busy := status&i801.StsHostBusy != 0
		status &= i801.StsErrorFlags | i801.StsIntr
		if !busy && status != 0 {
			return status, nil
		}
	}
	return 0, errPollTimeout
}

// waitByteDone polls until the current byte is done or an error is
// flagged, and returns the error bits
func (c *Controller) waitByteDone() (uint8, error) {
	for i := 0; i < c.cfg.PollLimit; i++ {
		c.cfg.Delay(c.cfg.PollInterval)
		status := c.regs.Read(i801.HSTSTS)
		if status&(i801.StsErrorFlags|i801.StsByteDone) != 0 {
			return status & i801.StsErrorFlags, nil
		}
	}
	return 0, errPollTimeout
}

// transaction starts xact and waits for it to complete. On the interrupt
// path a timeout is reported as is; on the polling path the transaction
// is killed first.
func (c *Controller) transaction(xact uint8) error {
	if c.features&FeatureIRQ != 0 {
		c.armWait(nil)
		c.regs.Write(i801.HSTCNT, xact|i801.CntIntrEn|i801.CntStart)
		status, ok := c.waitIRQ()
		if !ok {
			c.log.Errorf("transaction timeout after %v", c.cfg.Timeout)
			return ErrTimeout
		}
		return c.checkPost(status)
	}

	c.regs.Write(i801.HSTCNT, xact|i801.CntStart)
	status, err := c.waitIntr()
	if err != nil {
		return c.kill()
	}
	return c.checkPost(status)
}
