package smbus

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
)

// Transfer executes req on the work queue, retrying the whole access on
// arbitration loss up to the configured number of retries
func (c *Controller) Transfer(ctx context.Context, req *Request) error {
	if req.ID.IsNil() {
		req.ID = xid.New()
	}
	if req.Data == nil {
		req.Data = &Data{}
	}

	start := time.Now()
	attempts := 0
	err := c.run(ctx, func() error {
		for {
			attempts++
			err := c.access(req)
			if !errors.Is(err, ErrArbitrationLost) || attempts > c.cfg.Retries {
				return err
			}
			c.log.Debugf("%s: arbitration lost, retry %d/%d", req.ID, attempts, c.cfg.Retries)
		}
	})

	c.trace.record(TraceEntry{
		ID:       req.ID,
		Addr:     req.Addr,
		Protocol: req.Protocol,
		Dir:      req.Dir,
		Command:  req.Command,
		Attempts: attempts,
		Err:      err,
		Start:    start,
		Duration: time.Since(start),
	})
	if err != nil {
		return &OpError{Op: req.Dir.String() + " " + req.Protocol.String(), Addr: req.Addr, Err: err}
	}
	return nil
}
