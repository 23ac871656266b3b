package kafkaclient

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"
)

// LivenessCheck reports unhealthy if no new message has been marked
// processed in the last 5 minutes, or if the marked count ever regresses.
func LivenessCheck(c *Consumer) healthcheck.Check {
	var lastMarked atomic.Uint64
	var lastChangeUnix atomic.Int64
	lastChangeUnix.Store(time.Now().Unix())

	return func() error {
		marked, _ := c.Stats()
		old := lastMarked.Swap(marked)
		now := time.Now().Unix()
		switch {
		case old < marked:
			lastChangeUnix.Store(now)
			return nil
		case old > marked:
			return errors.New("kafkaclient: marked message count went backwards")
		default:
			if now-lastChangeUnix.Load() > int64((5 * time.Minute).Seconds()) {
				return errors.New("kafkaclient: no message marked in the last 5 minutes")
			}
			return nil
		}
	}
}

// ReadinessCheck reports unhealthy until the consumer group session has
// completed its first Setup.
func ReadinessCheck(c *Consumer) healthcheck.Check {
	return func() error {
		if c.IsReady() {
			return nil
		}
		return errors.New("kafkaclient: consumer group not ready")
	}
}
