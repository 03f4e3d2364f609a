package ddprofiler

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// next blocks until a descriptor is available and marks it in flight. It
// returns false once the Conductor leaves the Started state.
func (c *Conductor) next() (ddtask.Descriptor, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()

	for len(c.queue) == 0 && c.state == Started {
		c.cond.Wait()
	}
	if c.state != Started {
		return nil, false
	}

	d := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.setQueueLenLocked()
	c.active++
	activeWorkersMetric.Inc()
	return d, true
}

// done retires the in-flight descriptor of one worker.
func (c *Conductor) done() {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.active--
	activeWorkersMetric.Dec()
	c.markIdleLocked()
}

func (c *Conductor) work(id int) {
	logger := c.logger.WithField("worker", id)
	ctx := context.Background()

	for {
		d, ok := c.next()
		if !ok {
			logger.Debug("Worker exiting")
			return
		}

		res := c.runTask(ctx, logger, d)
		c.record(res)
		if c.observer != nil {
			c.observer(res)
		}
		c.done()
	}
}

// runTask profiles one source and writes its profiles. Errors and panics
// are confined to the returned result.
func (c *Conductor) runTask(ctx context.Context, logger *log.Entry, d ddtask.Descriptor) (res TaskResult) {
	start := time.Now()
	res.Descriptor = d
	logger = logger.WithFields(log.Fields{
		"kind":   d.Kind(),
		"source": d.Source(),
	})

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			logger.Errorf("Task panicked: %v", r)
		}
		res.Duration = time.Since(start)
	}()

	cols, err := c.pipeline.Profile(ctx, d)
	if err != nil {
		res.Err = err
		logger.Errorf("Error profiling source: %s", err)
		return res
	}

	for _, col := range cols {
		if err := c.store.Write(ctx, col); err != nil {
			res.WriteFailures++
			logger.Warnf("Error storing profile of column %s: %s", col.Column, err)
			continue
		}
		res.Profiles++
	}
	logger.Debugf("Profiled %d columns in %s", len(cols), time.Since(start))
	return res
}

func (c *Conductor) record(res TaskResult) {
	if res.Err != nil {
		c.failed.Add(1)
	} else {
		c.completed.Add(1)
	}
	c.written.Add(int64(res.Profiles))
	c.writeFailures.Add(int64(res.WriteFailures))
	observeResult(res)
}
