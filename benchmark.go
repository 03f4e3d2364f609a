package ddprofiler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// DefaultBenchmarkThreshold is the queue length the benchmark keeps topped up
const DefaultBenchmarkThreshold = 30000

// Interval between refills of a timed benchmark
const benchmarkRefillInterval = 10 * time.Millisecond

// BenchmarkQueue is a Submitter that exposes its queue length.
type BenchmarkQueue interface {
	Submitter
	ApproxQueueLength() int
}

func fillQueue(q BenchmarkQueue, d ddtask.Descriptor, threshold int) (int, error) {
	n := 0
	for q.ApproxQueueLength() < threshold {
		if err := q.Submit(d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RunBenchmark resubmits d while the queue is shorter than threshold. With
// a zero duration the queue is filled once; otherwise it is refilled until
// duration elapses or ctx is done. It returns the number of submissions.
func RunBenchmark(ctx context.Context, q BenchmarkQueue, d ddtask.Descriptor, threshold int, duration time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = DefaultBenchmarkThreshold
	}

	total, err := fillQueue(q, d, threshold)
	if err != nil || duration <= 0 {
		log.Infof("Benchmark submitted %d tasks", total)
		return total, err
	}

	ticker := time.NewTicker(benchmarkRefillInterval)
	defer ticker.Stop()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-timer.C:
			log.Infof("Benchmark submitted %d tasks in %s", total, duration)
			return total, nil
		case <-ticker.C:
			n, err := fillQueue(q, d, threshold)
			total += n
			if err != nil {
				return total, err
			}
		}
	}
}
