// Package collector implements the gateway-side downstream fan-in for
// sensor readings: a bounded, drop-oldest forwarding queue to the
// dashboard's ingest API, fed by both LoRa-received frames (via
// transceiver.Transceiver.OnSensorFrame) and readings polled locally on
// the gateway host itself (LocalSensorReader). This is the Go shape of
// the original gateway's sensor_collection.py: PendingPost, DashboardClient,
// SensorDataCollector, and LocalSensorReader.
package collector

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// Reading is one sensor frame queued for forwarding, tagged with where it
// came from.
type Reading struct {
	Frame   frame.SensorFrame
	RSSI    int  // 0 and meaningless for IsLocal readings
	IsLocal bool // true for readings sourced from LocalSensorReader
}

// pendingPost is one queued forwarding attempt, mirroring the original's
// PendingPost (a reading plus the retry bookkeeping the dashboard client
// needs without re-touching Reading itself).
type pendingPost struct {
	reading   Reading
	attempts  int
	queuedAt  time.Time
}

// Collector is the SensorDataCollector: a bounded FIFO of pending posts,
// drained by a single background goroutine into a DashboardClient. When
// the queue is full, the oldest pending post is dropped to make room —
// the gateway favors forwarding recent readings over an ever-growing
// backlog of stale ones.
type Collector struct {
	mu      sync.Mutex
	queue   deque.Deque[pendingPost]
	maxSize int

	client *DashboardClient

	stop chan struct{}
	done chan struct{}
}

// NewCollector builds a Collector that forwards to client. maxSize <= 0
// defaults to 256.
func NewCollector(client *DashboardClient, maxSize int) *Collector {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Collector{
		client:  client,
		maxSize: maxSize,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Submit enqueues r for forwarding. It never blocks: if the queue is at
// capacity the oldest pending post is dropped first.
func (c *Collector) Submit(r Reading) {
	c.mu.Lock()
	if c.queue.Len() >= c.maxSize {
		c.queue.PopFront()
		readingsDroppedTotal.Inc()
	}
	c.queue.PushBack(pendingPost{reading: r, queuedAt: time.Now()})
	c.mu.Unlock()
	readingsQueuedTotal.Inc()
}

// Start launches the background forwarding goroutine. Safe to call once.
func (c *Collector) Start() {
	go c.run()
}

// Stop signals the forwarding goroutine to exit and waits for it to drain
// its current post, if any, before returning.
func (c *Collector) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Collector) run() {
	defer close(c.done)
	const idlePoll = 200 * time.Millisecond
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		post, ok := c.popFront()
		if !ok {
			select {
			case <-c.stop:
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		if err := c.client.Post(post.reading); err != nil {
			telemetry.L().Warnf("collector: forward to dashboard failed (node=%s local=%v): %v",
				post.reading.Frame.NodeID, post.reading.IsLocal, err)
			forwardFailuresTotal.Inc()
			continue
		}
		forwardSuccessTotal.Inc()
	}
}

func (c *Collector) popFront() (pendingPost, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Len() == 0 {
		return pendingPost{}, false
	}
	return c.queue.PopFront(), true
}

// Len reports the number of posts currently queued for forwarding.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}
