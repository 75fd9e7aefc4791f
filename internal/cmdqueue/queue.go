package cmdqueue

import (
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

const responseTTL = 60 * time.Second

// Queue is a serial, at-most-one-in-flight command queue, as described by
// §4.4. All state is guarded by a single leaf mutex.
type Queue struct {
	mu      sync.Mutex
	queue   deque.Deque[*PendingCommand]
	current *PendingCommand
	maxSize int

	maxRetries       int
	initialRetryMs   int
	maxRetryMs       int
	retryMultiplier  float64
	discoveryRetries int
	waitTimeout      time.Duration

	completedResponses *cache.Cache
}

// Config holds the tunable knobs C7 exposes as immediate parameters.
type Config struct {
	MaxSize          int
	MaxRetries       int
	InitialRetryMs   int
	MaxRetryMs       int
	RetryMultiplier  float64
	DiscoveryRetries int
	WaitTimeout      time.Duration
}

// DefaultConfig mirrors the original gateway's defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:          128,
		MaxRetries:       10,
		InitialRetryMs:   500,
		MaxRetryMs:       5000,
		RetryMultiplier:  1.5,
		DiscoveryRetries: 30,
		WaitTimeout:      30 * time.Second,
	}
}

// New creates a Queue from cfg.
func New(cfg Config) *Queue {
	q := &Queue{
		maxSize:            cfg.MaxSize,
		maxRetries:         cfg.MaxRetries,
		initialRetryMs:     cfg.InitialRetryMs,
		maxRetryMs:         cfg.MaxRetryMs,
		retryMultiplier:    cfg.RetryMultiplier,
		discoveryRetries:   cfg.DiscoveryRetries,
		waitTimeout:        cfg.WaitTimeout,
		completedResponses: cache.New(responseTTL, time.Minute),
	}
	q.validateTimeouts()
	return q
}

// ─── Runtime parameter accessors (C7 immediate knobs) ───────────────────

func (q *Queue) MaxSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize
}

func (q *Queue) SetMaxSize(v int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxSize = v
}

func (q *Queue) MaxRetries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxRetries
}

func (q *Queue) SetMaxRetries(v int) {
	q.mu.Lock()
	q.maxRetries = v
	q.mu.Unlock()
	q.validateTimeouts()
}

func (q *Queue) InitialRetryMs() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialRetryMs
}

func (q *Queue) SetInitialRetryMs(v int) {
	q.mu.Lock()
	q.initialRetryMs = v
	q.mu.Unlock()
	q.validateTimeouts()
}

func (q *Queue) MaxRetryMs() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxRetryMs
}

func (q *Queue) SetMaxRetryMs(v int) {
	q.mu.Lock()
	q.maxRetryMs = v
	q.mu.Unlock()
	q.validateTimeouts()
}

func (q *Queue) RetryMultiplier() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retryMultiplier
}

func (q *Queue) SetRetryMultiplier(v float64) {
	q.mu.Lock()
	q.retryMultiplier = v
	q.mu.Unlock()
	q.validateTimeouts()
}

func (q *Queue) DiscoveryRetries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discoveryRetries
}

func (q *Queue) SetDiscoveryRetries(v int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discoveryRetries = v
}

func (q *Queue) WaitTimeout() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waitTimeout
}

func (q *Queue) SetWaitTimeout(v time.Duration) {
	q.mu.Lock()
	q.waitTimeout = v
	q.mu.Unlock()
	q.validateTimeouts()
}

// ─── Timeout validation ──────────────────────────────────────────────────

// CalculateMaxRetryTime returns the sum of all inter-retry delays (not
// counting transmission time) it would take to exhaust every retry.
func (q *Queue) CalculateMaxRetryTime() time.Duration {
	q.mu.Lock()
	maxRetries := q.maxRetries
	initialMs := float64(q.initialRetryMs)
	maxMs := float64(q.maxRetryMs)
	mult := q.retryMultiplier
	q.mu.Unlock()

	var totalMs float64
	for i := 1; i < maxRetries; i++ {
		delay := initialMs * pow(mult, float64(i-1))
		if delay > maxMs {
			delay = maxMs
		}
		totalMs += delay
	}
	return time.Duration(totalMs) * time.Millisecond
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func (q *Queue) validateTimeouts() {
	maxRetryTime := q.CalculateMaxRetryTime()
	q.mu.Lock()
	waitTimeout := q.waitTimeout
	q.mu.Unlock()
	if waitTimeout < maxRetryTime {
		telemetry.L().Warnf(
			"cmdqueue: wait_timeout (%s) < max_retry_time (%s); commands may be cancelled before all retries are exhausted",
			waitTimeout, maxRetryTime,
		)
	}
}

// ─── Queue operations ────────────────────────────────────────────────────

// Add enqueues a new command, returning its id, or ErrFull if the queue is
// saturated.
func (q *Queue) Add(cmd string, args []string, nodeID string, maxRetries *int, expectedAcks int) (string, error) {
	if expectedAcks < 1 {
		expectedAcks = 1
	}
	commandID := uuid.New().String()[:8]

	packet, err := frame.EncodeCommandFrame(frame.CommandFrame{
		TargetNodeID: nodeID,
		Command:      cmd,
		Args:         args,
		CommandID:    commandID,
	})
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	retries := q.maxRetries
	if maxRetries != nil {
		retries = *maxRetries
	}
	if q.queue.Len() >= q.maxSize {
		q.mu.Unlock()
		return "", ErrFull
	}
	pending := &PendingCommand{
		CommandID:    commandID,
		Cmd:          cmd,
		Args:         args,
		NodeID:       nodeID,
		Packet:       packet,
		MaxRetries:   retries,
		ExpectedAcks: expectedAcks,
		AckedNodes:   make(map[string]struct{}),
		NodePayloads: make(map[string]map[string]any),
	}
	q.queue.PushBack(pending)
	q.mu.Unlock()

	telemetry.CmdLogger.Debugf("CMD_QUEUED cmd=%s target=%s id=%s", cmd, displayTarget(nodeID), commandID)
	return commandID, nil
}

func displayTarget(nodeID string) string {
	if nodeID == "" {
		return "broadcast"
	}
	return nodeID
}

// NextToSend returns the current command if its retry timer has elapsed,
// promoting the queue head to current first if there is no current
// command.
func (q *Queue) NextToSend() *PendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil && q.queue.Len() > 0 {
		q.current = q.queue.PopFront()
		q.current.NextRetryTime = time.Time{}
	}

	if q.current != nil && !time.Now().Before(q.current.NextRetryTime) {
		return q.current
	}
	return nil
}

// MarkSent increments the current command's retry count and schedules its
// next eligible transmit time with multiplicative backoff.
func (q *Queue) MarkSent() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return
	}

	q.current.RetryCount++
	if q.current.RetryCount == 1 {
		q.current.FirstSentTime = time.Now()
	}
	delayMs := scaledDelayMs(q.initialRetryMs, q.retryMultiplier, q.maxRetryMs, q.current.RetryCount)
	q.current.NextRetryTime = time.Now().Add(time.Duration(delayMs) * time.Millisecond)

	telemetry.CmdLogger.Debugf("CMD_RETRY cmd=%s attempt=%d next_in=%dms", q.current.Cmd, q.current.RetryCount, delayMs)
}

func scaledDelayMs(initialMs int, mult float64, maxMs, retryCount int) int {
	delay := float64(initialMs) * pow(mult, float64(retryCount-1))
	if delay > float64(maxMs) {
		delay = float64(maxMs)
	}
	return int(delay)
}

// AckReceived folds an incoming ACK into the current command's
// aggregation, retiring it once enough ACKs have arrived.
func (q *Queue) AckReceived(commandID, nodeID string, payload map[string]any) (AckResult, *PendingCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil || q.current.CommandID != commandID {
		return AckStale, nil
	}

	expected := q.current.ExpectedAcks

	if nodeID != "" {
		if _, seen := q.current.AckedNodes[nodeID]; seen {
			telemetry.L().Debugf("cmdqueue: duplicate ACK from %q ignored", nodeID)
			return AckStale, nil
		}
		q.current.AckedNodes[nodeID] = struct{}{}
		if payload != nil {
			q.current.NodePayloads[nodeID] = payload
		}
	}

	ackCount := len(q.current.AckedNodes)
	shouldRetire := ackCount >= expected || (expected == 1 && nodeID == "")

	if !shouldRetire {
		telemetry.L().Infof("cmdqueue: ACK from %q for %q (%d/%d)", nodeID, q.current.Cmd, ackCount, expected)
		return AckInProgress, nil
	}

	retired := q.current
	if expected > 1 {
		telemetry.L().Infof("cmdqueue: command %q ACK'd after %d attempt(s) (%d/%d ACKs)", retired.Cmd, retired.RetryCount, ackCount, expected)
		q.completedResponses.Set(commandID, map[string]any{
			"acked_nodes": sortedKeys(retired.AckedNodes),
			"responses":   retired.NodePayloads,
		}, cache.DefaultExpiration)
	} else {
		telemetry.L().Infof("cmdqueue: command %q ACK'd after %d attempt(s)", retired.Cmd, retired.RetryCount)
		stored := payload
		if stored == nil {
			stored = map[string]any{}
		}
		q.completedResponses.Set(commandID, stored, cache.DefaultExpiration)
	}
	q.current = nil
	return AckRetired, retired
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CheckExpired retires the current command as expired if its retry count
// has reached its ceiling. Expired commands produce no stored response.
func (q *Queue) CheckExpired() *PendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.RetryCount >= q.current.MaxRetries {
		expired := q.current
		q.current = nil
		return expired
	}
	return nil
}

// PendingCount returns the number of queued commands, not including the
// current one.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}

// HasCurrent reports whether a command is currently in flight.
func (q *Queue) HasCurrent() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Cancel removes commandID whether it is current or still queued.
func (q *Queue) Cancel(commandID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil && q.current.CommandID == commandID {
		telemetry.L().Infof("cmdqueue: cancelled current command %s", commandID)
		q.current = nil
		return true
	}

	for i := 0; i < q.queue.Len(); i++ {
		if q.queue.At(i).CommandID == commandID {
			q.queue.Remove(i)
			telemetry.L().Infof("cmdqueue: cancelled queued command %s", commandID)
			return true
		}
	}
	return false
}

// GetPartialAcks returns a snapshot of a command's multi-ACK aggregation,
// for timeout reporting and status polling. A command still waiting in the
// queue reports no ACKs yet. ok is false if commandID is neither the
// current command nor queued.
func (q *Queue) GetPartialAcks(commandID string) (snapshot PartialAcks, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil || q.current.CommandID != commandID {
		for i := 0; i < q.queue.Len(); i++ {
			if p := q.queue.At(i); p.CommandID == commandID {
				return PartialAcks{AckedNodes: []string{}, Responses: map[string]map[string]any{}, ExpectedAcks: p.ExpectedAcks}, true
			}
		}
		return PartialAcks{}, false
	}
	responses := make(map[string]map[string]any, len(q.current.NodePayloads))
	for k, v := range q.current.NodePayloads {
		responses[k] = v
	}
	return PartialAcks{
		AckedNodes:   sortedKeys(q.current.AckedNodes),
		Responses:    responses,
		ExpectedAcks: q.current.ExpectedAcks,
	}, true
}

// WaitForResponse polls the response store at 100ms granularity until
// commandID's response appears, the command finishes with no response, or
// timeout elapses.
func (q *Queue) WaitForResponse(commandID string, timeout time.Duration) map[string]any {
	telemetry.L().Infof("cmdqueue: waiting for response to %s (timeout=%s)", commandID, timeout)
	deadline := time.Now().Add(timeout)
	polls := 0

	for time.Now().Before(deadline) {
		q.mu.Lock()
		if v, found := q.completedResponses.Get(commandID); found {
			q.completedResponses.Delete(commandID)
			q.mu.Unlock()
			payload, _ := v.(map[string]any)
			telemetry.L().Infof("cmdqueue: got response for %s", commandID)
			return payload
		}

		isCurrent := q.current != nil && q.current.CommandID == commandID
		inQueue := false
		for i := 0; i < q.queue.Len(); i++ {
			if q.queue.At(i).CommandID == commandID {
				inQueue = true
				break
			}
		}
		q.mu.Unlock()

		if !isCurrent && !inQueue {
			telemetry.L().Infof("cmdqueue: command %s completed without response after %d polls", commandID, polls)
			return nil
		}

		polls++
		time.Sleep(100 * time.Millisecond)
	}
	telemetry.L().Warnf("cmdqueue: timeout waiting for %s after %d polls", commandID, polls)
	return nil
}

// CleanupOldResponses prunes response records past their TTL. go-cache's
// own janitor does this in the background; this method exists so a caller
// can force an immediate sweep (e.g. on shutdown).
func (q *Queue) CleanupOldResponses() {
	q.completedResponses.DeleteExpired()
}
