package transceiver

import (
	"time"

	"github.com/google/uuid"

	"github.com/patio-mesh/telemetry-core/internal/discovery"
	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

const (
	discoveryMinListenSlice = 10 * time.Millisecond
	discoveryMaxListenSlice = 100 * time.Millisecond
)

// executeDiscovery runs the discovery sub-protocol to completion: broadcast
// a "discover" command, listen for ACKs during a backoff window, repeat,
// then report the sorted set of responding nodes to req. Normal command
// processing is paused for the duration; sensor frames received during
// listen windows are still forwarded as usual.
func (t *Transceiver) executeDiscovery(req *discovery.Request) {
	start := time.Now()
	defer func() { discoveryDurationSeconds.Observe(time.Since(start).Seconds()) }()

	discovered := make(map[string]struct{})
	telemetry.L().Infof("transceiver: starting node discovery (%d broadcasts)", req.Retries)

	r := t.state.Radio()
	delayMs := float64(req.InitialRetryMs)

	for attempt := 0; attempt < req.Retries; attempt++ {
		packet, err := frame.EncodeCommandFrame(frame.CommandFrame{
			Command:   "discover",
			CommandID: uuid.New().String()[:8],
		})
		if err != nil {
			telemetry.L().Errorf("transceiver: discovery error: encode broadcast: %v", err)
			t.restoreN2G()
			req.Fail(err.Error())
			return
		}

		telemetry.CmdLogger.Debugf("FREQ to=G2N freq=%.1fMHz", t.state.G2NFreq())
		if err := r.SetFrequency(t.state.G2NFreq()); err != nil {
			telemetry.L().Errorf("transceiver: discovery error: set G2N frequency: %v", err)
			t.restoreN2G()
			req.Fail(err.Error())
			return
		}
		ok, sendErr := r.Send(packet)
		if restoreErr := r.SetFrequency(t.state.N2GFreq()); restoreErr != nil {
			telemetry.L().Errorf("transceiver: discovery error: restore N2G frequency: %v", restoreErr)
		}
		telemetry.CmdLogger.Debugf("FREQ to=N2G freq=%.1fMHz", t.state.N2GFreq())

		if sendErr != nil {
			telemetry.L().Errorf("transceiver: discovery error: send broadcast: %v", sendErr)
			req.Fail(sendErr.Error())
			return
		}
		if !ok {
			telemetry.L().Warnf("transceiver: discovery broadcast %d send failed", attempt+1)
		}
		telemetry.L().Infof("transceiver: discovery broadcast %d/%d sent (listening for %.0fms)", attempt+1, req.Retries, delayMs)

		t.listenForDiscoveryAcks(time.Duration(delayMs)*time.Millisecond, discovered)

		delayMs = delayMs * req.RetryMultiplier
		if delayMs > float64(req.MaxRetryMs) {
			delayMs = float64(req.MaxRetryMs)
		}
	}

	nodes := make([]string, 0, len(discovered))
	for n := range discovered {
		nodes = append(nodes, n)
	}
	telemetry.L().Infof("transceiver: discovery complete: %d node(s) found", len(nodes))
	req.Complete(nodes)
}

func (t *Transceiver) listenForDiscoveryAcks(window time.Duration, discovered map[string]struct{}) {
	r := t.state.Radio()
	deadline := time.Now().Add(window)

	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		slice := discoveryMaxListenSlice
		if remaining < slice {
			slice = remaining
		}
		if slice < discoveryMinListenSlice {
			slice = discoveryMinListenSlice
		}

		data, err := r.Receive(slice)
		if err != nil {
			telemetry.L().Errorf("transceiver: discovery receive error: %v", err)
			continue
		}
		if data == nil {
			continue
		}

		if ack, err := frame.DecodeAckFrame(data); err == nil {
			t.queue.AckReceived(ack.CommandID, ack.NodeID, ack.Payload)
			if _, seen := discovered[ack.NodeID]; !seen {
				discovered[ack.NodeID] = struct{}{}
				telemetry.L().Infof("transceiver: discovery: found node %q (total: %d)", ack.NodeID, len(discovered))
			}
			continue
		}

		t.processReceivedPacket(data)
	}
}
