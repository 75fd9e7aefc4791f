// Package transceiver implements C5: the single cooperatively-scheduled
// loop that owns the radio outright. It is the only component permitted
// to call into radio.Radio; everything else reaches the radio only
// indirectly, through the command queue or the radio state's pending map.
package transceiver

import (
	"fmt"
	"time"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/discovery"
	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

const receiveWindow = 100 * time.Millisecond

// ReceivedReading is one sensor frame forwarded downstream after a
// successful receive, tagged with the RSSI it arrived at.
type ReceivedReading struct {
	Frame frame.SensorFrame
	RSSI  int
}

// Transceiver is the C5 loop.
type Transceiver struct {
	state *radiostate.State
	queue *cmdqueue.Queue
	reg   *sensorclass.Registry

	flashEnabled bool

	// OnReceive fires after every successfully decoded sensor frame, with
	// its source node id and RSSI — wired by cmd/gateway to an LED driver
	// (kept abstract; physical GPIO driving is out of scope here).
	OnReceive func(nodeID string, rssi int)
	// OnSensorFrame fires with every successfully decoded sensor frame,
	// after zero timestamps have been replaced with the receive time —
	// wired to the downstream forwarding path (local collector, dashboard
	// client).
	OnSensorFrame func(ReceivedReading)

	discoveryReq *discovery.Request

	stop chan struct{}
}

// New builds a Transceiver over state (which owns the radio) and queue.
func New(state *radiostate.State, queue *cmdqueue.Queue, reg *sensorclass.Registry) *Transceiver {
	return &Transceiver{
		state:        state,
		queue:        queue,
		reg:          reg,
		flashEnabled: true,
		stop:         make(chan struct{}),
	}
}

// SetFlashEnabled toggles the OnReceive hook's activation (supplemented
// feature: RSSI-driven indicator flash).
func (t *Transceiver) SetFlashEnabled(enabled bool) {
	t.flashEnabled = enabled
	telemetry.L().Infof("transceiver: receive flash %s", enabledWord(enabled))
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// RequestDiscovery submits a discovery request, returning false if one is
// already in progress.
func (t *Transceiver) RequestDiscovery(req *discovery.Request) bool {
	if t.discoveryReq != nil {
		return false
	}
	t.discoveryReq = req
	return true
}

// Run drives Tick in a loop until Stop is called, backing off a second on
// unexpected error (mirroring the original's top-level exception guard).
func (t *Transceiver) Run() {
	telemetry.L().Infof("transceiver: started")
	for {
		select {
		case <-t.stop:
			telemetry.L().Infof("transceiver: stopped")
			return
		default:
		}

		if err := t.Tick(); err != nil {
			telemetry.L().Errorf("transceiver: tick error: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// Stop signals Run to exit after its current tick.
func (t *Transceiver) Stop() {
	close(t.stop)
}

// Tick performs one iteration: apply pending config, service discovery,
// receive, expire, transmit — in that order (§4.5).
func (t *Transceiver) Tick() error {
	if t.state.HasPending() {
		applied, err := t.state.ApplyPending()
		if err != nil {
			telemetry.L().Errorf("transceiver: apply pending config: %v", err)
		} else if len(applied) > 0 {
			telemetry.L().Infof("transceiver: applied config: %v", applied)
		}
	}

	if t.discoveryReq != nil {
		req := t.discoveryReq
		t.executeDiscovery(req)
		t.discoveryReq = nil
		return nil
	}

	data, err := t.state.Radio().Receive(receiveWindow)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	if data != nil {
		rxPacketsTotal.Inc()
		t.processReceivedPacket(data)
	}

	if expired := t.queue.CheckExpired(); expired != nil {
		cmdExpiredTotal.Inc()
		target := expired.NodeID
		if target == "" {
			target = "broadcast"
		}
		telemetry.L().Warnf("transceiver: command %q to %s expired after %d retries", expired.Cmd, target, expired.MaxRetries)
		telemetry.CmdLogger.Debugf("CMD_EXPIRED cmd=%s target=%s retries=%d", expired.Cmd, target, expired.MaxRetries)
	}

	if pending := t.queue.NextToSend(); pending != nil {
		t.transmit(pending)
	}

	return nil
}

func (t *Transceiver) transmit(pending *cmdqueue.PendingCommand) {
	r := t.state.Radio()
	target := pending.NodeID
	if target == "" {
		target = "broadcast"
	}

	telemetry.CmdLogger.Debugf("FREQ to=G2N freq=%.1fMHz", t.state.G2NFreq())
	if err := r.SetFrequency(t.state.G2NFreq()); err != nil {
		telemetry.L().Errorf("transceiver: send command: set G2N frequency: %v", err)
		t.restoreN2G()
		return
	}

	ok, sendErr := r.Send(pending.Packet)
	if restoreErr := r.SetFrequency(t.state.N2GFreq()); restoreErr != nil {
		telemetry.L().Errorf("transceiver: send command: restore N2G frequency: %v", restoreErr)
	}
	telemetry.CmdLogger.Debugf("FREQ to=N2G freq=%.1fMHz", t.state.N2GFreq())

	if sendErr != nil {
		telemetry.L().Errorf("transceiver: error sending command: %v", sendErr)
		return
	}

	cmdTxTotal.Inc()
	if ok {
		telemetry.CmdLogger.Debugf("CMD_TX cmd=%s target=%s attempt=%d/%d bytes=%d", pending.Cmd, target, pending.RetryCount+1, pending.MaxRetries, len(pending.Packet))
	} else {
		telemetry.L().Warnf("transceiver: radio send failed for %q to %s", pending.Cmd, target)
	}
	t.queue.MarkSent()
}

func (t *Transceiver) restoreN2G() {
	if err := t.state.Radio().SetFrequency(t.state.N2GFreq()); err != nil {
		telemetry.L().Errorf("transceiver: restore N2G frequency after error: %v", err)
	}
}

func (t *Transceiver) processReceivedPacket(data []byte) {
	rssi, _ := t.state.Radio().LastRSSI()

	if ack, err := frame.DecodeAckFrame(data); err == nil {
		result, retired := t.queue.AckReceived(ack.CommandID, ack.NodeID, ack.Payload)
		switch result {
		case cmdqueue.AckRetired:
			cmdRetiredTotal.Inc()
			rttMs := 0.0
			if retired != nil && !retired.FirstSentTime.IsZero() {
				rttMs = float64(time.Since(retired.FirstSentTime).Milliseconds())
			}
			telemetry.L().Infof("transceiver: ACK received from %q (RSSI: %d dB)", ack.NodeID, rssi)
			telemetry.CmdLogger.Debugf("ACK_MATCH id=%s node=%s rssi=%d rtt_ms=%.0f", ack.CommandID, ack.NodeID, rssi, rttMs)
		case cmdqueue.AckInProgress:
			telemetry.CmdLogger.Debugf("ACK_PARTIAL id=%s node=%s rssi=%d", ack.CommandID, ack.NodeID, rssi)
		case cmdqueue.AckStale:
			telemetry.L().Debugf("transceiver: unexpected ACK from %q: %s", ack.NodeID, ack.CommandID)
			telemetry.CmdLogger.Debugf("ACK_STALE id=%s node=%s rssi=%d", ack.CommandID, ack.NodeID, rssi)
		}
		return
	}

	now := time.Now()
	sf, err := frame.DecodeSensorFrame(data, t.reg)
	if err != nil {
		rxDroppedTotal.Inc()
		n := len(data)
		if n > 40 {
			n = 40
		}
		telemetry.L().Warnf("transceiver: invalid packet (RSSI: %d dB, len=%d, err=%v): % x", rssi, len(data), err, data[:n])
		return
	}

	for i := range sf.Readings {
		if sf.Readings[i].Timestamp == 0 {
			sf.Readings[i].Timestamp = float64(now.Unix())
		}
	}
	telemetry.L().Infof("transceiver: received from %q: %d readings (RSSI: %d dB)", sf.NodeID, len(sf.Readings), rssi)

	if t.flashEnabled && t.OnReceive != nil {
		t.OnReceive(sf.NodeID, rssi)
	}
	if t.OnSensorFrame != nil {
		t.OnSensorFrame(ReceivedReading{Frame: sf, RSSI: rssi})
	}
}

