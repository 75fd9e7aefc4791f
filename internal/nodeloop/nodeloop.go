// Package nodeloop implements a node identity's C5: the same
// cooperative, single-goroutine radio ownership pattern as
// internal/transceiver, without the command queue, discovery
// coordination, or dashboard forwarding that only make sense at the
// gateway — per spec §4.5, "the node uses the same pattern without the
// dashboard forwarder" (and, on the node side, without the other
// gateway-only responsibilities: no DiscoveryRequest to service, no
// commands to transmit).
//
// Where the gateway's transceiver spends most of a tick listening on N2G
// and only briefly hops to G2N to transmit a queued command, the node
// rests on N2G — where it broadcasts and is ACKed — and only briefly
// hops to G2N to poll for an incoming command.
package nodeloop

import (
	"time"

	"github.com/patio-mesh/telemetry-core/internal/dispatch"
	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

const receiveWindow = 100 * time.Millisecond

// SensorSource is one sensor attached to this node, read once per
// broadcast cycle. Grounded on original_source/node_broadcast.py's
// instantiate_sensors()/read_all_sensors() shape, minus the actual
// GPIO/I2C driver (out of scope; a concrete SensorSource lives in
// cmd/node and is handed in here).
type SensorSource interface {
	Name() string
	Units() string
	SensorClass() string
	Read() (*float64, error)
}

// Loop is a node's C5: it owns the radio (through state), broadcasts
// sensor readings on N2G on a timer, and spends the rest of its time
// listening on G2N for commands to dispatch.
type Loop struct {
	nodeID  string
	state   *radiostate.State
	reg     *sensorclass.Registry
	disp    *dispatch.Registry
	sources []SensorSource

	lastBroadcast time.Time
	stop          chan struct{}
}

// New builds a node loop for nodeID. disp must have had
// disp.AttachRadioState(state) called already, so rcfg_radio/setparam on
// radio params route through the same State this loop owns.
func New(nodeID string, state *radiostate.State, reg *sensorclass.Registry, disp *dispatch.Registry, sources []SensorSource) *Loop {
	return &Loop{
		nodeID:  nodeID,
		state:   state,
		reg:     reg,
		disp:    disp,
		sources: sources,
		stop:    make(chan struct{}),
	}
}

// Run drives Tick in a loop until Stop is called, backing off a second on
// unexpected error — mirrors internal/transceiver.Run.
func (l *Loop) Run() {
	telemetry.L().Infof("nodeloop: started for node %q", l.nodeID)
	for {
		select {
		case <-l.stop:
			telemetry.L().Infof("nodeloop: stopped")
			return
		default:
		}

		if err := l.Tick(); err != nil {
			telemetry.L().Errorf("nodeloop: tick error: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// Stop signals Run to exit after its current tick.
func (l *Loop) Stop() {
	close(l.stop)
}

// Tick performs one iteration: apply pending config, receive on G2N with
// a bounded window, then broadcast a sensor frame on N2G if the interval
// has elapsed.
func (l *Loop) Tick() error {
	if l.state.HasPending() {
		applied, err := l.state.ApplyPending()
		if err != nil {
			telemetry.L().Errorf("nodeloop: apply pending config: %v", err)
		} else if len(applied) > 0 {
			telemetry.L().Infof("nodeloop: applied config: %v", applied)
		}
	}

	l.receiveCommand()

	interval := time.Duration(l.disp.BroadcastIntervalMs()) * time.Millisecond
	if time.Since(l.lastBroadcast) >= interval {
		l.broadcast()
		l.lastBroadcast = time.Now()
	}

	return nil
}

// receiveCommand hops to G2N, listens for one bounded window, and hops
// back to N2G before returning — symmetric to the gateway's
// transmit()/restoreN2G(), but in the other direction: the node's radio
// lives on N2G by default (where it broadcasts and is ACKed) and only
// visits G2N briefly to check for commands.
func (l *Loop) receiveCommand() {
	r := l.state.Radio()

	if err := r.SetFrequency(l.state.G2NFreq()); err != nil {
		telemetry.L().Errorf("nodeloop: set G2N frequency: %v", err)
		return
	}

	data, err := r.Receive(receiveWindow)

	if restoreErr := r.SetFrequency(l.state.N2GFreq()); restoreErr != nil {
		telemetry.L().Errorf("nodeloop: restore N2G frequency: %v", restoreErr)
	}

	if err != nil {
		telemetry.L().Errorf("nodeloop: receive on G2N: %v", err)
		return
	}
	if data == nil {
		return
	}

	cf, err := frame.DecodeCommandFrame(data)
	if err != nil {
		telemetry.L().Warnf("nodeloop: invalid command frame: %v", err)
		return
	}

	l.disp.Dispatch(cf.CommandID, cf.Command, cf.Args, cf.TargetNodeID)
}

// broadcast reads every attached sensor and, if any reading succeeded,
// encodes and sends a sensor frame on N2G.
func (l *Loop) broadcast() {
	now := float64(time.Now().Unix())
	readings := make([]frame.SensorReading, 0, len(l.sources))
	for _, src := range l.sources {
		value, err := src.Read()
		if err != nil {
			telemetry.L().Errorf("nodeloop: read %s: %v", src.Name(), err)
			continue
		}
		readings = append(readings, frame.SensorReading{
			Name:        src.Name(),
			Units:       src.Units(),
			Value:       value,
			SensorClass: src.SensorClass(),
			Timestamp:   now,
			Precision:   3,
		})
	}
	if len(readings) == 0 {
		telemetry.L().Warnf("nodeloop: no sensor readings available")
		return
	}

	data, err := frame.EncodeSensorFrame(frame.SensorFrame{
		NodeID:    l.nodeID,
		Timestamp: now,
		Readings:  readings,
	}, l.reg)
	if err != nil {
		telemetry.L().Errorf("nodeloop: encode sensor frame: %v", err)
		return
	}

	ok, err := l.state.Radio().Send(data)
	if err != nil {
		telemetry.L().Errorf("nodeloop: broadcast: %v", err)
		return
	}
	if !ok {
		telemetry.L().Warnf("nodeloop: broadcast send reported failure")
		return
	}
	telemetry.L().Infof("nodeloop: broadcast %d readings, %d bytes", len(readings), len(data))
}
