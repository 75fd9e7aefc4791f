// Command node is an outdoor sensor endpoint: it broadcasts readings on
// N2G on a timer and dispatches operator commands received on G2N.
// Grounded on original_source/node_broadcast.py's main().
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/patio-mesh/telemetry-core/internal/config"
	"github.com/patio-mesh/telemetry-core/internal/dispatch"
	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/lockfile"
	"github.com/patio-mesh/telemetry-core/internal/nodeloop"
	"github.com/patio-mesh/telemetry-core/internal/radio/sx127x"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

func main() {
	verbose := flag.Bool("verbose_logging", false, "enable debug-level structured logging")
	cmdDebug := flag.Bool("cmd-debug", false, "enable the focused command/ACK lifecycle log")
	flag.Parse()

	configPath := "config/node_config.json"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}

	logger, err := telemetry.NewZap(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node: init logger: %v\n", err)
		os.Exit(1)
	}
	telemetry.SetLogger(logger)
	if *cmdDebug {
		telemetry.EnableCmdDebug()
	}

	doc, err := config.Load(configPath)
	if err != nil {
		telemetry.L().Errorf("node: load config: %v", err)
		os.Exit(1)
	}

	nodeID := asString(config.GetNested(doc, "node_id", ""), "")
	if nodeID == "" {
		telemetry.L().Errorf("node: node_id is required in config")
		os.Exit(1)
	}

	lock, err := lockfile.Acquire(fmt.Sprintf("node-%s", nodeID))
	if err != nil {
		telemetry.L().Errorf("node: %v", err)
		os.Exit(1)
	}
	defer lock.Release()

	radioCfg, _ := config.GetNested(doc, "lora", nil).(map[string]any)
	if radioCfg == nil {
		telemetry.L().Errorf("node: lora config section is required")
		os.Exit(1)
	}

	dev, err := sx127x.New(sx127xConfigFrom(radioCfg))
	if err != nil {
		// Mirrors gateway's tolerant startup, but a node with no working
		// radio has nothing left to do: it can neither broadcast nor
		// receive commands.
		telemetry.L().Errorf("node: radio init failed: %v", err)
		os.Exit(1)
	}

	n2g := asFloat(radioCfg["n2g_frequency_mhz"], 915.0)
	g2n := asFloat(radioCfg["g2n_frequency_mhz"], 916.0)
	st := radiostate.New(dev, n2g, g2n)

	sendAck := func(commandID string, payload map[string]any) {
		data, err := frame.EncodeAckFrame(frame.AckFrame{NodeID: nodeID, CommandID: commandID, Payload: payload})
		if err != nil {
			telemetry.L().Errorf("node: encode ack: %v", err)
			return
		}
		if ok, err := st.Radio().Send(data); err != nil || !ok {
			telemetry.L().Errorf("node: send ack: %v (ok=%v)", err, ok)
		}
	}
	persist := func() error {
		return config.Update(configPath, map[string]any{
			"lora.spreading_factor":  st.SpreadingFactor(),
			"lora.signal_bandwidth":  st.SignalBandwidth(),
			"lora.tx_power":          st.TxPower(),
			"lora.n2g_frequency_mhz": st.N2GFreq(),
			"lora.g2n_frequency_mhz": st.G2NFreq(),
		})
	}
	disp := dispatch.New(nodeID, sendAck, persist)
	disp.AttachRadioState(st)

	reg := sensorclass.New()

	// Physical sensor drivers are out of scope (spec.md §1); a
	// deployment that attaches one implements nodeloop.SensorSource and
	// is wired in here.
	var sources []nodeloop.SensorSource

	loop := nodeloop.New(nodeID, st, reg, disp, sources)
	go loop.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	telemetry.L().Infof("node: received %s, shutting down", sig)
	loop.Stop()
}
