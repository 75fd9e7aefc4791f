// Command gateway is the indoor collection point of the telemetry mesh:
// it owns the radio, retires operator commands against node ACKs, and
// forwards both LoRa-received and locally-read sensor data to a
// dashboard. Grounded on original_source/gateway/server.py's run_gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patio-mesh/telemetry-core/internal/cmdqueue"
	"github.com/patio-mesh/telemetry-core/internal/collector"
	"github.com/patio-mesh/telemetry-core/internal/config"
	"github.com/patio-mesh/telemetry-core/internal/gwparams"
	"github.com/patio-mesh/telemetry-core/internal/httpapi"
	"github.com/patio-mesh/telemetry-core/internal/lockfile"
	"github.com/patio-mesh/telemetry-core/internal/radio/sx127x"
	"github.com/patio-mesh/telemetry-core/internal/radiostate"
	"github.com/patio-mesh/telemetry-core/internal/sensorclass"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
	"github.com/patio-mesh/telemetry-core/internal/transceiver"
)

func main() {
	verbose := flag.Bool("verbose_logging", false, "enable debug-level structured logging")
	cmdDebug := flag.Bool("cmd-debug", false, "enable the focused command/ACK lifecycle log")
	flag.Parse()

	configPath := "config/gateway_config.json"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}

	logger, err := telemetry.NewZap(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: init logger: %v\n", err)
		os.Exit(1)
	}
	telemetry.SetLogger(logger)
	if *cmdDebug {
		telemetry.EnableCmdDebug()
	}

	lock, err := lockfile.Acquire("gateway")
	if err != nil {
		telemetry.L().Errorf("gateway: %v", err)
		os.Exit(1)
	}
	defer lock.Release()

	doc, err := config.Load(configPath)
	if err != nil {
		telemetry.L().Errorf("gateway: load config: %v", err)
		os.Exit(1)
	}

	gatewayID := asString(config.GetNested(doc, "gateway_id", "gateway"), "gateway")
	dashboardURL := asString(config.GetNested(doc, "dashboard_url", ""), "")
	if dashboardURL == "" {
		telemetry.L().Errorf("gateway: dashboard_url is required in config")
		os.Exit(1)
	}

	dashboard := collector.NewDashboardClient(dashboardURL, gatewayID, 5*time.Second)
	coll := collector.NewCollector(dashboard, 256)
	coll.Start()

	// Local sensor drivers are out of scope (spec.md §1); a deployment
	// that attaches one implements collector.SensorSource and is wired in
	// here. The reader itself only starts when the config section exists.
	var localReader *collector.LocalSensorReader
	if localCfg, ok := config.GetNested(doc, "local_sensors", nil).([]any); ok && len(localCfg) > 0 {
		intervalSec := asFloat(config.GetNested(doc, "local_sensor_interval_sec", 60.0), 60.0)
		localReader = collector.NewLocalSensorReader(gatewayID, nil, coll, time.Duration(intervalSec*float64(time.Second)))
		localReader.Start()
		telemetry.L().Warnf("gateway: %d local_sensors configured, but no SensorSource driver is wired in this build", len(localCfg))
	}

	reg := sensorclass.New()
	cmdCfg, _ := config.GetNested(doc, "command_server", nil).(map[string]any)
	q := cmdqueue.New(cmdQueueConfigFrom(cmdCfg))

	var st *radiostate.State
	var tr *transceiver.Transceiver
	if radioCfg, ok := config.GetNested(doc, "lora", nil).(map[string]any); ok {
		dev, err := sx127x.New(sx127xConfigFrom(radioCfg))
		if err != nil {
			// Matches original_source/gateway/server.py's try/except around
			// radio init: log and continue without LoRa rather than exit.
			telemetry.L().Errorf("gateway: radio init failed, continuing without LoRa: %v", err)
		} else {
			n2g := asFloat(radioCfg["n2g_frequency_mhz"], 915.0)
			g2n := asFloat(radioCfg["g2n_frequency_mhz"], 916.0)
			st = radiostate.New(dev, n2g, g2n)
			tr = transceiver.New(st, q, reg)
			tr.OnReceive = func(nodeID string, rssi int) {
				telemetry.L().Debugf("gateway: receive flash for %q (RSSI %d)", nodeID, rssi)
			}
			tr.OnSensorFrame = func(r transceiver.ReceivedReading) {
				coll.Submit(collector.Reading{Frame: r.Frame, RSSI: r.RSSI})
			}
			go tr.Run()
		}
	}

	var httpSrv *http.Server
	if tr != nil && asBool(field(cmdCfg, "enabled"), false) {
		params := gwparams.New(gwparams.Build(st, q, gatewayID))
		addr := asString(field(cmdCfg, "addr"), ":8081")
		server := httpapi.New(httpapi.Config{
			Queue:       q,
			State:       st,
			Params:      params,
			Transceiver: tr,
			ConfigPath:  configPath,
		})
		httpSrv = &http.Server{Addr: addr, Handler: server}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				telemetry.L().Errorf("gateway: http server: %v", err)
			}
		}()
		telemetry.L().Infof("gateway: command server listening on %s", addr)
	} else if asBool(field(cmdCfg, "enabled"), false) {
		telemetry.L().Warnf("gateway: command_server.enabled but no LoRa radio available, not starting")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2)
	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			if tr != nil {
				tr.SetFlashEnabled(true)
			}
		case syscall.SIGUSR2:
			if tr != nil {
				tr.SetFlashEnabled(false)
			}
		default:
			telemetry.L().Infof("gateway: received %s, shutting down", sig)
			shutdown(tr, httpSrv, localReader, coll)
			return
		}
	}
}

// field reads a key out of a possibly-nil map, returning nil if the map
// itself is nil.
func field(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// shutdown stops components in the order original_source/gateway/
// server.py's run_gateway does on exit: transceiver, then the command
// server, then the local reader, then the collector.
func shutdown(tr *transceiver.Transceiver, httpSrv *http.Server, localReader *collector.LocalSensorReader, coll *collector.Collector) {
	if tr != nil {
		tr.Stop()
	}
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}
	if localReader != nil {
		localReader.Stop()
	}
	coll.Stop()
}
