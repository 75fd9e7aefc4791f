package collector

import (
	"time"

	"github.com/patio-mesh/telemetry-core/internal/frame"
	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// SensorSource is one sensor attached directly to the gateway host (as
// opposed to an outdoor node reached over LoRa) — the Go shape of the
// original gateway's instantiate_sensors()/Sensor subclasses, minus the
// GPIO/I2C bus wiring itself, which stays outside this package. A
// concrete SensorSource (an I2C temperature probe, say) lives in
// cmd/gateway and is handed in here as this narrow interface.
type SensorSource interface {
	// Name identifies the reading, e.g. "Temperature". Matched against
	// the same sensorclass names used for LoRa-sourced readings.
	Name() string
	Units() string
	SensorClass() string
	// Read samples the sensor. A nil *float64 return means the sensor is
	// present but currently unavailable (matches frame.SensorReading's
	// null-value convention), not an error.
	Read() (*float64, error)
}

// LocalSensorReader polls a fixed set of SensorSource values on an
// interval and feeds the results into a Collector as local readings,
// tagged IsLocal so the dashboard can tell them apart from node
// telemetry. This is the Go shape of the original gateway's
// LocalSensorReader.
type LocalSensorReader struct {
	gatewayID string
	sources   []SensorSource
	collector *Collector
	interval  time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewLocalSensorReader builds a reader over sources, submitting readings
// to collector every interval. interval <= 0 defaults to 60 seconds.
func NewLocalSensorReader(gatewayID string, sources []SensorSource, collector *Collector, interval time.Duration) *LocalSensorReader {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &LocalSensorReader{
		gatewayID: gatewayID,
		sources:   sources,
		collector: collector,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the polling goroutine. Safe to call once.
func (r *LocalSensorReader) Start() {
	go r.run()
}

// Stop signals the polling goroutine to exit and waits for it to return.
func (r *LocalSensorReader) Stop() {
	close(r.stop)
	<-r.done
}

func (r *LocalSensorReader) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *LocalSensorReader) poll() {
	if len(r.sources) == 0 {
		return
	}

	now := float64(time.Now().Unix())
	readings := make([]frame.SensorReading, 0, len(r.sources))
	for _, src := range r.sources {
		value, err := src.Read()
		if err != nil {
			telemetry.L().Warnf("collector: local sensor %s read failed: %v", src.Name(), err)
			continue
		}
		readings = append(readings, frame.SensorReading{
			Name:        src.Name(),
			Units:       src.Units(),
			Value:       value,
			SensorClass: src.SensorClass(),
			Timestamp:   now,
		})
	}
	if len(readings) == 0 {
		return
	}

	r.collector.Submit(Reading{
		Frame: frame.SensorFrame{
			NodeID:    r.gatewayID,
			Timestamp: now,
			Readings:  readings,
		},
		IsLocal: true,
	})
}
