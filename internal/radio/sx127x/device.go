// Package sx127x is the production radio.Radio implementation for the
// Semtech SX1276/77/78/79 LoRa transceiver, wired over periph.io's SPI
// and GPIO host drivers — the same wiring pattern the NRF24 driver this
// module grew out of used for its own periph.io adapter, generalized
// from a 5-byte-address packet radio to a half-duplex LoRa modem.
package sx127x

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// spiConn is the minimal SPI surface this driver needs, satisfied by
// periph.io's spi.Conn and swappable for a test double.
type spiConn interface {
	Tx(w, r []byte) error
}

// resetPin is the minimal GPIO surface this driver needs for the chip's
// reset line.
type resetPin interface {
	Out(l gpio.Level) error
}

// Config holds everything needed to bring up an SX127x over periph.io.
type Config struct {
	// SpiBusPath is the SPI device path, e.g. "/dev/spidev0.0". Defaults
	// to "/dev/spidev0.0".
	SpiBusPath string
	// SpiClockHz is the SPI clock frequency. Defaults to 1MHz, a
	// conservative value that works over a ribbon cable to an outdoor
	// node enclosure.
	SpiClockHz int
	// ResetPin is the GPIO pin number (BCM numbering) wired to the
	// chip's RESET line. 0 disables the reset pulse on Init.
	ResetPin int
	// FrequencyMHz is the initial carrier frequency.
	FrequencyMHz float64
	// SpreadingFactor is the initial spreading factor (7-12).
	SpreadingFactor int
	// SignalBandwidthHz is the initial channel bandwidth (125000,
	// 250000, or 500000).
	SignalBandwidthHz int
	// TxPowerDBm is the initial transmit power.
	TxPowerDBm int
}

// Device drives a single SX127x chip. A single goroutine owns a Device
// at a time, per §5's locking discipline; methods are not safe for
// concurrent use.
type Device struct {
	mu   sync.Mutex
	conn spiConn
	rst  resetPin
	port interface{ Close() error }
	cfg  Config

	sf       int
	bwHz     int
	txPower  int
	lastRSSI int
	haveRSSI bool
}

// New brings up an SX127x over periph.io's SPI and GPIO host drivers and
// returns a ready-to-use radio.Radio.
func New(cfg Config) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sx127x: periph.io host init: %w", err)
	}

	busPath := cfg.SpiBusPath
	if busPath == "" {
		busPath = "/dev/spidev0.0"
	}
	p, err := spireg.Open(busPath)
	if err != nil {
		return nil, fmt.Errorf("sx127x: open SPI port %s: %w", busPath, err)
	}

	clockHz := cfg.SpiClockHz
	if clockHz == 0 {
		clockHz = 1000000
	}
	conn, err := p.Connect(physic.Frequency(clockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("sx127x: SPI connect: %w", err)
	}

	var rst resetPin
	if cfg.ResetPin != 0 {
		name := fmt.Sprintf("GPIO%d", cfg.ResetPin)
		pin := gpioreg.ByName(name)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("sx127x: open reset pin %s", name)
		}
		rst = pin
	}

	dev := &Device{conn: conn, rst: rst, port: p, cfg: cfg}
	if err := dev.init(cfg); err != nil {
		p.Close()
		return nil, err
	}
	return dev, nil
}

func (d *Device) init(cfg Config) error {
	if d.rst != nil {
		d.rst.Out(gpio.Low)
		time.Sleep(100 * time.Microsecond)
		d.rst.Out(gpio.High)
		time.Sleep(5 * time.Millisecond)
	}

	version := d.readRegister(regVersion)
	if version == 0x00 || version == 0xFF {
		return fmt.Errorf("sx127x: no response on SPI bus (version register read %#x)", version)
	}

	d.writeRegister(regOpMode, modeLongRangeMode|modeSleep)
	time.Sleep(10 * time.Millisecond)
	d.writeRegister(regOpMode, modeLongRangeMode|modeStdby)

	d.writeRegister(regFifoTxBaseAddr, 0x00)
	d.writeRegister(regFifoRxBaseAddr, 0x00)
	d.writeRegister(regLna, d.readRegister(regLna)|0x03) // max LNA gain boost

	sf := cfg.SpreadingFactor
	if sf == 0 {
		sf = 9
	}
	bwHz := cfg.SignalBandwidthHz
	if bwHz == 0 {
		bwHz = 125000
	}
	txPower := cfg.TxPowerDBm
	if txPower == 0 {
		txPower = 14
	}
	freqMHz := cfg.FrequencyMHz
	if freqMHz == 0 {
		freqMHz = 915.0
	}

	if err := d.SetSpreadingFactor(sf); err != nil {
		return err
	}
	if err := d.SetSignalBandwidth(bwHz); err != nil {
		return err
	}
	if err := d.SetTxPower(txPower); err != nil {
		return err
	}
	if err := d.SetFrequency(freqMHz); err != nil {
		return err
	}

	d.writeRegister(regModemConfig3, 0x04) // LowDataRateOptimize off, AGC on
	d.writeRegister(regDioMapping1, 0x00)  // DIO0 = RxDone / TxDone

	telemetry.L().Infof("sx127x: initialized, version=%#x sf=%d bw=%d freq=%.3fMHz", version, sf, bwHz, freqMHz)
	return nil
}
