package sx127x

import (
	"fmt"
	"time"

	"github.com/patio-mesh/telemetry-core/internal/radio"
)

// Init re-applies the configuration this Device was constructed with. New
// already brings the chip up, so this is mainly useful after a hardware
// reset triggered outside this package.
func (d *Device) Init() error {
	return d.init(d.cfg)
}

// Send transmits data synchronously, blocking until the chip reports
// TxDone or the transmission times out. data must fit in one LoRa packet
// (<=250 bytes).
func (d *Device) Send(data []byte) (bool, error) {
	if len(data) > maxPacketBytes {
		return false, fmt.Errorf("sx127x: payload too large (%d bytes), limit is %d", len(data), maxPacketBytes)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.writeRegister(regOpMode, modeLongRangeMode|modeStdby)
	d.writeRegister(regFifoAddrPtr, 0x00)
	d.writeRegister(regPayloadLength, byte(len(data)))
	d.writeBurst(regFifo, data)
	d.writeRegister(regOpMode, modeLongRangeMode|modeTx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		flags := d.readRegister(regIrqFlags)
		if flags&irqTxDone != 0 {
			d.writeRegister(regIrqFlags, irqTxDone)
			return true, nil
		}
		time.Sleep(time.Millisecond)
	}
	return false, fmt.Errorf("sx127x: timeout waiting for TxDone")
}

// Receive blocks up to timeout waiting for an incoming packet, returning
// nil, nil if nothing arrives in that window. A packet that fails CRC is
// silently dropped, matching a timeout from the caller's point of view.
func (d *Device) Receive(timeout time.Duration) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.writeRegister(regOpMode, modeLongRangeMode|modeRxContinuous)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		flags := d.readRegister(regIrqFlags)
		if flags&irqRxDone == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		d.writeRegister(regIrqFlags, flags)
		if flags&irqPayloadCRCError != 0 {
			return nil, nil
		}

		currentAddr := d.readRegister(regFifoRxCurrentAddr)
		n := d.readRegister(regRxNbBytes)
		d.writeRegister(regFifoAddrPtr, currentAddr)
		data := d.readBurst(regFifo, int(n))

		pktRSSI := int(d.readRegister(regPktRssiValue))
		d.lastRSSI = pktRSSI - 157
		d.haveRSSI = true

		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	return nil, nil
}

// LastRSSI returns the RSSI (dBm) of the most recently received packet.
func (d *Device) LastRSSI() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRSSI, d.haveRSSI
}

// SetFrequency retunes the carrier, in MHz.
func (d *Device) SetFrequency(mhz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	frf := uint64(mhz * 1e6 / fStep)
	d.writeRegister(regFrfMsb, byte(frf>>16))
	d.writeRegister(regFrfMid, byte(frf>>8))
	d.writeRegister(regFrfLsb, byte(frf))
	return nil
}

// SpreadingFactor returns the currently configured spreading factor.
func (d *Device) SpreadingFactor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sf
}

// SetSpreadingFactor sets the LoRa spreading factor (7-12).
func (d *Device) SetSpreadingFactor(sf int) error {
	if sf < 7 || sf > 12 {
		return fmt.Errorf("sx127x: spreading factor must be 7-12, got %d", sf)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg2 := d.readRegister(regModemConfig2)
	cfg2 = (cfg2 & 0x0F) | byte(sf<<4)
	d.writeRegister(regModemConfig2, cfg2)
	d.writeRegister(regSymbTimeoutLsb, 0x08)

	d.sf = sf
	return nil
}

// SignalBandwidth returns the currently configured channel bandwidth, in Hz.
func (d *Device) SignalBandwidth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bwHz
}

// SetSignalBandwidth sets the channel bandwidth. Only 125kHz, 250kHz, and
// 500kHz are supported, matching the gateway/node's AB01 bandwidth codes.
func (d *Device) SetSignalBandwidth(hz int) error {
	code, ok := bwHzToCode[hz]
	if !ok {
		return fmt.Errorf("sx127x: unsupported bandwidth %dHz", hz)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg1 := d.readRegister(regModemConfig1)
	cfg1 = (cfg1 & 0x0F) | (code << 4)
	d.writeRegister(regModemConfig1, cfg1)
	d.bwHz = hz
	return nil
}

// TxPower returns the currently configured transmit power, in dBm.
func (d *Device) TxPower() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txPower
}

// SetTxPower sets the transmit power (5-23 dBm), using the PA_BOOST pin
// as the original hardware (a common module wiring choice) requires —
// matches the Adafruit RFM9x driver's accepted range, which the original
// gateway/node configs rely on (tx_power: 23 throughout original_source).
// Above 20dBm engages the PA_DAC high-power setting, which adds about 3dB
// on top of the PA_CONFIG OutputPower field, so the field is programmed
// 3dB below the requested power.
func (d *Device) SetTxPower(dBm int) error {
	if dBm < 5 || dBm > 23 {
		return fmt.Errorf("sx127x: tx power must be 5-23 dBm, got %d", dBm)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	power := dBm
	if dBm > 20 {
		d.writeRegister(regPaDac, 0x87) // +20dBm high-power mode
		power = dBm - 3
	} else {
		d.writeRegister(regPaDac, 0x84)
	}

	outputPower := power - 5
	if outputPower < 0 {
		outputPower = 0
	}
	if outputPower > 15 {
		outputPower = 15
	}
	d.writeRegister(regPaConfig, 0x80|byte(outputPower))
	d.txPower = dBm
	return nil
}

// Close releases the underlying SPI resource.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeRegister(regOpMode, modeLongRangeMode|modeSleep)
	if d.port != nil {
		return d.port.Close()
	}
	return nil
}

var _ radio.Radio = (*Device)(nil)
