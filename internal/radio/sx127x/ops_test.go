package sx127x

import (
	"testing"
	"time"
)

// fakeSPI is a scripted spiConn double modeling just enough SX127x
// register behavior (generic register read/write, FIFO addressed by
// RegFifoAddrPtr, IRQ flags) for the driver logic above it to be tested
// without real hardware.
type fakeSPI struct {
	regs [256]byte
	fifo [256]byte
}

func newFakeSPI() *fakeSPI {
	f := &fakeSPI{}
	f.regs[regVersion] = 0x12
	return f
}

func (f *fakeSPI) Tx(w, r []byte) error {
	reg := w[0] &^ writeBit
	write := w[0]&writeBit != 0

	if reg == regFifo {
		ptr := f.regs[regFifoAddrPtr]
		if write {
			for i, b := range w[1:] {
				f.fifo[int(ptr)+i] = b
			}
		} else if len(r) > 1 {
			for i := range r[1:] {
				r[1+i] = f.fifo[int(ptr)+i]
			}
		}
		return nil
	}

	if write {
		f.regs[reg] = w[1]
		// Simulate instant TX completion once the chip is commanded into
		// TX mode, so Send doesn't block waiting on real RF timing.
		if reg == regOpMode && w[1]&modeTx != 0 {
			f.regs[regIrqFlags] |= irqTxDone
		}
	} else if len(r) > 1 {
		r[1] = f.regs[reg]
	}
	return nil
}

// queueRx makes the next Receive() call see data waiting, as if it had
// just arrived over the air.
func (f *fakeSPI) queueRx(data []byte, pktRSSIRaw byte, crcError bool) {
	f.regs[regFifoRxCurrentAddr] = 0x00
	f.regs[regRxNbBytes] = byte(len(data))
	copy(f.fifo[:], data)
	f.regs[regPktRssiValue] = pktRSSIRaw
	flags := byte(irqRxDone)
	if crcError {
		flags |= irqPayloadCRCError
	}
	f.regs[regIrqFlags] = flags
}

func newTestDevice() (*Device, *fakeSPI) {
	f := newFakeSPI()
	d := &Device{conn: f, cfg: Config{
		FrequencyMHz:      915.0,
		SpreadingFactor:   9,
		SignalBandwidthHz: 125000,
		TxPowerDBm:        14,
	}}
	d.init(d.cfg)
	return d, f
}

func TestInitConfiguresDefaults(t *testing.T) {
	d, _ := newTestDevice()
	if d.SpreadingFactor() != 9 {
		t.Fatalf("SpreadingFactor() = %d; want 9", d.SpreadingFactor())
	}
	if d.SignalBandwidth() != 125000 {
		t.Fatalf("SignalBandwidth() = %d; want 125000", d.SignalBandwidth())
	}
	if d.TxPower() != 14 {
		t.Fatalf("TxPower() = %d; want 14", d.TxPower())
	}
}

func TestSetSpreadingFactorRejectsOutOfRange(t *testing.T) {
	d, _ := newTestDevice()
	if err := d.SetSpreadingFactor(13); err == nil {
		t.Fatal("expected error for spreading factor 13")
	}
	if err := d.SetSpreadingFactor(5); err == nil {
		t.Fatal("expected error for spreading factor 5")
	}
}

func TestSetSignalBandwidthRejectsUnsupportedValue(t *testing.T) {
	d, _ := newTestDevice()
	if err := d.SetSignalBandwidth(62500); err == nil {
		t.Fatal("expected error for unsupported bandwidth")
	}
}

func TestSetSignalBandwidthWritesModemConfig1(t *testing.T) {
	d, f := newTestDevice()
	if err := d.SetSignalBandwidth(500000); err != nil {
		t.Fatalf("SetSignalBandwidth: %v", err)
	}
	if got := f.regs[regModemConfig1] >> 4; got != bwHzToCode[500000] {
		t.Fatalf("RegModemConfig1 bw field = %#x; want %#x", got, bwHzToCode[500000])
	}
	if d.SignalBandwidth() != 500000 {
		t.Fatalf("SignalBandwidth() = %d; want 500000", d.SignalBandwidth())
	}
}

func TestSetTxPowerRejectsOutOfRange(t *testing.T) {
	d, _ := newTestDevice()
	if err := d.SetTxPower(1); err == nil {
		t.Fatal("expected error for tx power 1")
	}
	if err := d.SetTxPower(24); err == nil {
		t.Fatal("expected error for tx power 24")
	}
}

func TestSetTxPowerHighPowerModeStaysWithinRegisterField(t *testing.T) {
	d, f := newTestDevice()
	if err := d.SetTxPower(23); err != nil {
		t.Fatalf("SetTxPower(23): %v", err)
	}
	if f.regs[regPaDac] != 0x87 {
		t.Fatalf("PaDac = %#x; want 0x87 (high-power mode)", f.regs[regPaDac])
	}
	if got := f.regs[regPaConfig] &^ 0x80; got > 0x0F {
		t.Fatalf("PaConfig OutputPower field = %#x; overflowed the 4-bit range", got)
	}
	if d.TxPower() != 23 {
		t.Fatalf("TxPower() = %d; want 23", d.TxPower())
	}
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	d, _ := newTestDevice()
	big := make([]byte, maxPacketBytes+1)
	if _, err := d.Send(big); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestSendWritesFIFOAndSignalsDone(t *testing.T) {
	d, f := newTestDevice()
	payload := []byte("hello lora")

	ok, err := d.Send(payload)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ok {
		t.Fatal("Send returned ok=false")
	}
	for i, b := range payload {
		if f.fifo[i] != b {
			t.Fatalf("fifo[%d] = %#x; want %#x", i, f.fifo[i], b)
		}
	}
}

func TestReceiveReturnsNilOnTimeout(t *testing.T) {
	d, _ := newTestDevice()
	data, err := d.Receive(5 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if data != nil {
		t.Fatalf("data = %v; want nil on timeout", data)
	}
}

func TestReceiveReturnsPacketAndRSSI(t *testing.T) {
	d, f := newTestDevice()
	f.queueRx([]byte("hi"), 100, false)

	data, err := d.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("data = %q; want %q", data, "hi")
	}

	rssi, ok := d.LastRSSI()
	if !ok {
		t.Fatal("LastRSSI ok=false after a successful receive")
	}
	if want := 100 - 157; rssi != want {
		t.Fatalf("LastRSSI() = %d; want %d", rssi, want)
	}
}

func TestReceiveDropsCRCErrorPacket(t *testing.T) {
	d, f := newTestDevice()
	f.queueRx([]byte("garbled"), 50, true)

	data, err := d.Receive(5 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if data != nil {
		t.Fatalf("data = %v; want nil for a CRC-failed packet", data)
	}
}

func TestSetFrequencyWritesFrfRegisters(t *testing.T) {
	d, f := newTestDevice()
	if err := d.SetFrequency(915.0); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	frf := uint64(f.regs[regFrfMsb])<<16 | uint64(f.regs[regFrfMid])<<8 | uint64(f.regs[regFrfLsb])
	gotMHz := float64(frf) * fStep / 1e6
	if diff := gotMHz - 915.0; diff > 0.01 || diff < -0.01 {
		t.Fatalf("round-tripped frequency = %.4fMHz; want ~915MHz", gotMHz)
	}
}
