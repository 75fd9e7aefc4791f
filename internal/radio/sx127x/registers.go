package sx127x

// SX127x register map, adapted from Semtech's datasheet. Only the
// registers C3/C5 need (mode control, frequency, modem config, FIFO,
// IRQ flags, RSSI) are named; the rest of the map is unused here.
const (
	regFifo          = 0x00
	regOpMode        = 0x01
	regFrfMsb        = 0x06
	regFrfMid        = 0x07
	regFrfLsb        = 0x08
	regPaConfig      = 0x09
	regLna           = 0x0C
	regFifoAddrPtr   = 0x0D
	regFifoTxBaseAddr = 0x0E
	regFifoRxBaseAddr = 0x0F
	regFifoRxCurrentAddr = 0x10
	regIrqFlags      = 0x12
	regRxNbBytes     = 0x13
	regPktSnrValue   = 0x19
	regPktRssiValue  = 0x1A
	regModemConfig1  = 0x1D
	regModemConfig2  = 0x1E
	regSymbTimeoutLsb = 0x1F
	regPreambleMsb   = 0x20
	regPreambleLsb   = 0x21
	regPayloadLength = 0x22
	regModemConfig3  = 0x26
	regDioMapping1   = 0x40
	regVersion       = 0x42
	regPaDac         = 0x4D
)

// RegOpMode mode bits (bits 0-2), with the LoRa long-range-mode bit set.
const (
	modeLongRangeMode = 1 << 7
	modeSleep         = 0x00
	modeStdby         = 0x01
	modeTx            = 0x03
	modeRxContinuous  = 0x05
)

// RegIrqFlags bits.
const (
	irqRxDone      = 1 << 6
	irqPayloadCRCError = 1 << 5
	irqTxDone      = 1 << 3
)

const fXOSC = 32000000.0 // crystal frequency, Hz
const fStep = fXOSC / (1 << 19)

const maxPacketBytes = 250

// bwHzToCode maps a channel bandwidth in Hz to the SX1276/77/78/79
// RegModemConfig1 BW field (bits 7-4).
var bwHzToCode = map[int]byte{
	125000: 0x07,
	250000: 0x08,
	500000: 0x09,
}

var bwCodeToHz = map[byte]int{
	0x07: 125000,
	0x08: 250000,
	0x09: 500000,
}
