package jtag

import (
	"fmt"
	"sync"
)

// Transport moves one CMSIS-DAP command and its reply. The usb subpackage
// provides one for real probes; VirtualProbe is the in-process one.
type Transport interface {
	WriteRead(cmd []byte) ([]byte, error)
	GetPacketSize() int
	Close() error
}

// DefaultPacketSize is the CMSIS-DAP v1 HID report size.
const DefaultPacketSize = 64

// CMSISDAPAdapter implements the Adapter interface for CMSIS-DAP probes.
// The probe may be real hardware behind a usb.Transport or a VirtualProbe.
type CMSISDAPAdapter struct {
	transport Transport
	protocol  *CMSISDAPProtocol

	info      AdapterInfo
	speedHz   int
	connected bool

	mu sync.Mutex // Protect concurrent access
}

// DefaultSpeed is the TCK frequency selected when an adapter is opened.
const DefaultSpeed = 1_000_000

// OpenCMSISDAP queries the probe behind transport, connects in JTAG mode
// and selects DefaultSpeed. The caller keeps ownership of transport until
// the adapter is closed.
func OpenCMSISDAP(transport Transport) (*CMSISDAPAdapter, error) {
	adapter := &CMSISDAPAdapter{
		transport: transport,
		protocol:  NewCMSISDAPProtocol(transport.GetPacketSize()),
	}
	if err := adapter.queryInfo(); err != nil {
		return nil, fmt.Errorf("jtag: query probe info: %w", err)
	}
	if err := adapter.connect(); err != nil {
		return nil, fmt.Errorf("jtag: connect: %w", err)
	}
	if err := adapter.SetSpeed(DefaultSpeed); err != nil {
		return nil, fmt.Errorf("jtag: set default speed: %w", err)
	}
	return adapter, nil
}

func (a *CMSISDAPAdapter) infoString(id byte) (string, error) {
	resp, err := a.transport.WriteRead(a.protocol.EncodeInfo(id))
	if err != nil {
		return "", err
	}
	return a.protocol.DecodeInfo(resp)
}

// queryInfo retrieves device information from the probe. Only the vendor
// string is mandatory.
func (a *CMSISDAPAdapter) queryInfo() error {
	vendor, err := a.infoString(InfoVendorID)
	if err != nil {
		return err
	}
	product, _ := a.infoString(InfoProductID)
	serial, _ := a.infoString(InfoSerialNum)
	firmware, _ := a.infoString(InfoFirmwareVer)

	if resp, err := a.transport.WriteRead(a.protocol.EncodeInfo(InfoPacketSize)); err == nil {
		if size, err := a.protocol.DecodeInfoPacketSize(resp); err == nil && size > 0 && size < a.protocol.PacketSize {
			a.protocol.PacketSize = size
		}
	}

	a.info = AdapterInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		MinFrequency: 1000,       // 1 kHz
		MaxFrequency: 10_000_000, // 10 MHz (typical for CMSIS-DAP)
		SupportsSRST: true,
		SupportsTRST: true,
	}
	return nil
}

func (a *CMSISDAPAdapter) connect() error {
	resp, err := a.transport.WriteRead(a.protocol.EncodeConnect(PortJTAG))
	if err != nil {
		return err
	}
	port, err := a.protocol.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if port != PortJTAG {
		return fmt.Errorf("jtag: probe connected port %d, want JTAG", port)
	}
	a.connected = true
	return nil
}

// Info returns adapter capabilities
func (a *CMSISDAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

// ShiftIR clocks an instruction scan. The TMS pattern decides the path.
func (a *CMSISDAPAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shiftRegister(tms, tdi, bits)
}

// ShiftDR clocks a data scan. The TMS pattern decides the path.
func (a *CMSISDAPAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shiftRegister(tms, tdi, bits)
}

func (a *CMSISDAPAdapter) shiftRegister(tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tdo := make([]byte, (bits+7)/8)
	pos := 0
	for _, batch := range a.batches(buildSequences(tms, tdi, bits)) {
		resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGSequence(batch))
		if err != nil {
			return nil, fmt.Errorf("jtag: shift: %w", err)
		}
		captured, err := a.protocol.DecodeJTAGSequence(resp, batch)
		if err != nil {
			return nil, fmt.Errorf("jtag: shift: %w", err)
		}
		for i, seq := range batch {
			n := seq.TCKCount()
			for b := 0; b < n; b++ {
				SetBit(tdo, pos+b, GetBit(captured[i], b))
			}
			pos += n
		}
	}
	return tdo, nil
}

// batches groups sequences so that each command and its reply fit a packet.
func (a *CMSISDAPAdapter) batches(seqs []JTAGSequence) [][]JTAGSequence {
	limit := a.protocol.PacketSize
	var out [][]JTAGSequence
	var cur []JTAGSequence
	cmdLen, respLen := 2, 2
	for _, seq := range seqs {
		n := (seq.TCKCount() + 7) / 8
		if len(cur) > 0 && (cmdLen+1+n > limit || respLen+n > limit || len(cur) == 255) {
			out = append(out, cur)
			cur, cmdLen, respLen = nil, 2, 2
		}
		cur = append(cur, seq)
		cmdLen += 1 + n
		respLen += n
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// buildSequences splits per-bit TMS into runs of constant TMS of at most 64
// clocks, each capturing TDO.
func buildSequences(tms, tdi []byte, bits int) []JTAGSequence {
	var sequences []JTAGSequence
	for pos := 0; pos < bits; {
		level := GetBit(tms, pos)
		n := 1
		for pos+n < bits && n < MaxSequenceBits && GetBit(tms, pos+n) == level {
			n++
		}
		sequences = append(sequences, NewJTAGSequence(n, level, true, ExtractBits(tdi, pos, n)))
		pos += n
	}
	return sequences
}

// ResetTAP resets the TAP. A hard reset pulses nTRST through DAP_SWJ_Pins;
// a soft reset clocks five cycles with TMS high.
func (a *CMSISDAPAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		for _, level := range []byte{0, PinNTRST} {
			resp, err := a.transport.WriteRead(a.protocol.EncodeSWJPins(level, PinNTRST, 10))
			if err != nil {
				return fmt.Errorf("jtag: drive nTRST: %w", err)
			}
			if _, err := a.protocol.DecodeSWJPins(resp); err != nil {
				return fmt.Errorf("jtag: drive nTRST: %w", err)
			}
		}
		return nil
	}

	seq := []JTAGSequence{NewJTAGSequence(5, true, false, []byte{0x00})}
	resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGSequence(seq))
	if err != nil {
		return fmt.Errorf("jtag: TAP reset: %w", err)
	}
	_, err = a.protocol.DecodeJTAGSequence(resp, seq)
	return err
}

// ResetTarget runs the probe's target reset sequence.
func (a *CMSISDAPAdapter) ResetTarget() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.transport.WriteRead(a.protocol.EncodeResetTarget())
	if err != nil {
		return fmt.Errorf("jtag: reset target: %w", err)
	}
	return a.protocol.DecodeResetTarget(resp)
}

// SetSpeed sets the TCK frequency
func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("jtag: frequency %d Hz out of range [%d, %d]",
			hz, a.info.MinFrequency, a.info.MaxFrequency)
	}

	resp, err := a.transport.WriteRead(a.protocol.EncodeSetClock(uint32(hz)))
	if err != nil {
		return fmt.Errorf("jtag: set speed: %w", err)
	}
	if err := a.protocol.DecodeSetClock(resp); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

// Speed returns the last frequency accepted by the probe.
func (a *CMSISDAPAdapter) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speedHz
}

// Close disconnects and releases resources
func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		if resp, err := a.transport.WriteRead(a.protocol.EncodeDisconnect()); err == nil {
			_ = a.protocol.DecodeDisconnect(resp)
		}
		a.connected = false
	}
	return a.transport.Close()
}

// ConfigureJTAGChain configures the JTAG chain with IR lengths
// This is a CMSIS-DAP specific extension not part of the Adapter interface
func (a *CMSISDAPAdapter) ConfigureJTAGChain(irLengths []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGConfigure(irLengths))
	if err != nil {
		return fmt.Errorf("jtag: configure chain: %w", err)
	}
	return a.protocol.DecodeJTAGConfigure(resp)
}

// ReadIDCODE reads the IDCODE from a specific device in the chain
// This is a CMSIS-DAP specific extension not part of the Adapter interface
func (a *CMSISDAPAdapter) ReadIDCODE(deviceIndex byte) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGIDCODE(deviceIndex))
	if err != nil {
		return 0, fmt.Errorf("jtag: read IDCODE: %w", err)
	}
	return a.protocol.DecodeJTAGIDCODE(resp)
}
