package jtag

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Resetter is implemented by targets that support a full reset through
// DAP_ResetTarget.
type Resetter interface {
	Reset()
}

// VirtualProbe is a CMSIS-DAP probe in software. It answers the JTAG subset
// of the command set by bit-banging a PinTarget, so a CMSISDAPAdapter can
// drive a simulated device through the same code path as real hardware.
type VirtualProbe struct {
	Vendor   string
	Product  string
	Serial   string
	Firmware string
	// IRLength is the instruction register width of the single TAP behind
	// the probe. DAP_JTAG_Configure must describe exactly that chain.
	IRLength int

	pins      *PinAdapter
	target    PinTarget
	protocol  *CMSISDAPProtocol
	tickRate  int
	connected bool
	closed    bool

	mu sync.Mutex
}

var _ Transport = (*VirtualProbe)(nil)

// DefaultIRLength is the instruction register width of a RISC-V DTM.
const DefaultIRLength = 5

// NewVirtualProbe wraps target, clocked at tickRate Hz.
func NewVirtualProbe(target PinTarget, tickRate int) *VirtualProbe {
	return &VirtualProbe{
		Vendor:   "OpenTraceLab",
		Product:  "Virtual CMSIS-DAP",
		Serial:   "SIM0001",
		Firmware: "2.1.0",
		IRLength: DefaultIRLength,
		pins:     NewPinAdapter(target, tickRate),
		target:   target,
		protocol: NewCMSISDAPProtocol(DefaultPacketSize),
		tickRate: tickRate,
	}
}

// Pins exposes the underlying bit-bang driver.
func (p *VirtualProbe) Pins() *PinAdapter { return p.pins }

// GetPacketSize implements Transport.
func (p *VirtualProbe) GetPacketSize() int { return p.protocol.PacketSize }

// Close implements Transport.
func (p *VirtualProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WriteRead executes one command packet against the target.
func (p *VirtualProbe) WriteRead(cmd []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("jtag: virtual probe closed")
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("jtag: empty command")
	}
	if len(cmd) > p.protocol.PacketSize {
		return nil, fmt.Errorf("jtag: command of %d bytes exceeds packet size %d", len(cmd), p.protocol.PacketSize)
	}

	switch cmd[0] {
	case CmdInfo:
		return p.info(cmd)
	case CmdConnect:
		return p.connect(cmd)
	case CmdDisconnect:
		p.connected = false
		return p.protocol.EncodeStatusResponse(CmdDisconnect, StatusOK), nil
	case CmdSWJClock:
		return p.setClock(cmd)
	case CmdSWJPins:
		return p.swjPins(cmd)
	case CmdJTAGSequence:
		return p.sequence(cmd)
	case CmdJTAGConfigure:
		return p.configure(cmd)
	case CmdJTAGIDCODE:
		return p.idcode(cmd)
	case CmdResetTarget:
		return p.resetTarget(), nil
	default:
		return []byte{CmdInvalid}, nil
	}
}

func (p *VirtualProbe) info(cmd []byte) ([]byte, error) {
	if len(cmd) < 2 {
		return nil, fmt.Errorf("jtag: DAP_Info without ID")
	}
	switch cmd[1] {
	case InfoVendorID:
		return p.protocol.EncodeInfoResponse([]byte(p.Vendor)), nil
	case InfoProductID:
		return p.protocol.EncodeInfoResponse([]byte(p.Product)), nil
	case InfoSerialNum:
		return p.protocol.EncodeInfoResponse([]byte(p.Serial)), nil
	case InfoFirmwareVer:
		return p.protocol.EncodeInfoResponse([]byte(p.Firmware)), nil
	case InfoCapabilities:
		return p.protocol.EncodeInfoResponse([]byte{0x02}), nil // JTAG only
	case InfoPacketCount:
		return p.protocol.EncodeInfoResponse([]byte{1}), nil
	case InfoPacketSize:
		size := make([]byte, 2)
		binary.LittleEndian.PutUint16(size, uint16(p.protocol.PacketSize))
		return p.protocol.EncodeInfoResponse(size), nil
	default:
		return p.protocol.EncodeInfoResponse(nil), nil
	}
}

func (p *VirtualProbe) connect(cmd []byte) ([]byte, error) {
	port := byte(PortDefault)
	if len(cmd) > 1 {
		port = cmd[1]
	}
	if port != PortDefault && port != PortJTAG {
		return p.protocol.EncodeStatusResponse(CmdConnect, 0), nil
	}
	p.connected = true
	return p.protocol.EncodeStatusResponse(CmdConnect, PortJTAG), nil
}

func (p *VirtualProbe) setClock(cmd []byte) ([]byte, error) {
	if len(cmd) < 5 {
		return nil, fmt.Errorf("jtag: short DAP_SWJ_Clock")
	}
	hz := binary.LittleEndian.Uint32(cmd[1:5])
	if err := p.pins.SetSpeed(int(hz)); err != nil {
		return p.protocol.EncodeStatusResponse(CmdSWJClock, StatusError), nil
	}
	return p.protocol.EncodeStatusResponse(CmdSWJClock, StatusOK), nil
}

// swjPins only drives nTRST; the other JTAG pins belong to the sequencer.
func (p *VirtualProbe) swjPins(cmd []byte) ([]byte, error) {
	if len(cmd) < 7 {
		return nil, fmt.Errorf("jtag: short DAP_SWJ_Pins")
	}
	output, sel := cmd[1], cmd[2]
	wait := binary.LittleEndian.Uint32(cmd[3:7])

	p.pins.mu.Lock()
	if sel&PinNTRST != 0 {
		ticks := int(uint64(wait) * uint64(p.tickRate) / 1_000_000)
		if ticks < TRSTHoldTicks {
			ticks = TRSTHoldTicks
		}
		p.pins.setTRST(output&PinNTRST == 0, ticks)
	}
	in := byte(PinNRESET)
	if !p.pins.pins.TRST {
		in |= PinNTRST
	}
	if p.target.TDO() {
		in |= PinTDO
	}
	p.pins.mu.Unlock()

	return []byte{CmdSWJPins, in}, nil
}

func (p *VirtualProbe) sequence(cmd []byte) ([]byte, error) {
	seqs, err := p.protocol.ParseJTAGSequence(cmd)
	if err != nil {
		return p.protocol.EncodeStatusResponse(CmdJTAGSequence, StatusError), nil
	}

	var captured [][]byte
	for _, seq := range seqs {
		n := seq.TCKCount()
		tms := ConstBits(n, seq.TMS())
		tdo, err := p.pins.Sequence(tms, seq.TDI, n)
		if err != nil {
			return p.protocol.EncodeStatusResponse(CmdJTAGSequence, StatusError), nil
		}
		if seq.CaptureTDO() {
			captured = append(captured, tdo)
		}
	}
	return p.protocol.EncodeJTAGSequenceResponse(captured), nil
}

// configure accepts only the chain actually present: one TAP of IRLength
// bits.
func (p *VirtualProbe) configure(cmd []byte) ([]byte, error) {
	if len(cmd) < 3 || cmd[1] != 1 || int(cmd[2]) != p.IRLength {
		return p.protocol.EncodeStatusResponse(CmdJTAGConfigure, StatusError), nil
	}
	return p.protocol.EncodeStatusResponse(CmdJTAGConfigure, StatusOK), nil
}

// idcode resets the TAP, scans 32 bits of the data register selected after
// reset and parks in Run-Test/Idle. Only a single-device chain is modelled.
func (p *VirtualProbe) idcode(cmd []byte) ([]byte, error) {
	if len(cmd) < 2 || cmd[1] != 0 {
		return p.protocol.EncodeStatusResponse(CmdJTAGIDCODE, StatusError), nil
	}

	// 5×1 reset, 0 idle, 1 select-DR, 0 capture, 0 shift, then 32 data bits
	// leaving on the last, 1 update, 0 idle.
	const head, data = 9, 32
	bits := head + data + 2
	tms := make([]byte, (bits+7)/8)
	for i := 0; i < 5; i++ {
		SetBit(tms, i, true)
	}
	SetBit(tms, 6, true)
	SetBit(tms, head+data-1, true)
	SetBit(tms, head+data, true)

	tdo, err := p.pins.Sequence(tms, nil, bits)
	if err != nil {
		return p.protocol.EncodeStatusResponse(CmdJTAGIDCODE, StatusError), nil
	}
	id := uint32(UnpackBits(ExtractBits(tdo, head, data), data))
	return p.protocol.EncodeJTAGIDCODEResponse(id), nil
}

func (p *VirtualProbe) resetTarget() []byte {
	r, ok := p.target.(Resetter)
	if !ok {
		return []byte{CmdResetTarget, StatusOK, 0}
	}
	r.Reset()
	return []byte{CmdResetTarget, StatusOK, 1}
}
