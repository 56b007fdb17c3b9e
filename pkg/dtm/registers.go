package dtm

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/tap"
)

// IRLength is the width of the instruction register.
const IRLength = 5

// Instruction is a value of the instruction register.
type Instruction uint8

const (
	InstIDCode Instruction = 0x01
	InstDTMCS  Instruction = 0x10
	InstDMI    Instruction = 0x11
	InstBypass Instruction = 0x1F
)

// Register identifies one of the data registers.
type Register uint8

const (
	RegBypass Register = iota
	RegIDCode
	RegDTMCS
	RegDMI
)

var registerNames = map[Register]string{
	RegBypass: "BYPASS",
	RegIDCode: "IDCODE",
	RegDTMCS:  "DTMCS",
	RegDMI:    "DMI",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Register(%d)", r)
}

// Register lengths in bits.
const (
	IDCodeLength = 32
	DTMCSLength  = 32
	DMILength    = dmi.AddrBits + 32 + 2
	BypassLength = 1
)

// Length returns the width of r in bits.
func (r Register) Length() int {
	switch r {
	case RegIDCode:
		return IDCodeLength
	case RegDTMCS:
		return DTMCSLength
	case RegDMI:
		return DMILength
	default:
		return BypassLength
	}
}

// Register returns the data register selected by i.
func (i Instruction) Register() Register {
	switch i & (1<<IRLength - 1) {
	case InstIDCode:
		return RegIDCode
	case InstDTMCS:
		return RegDTMCS
	case InstDMI:
		return RegDMI
	default:
		return RegBypass
	}
}

func (i Instruction) String() string {
	return fmt.Sprintf("%05b(%s)", uint8(i), i.Register())
}

// DTMCS field layout.
const (
	DTMCSVersion      = 1
	DTMCSAbits        = dmi.AddrBits
	DTMCSIdle         = 2
	DTMCSDMIReset     = 1 << 16
	DTMCSDMIHardReset = 1 << 17

	dtmcsIdleShift    = 12
	dtmcsDMIStatShift = 10
	dtmcsAbitsShift   = 4
)

// DTMCSValue is the value captured into DTMCS for a given dmistat. The two
// reset request bits always read zero.
func DTMCSValue(status dmi.Status) uint32 {
	return DTMCSIdle<<dtmcsIdleShift |
		uint32(status&3)<<dtmcsDMIStatShift |
		DTMCSAbits<<dtmcsAbitsShift |
		DTMCSVersion
}

// DTMCS is a decoded dtmcs value.
type DTMCS struct {
	Version uint8
	Abits   uint8
	DMIStat dmi.Status
	Idle    uint8
}

// DecodeDTMCS splits a captured dtmcs value into its fields.
func DecodeDTMCS(v uint32) DTMCS {
	return DTMCS{
		Version: uint8(v & 0xF),
		Abits:   uint8(v >> dtmcsAbitsShift & 0x3F),
		DMIStat: dmi.Status(v >> dtmcsDMIStatShift & 3),
		Idle:    uint8(v >> dtmcsIdleShift & 7),
	}
}

// EncodeDMI packs a DMI scan value.
func EncodeDMI(addr uint8, data uint32, op uint8) uint64 {
	return uint64(addr&dmi.AddrMask)<<34 | uint64(data)<<2 | uint64(op&3)
}

// DecodeDMI unpacks a DMI scan value.
func DecodeDMI(v uint64) (addr uint8, data uint32, op uint8) {
	return uint8(v >> 34 & dmi.AddrMask), uint32(v >> 2), uint8(v & 3)
}

const dmiMask = 1<<DMILength - 1

// bank is the set of shift registers behind the TAP. Only the register
// selected by ir is shifted at any time.
type bank struct {
	ir     Instruction
	idcode uint32
	dtmcs  uint32
	dmi    uint64
	bypass bool

	idValue uint32
}

func (b *bank) reset() {
	*b = bank{ir: InstIDCode, idValue: b.idValue}
}

func (b *bank) selected() Register {
	return b.ir.Register()
}

func (b *bank) captureIR() {
	b.ir = InstIDCode
}

func (b *bank) shiftIR(tdi bool) {
	b.ir = b.ir>>1 | Instruction(bit(tdi))<<(IRLength-1)
}

// live is the arbiter state a DR capture snapshots.
type live struct {
	status dmi.Status
	addr   uint8
	rdata  uint32
}

func (b *bank) captureDR(l live) {
	switch b.selected() {
	case RegIDCode:
		b.idcode = b.idValue | 1
	case RegDTMCS:
		b.dtmcs = DTMCSValue(l.status)
	case RegDMI:
		b.dmi = EncodeDMI(l.addr, l.rdata, uint8(l.status))
	default:
		b.bypass = false
	}
}

func (b *bank) shiftDR(tdi bool) {
	in := bit(tdi)
	switch b.selected() {
	case RegIDCode:
		b.idcode = b.idcode>>1 | uint32(in)<<(IDCodeLength-1)
	case RegDTMCS:
		b.dtmcs = b.dtmcs>>1 | uint32(in)<<(DTMCSLength-1)
	case RegDMI:
		b.dmi = (b.dmi>>1 | uint64(in)<<(DMILength-1)) & dmiMask
	default:
		b.bypass = tdi
	}
}

// tdo is the serial output while the TAP is in state s.
func (b *bank) tdo(s tap.State) bool {
	if s == tap.StateShiftIR {
		return b.ir&1 == 1
	}
	switch b.selected() {
	case RegIDCode:
		return b.idcode&1 == 1
	case RegDTMCS:
		return b.dtmcs&1 == 1
	case RegDMI:
		return b.dmi&1 == 1
	default:
		return b.bypass
	}
}

// dmiUpdate turns the shifted DMI contents into an arbiter event.
func (b *bank) dmiUpdate() *dmi.UpdateEvent {
	addr, data, op := DecodeDMI(b.dmi)
	return &dmi.UpdateEvent{Addr: addr, Data: data, Op: dmi.Op(op)}
}

// dtmcsUpdate decodes the reset requests from the shifted DTMCS contents.
func (b *bank) dtmcsUpdate() (soft, hard bool) {
	return b.dtmcs&DTMCSDMIReset != 0, b.dtmcs&DTMCSDMIHardReset != 0
}

func bit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
