package idcode

import "fmt"

// An 11-bit JEP106 code is the continuation count (bank - 1) in bits [10:7]
// and the identity code without its parity bit in bits [6:0].
const (
	jepIDBits = 7
	jepIDMask = 1<<jepIDBits - 1
)

// manufacturers holds the JEP106 codes most often seen on RISC-V debug
// targets and the FPGAs they are prototyped on.
var manufacturers = map[uint16]Manufacturer{
	0x001: {Code: 0x001, Name: "AMD", Abbreviation: "AMD"},
	0x009: {Code: 0x009, Name: "Intel", Abbreviation: "Intel"},
	0x017: {Code: 0x017, Name: "Texas Instruments", Abbreviation: "TI"},
	0x01F: {Code: 0x01F, Name: "Atmel", Abbreviation: "Atmel"},
	0x020: {Code: 0x020, Name: "STMicroelectronics", Abbreviation: "STM"},
	0x021: {Code: 0x021, Name: "Lattice Semiconductor", Abbreviation: "Lattice"},
	0x049: {Code: 0x049, Name: "Xilinx", Abbreviation: "Xilinx"},
	0x06E: {Code: 0x06E, Name: "Altera", Abbreviation: "Altera"},
	0x23B: {Code: 0x23B, Name: "ARM Ltd", Abbreviation: "ARM"},
	0x244: {Code: 0x244, Name: "Nordic Semiconductor", Abbreviation: "Nordic"},
	0x489: {Code: 0x489, Name: "SiFive", Abbreviation: "SiFive"},
	0x612: {Code: 0x612, Name: "Espressif Systems", Abbreviation: "Espressif"},
}

// Bank returns the 1-based JEP106 bank of the code.
func (m Manufacturer) Bank() int {
	return int(m.Code>>jepIDBits) + 1
}

// ID returns the identity code within the bank, parity bit stripped.
func (m Manufacturer) ID() uint8 {
	return uint8(m.Code & jepIDMask)
}

func (m Manufacturer) String() string {
	return fmt.Sprintf("%s (bank %d, 0x%02X)", m.Name, m.Bank(), m.ID())
}

// LookupManufacturer returns the entry for an 11-bit JEP106 code. Unknown
// codes still get an entry with a placeholder name and ok == false.
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	code &= MaxManufacturer
	if m, ok := manufacturers[code]; ok {
		return m, true
	}
	return Manufacturer{
		Code:         code,
		Name:         fmt.Sprintf("Unknown (0x%03X)", code),
		Abbreviation: "Unknown",
	}, false
}
