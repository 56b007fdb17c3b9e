package idcode

import "fmt"

// ParseIDCode parses a raw 32-bit IDCODE into its component fields
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & MaxVersion),
		PartNumber:       uint16((raw >> 12) & MaxPartNumber),
		ManufacturerCode: uint16((raw >> 1) & MaxManufacturer),
		HasIDCode:        (raw & 0x1) == 0x1,
	}
}

// Encode assembles an IDCODE from its fields. Bit 0 is always set; out of
// range fields are truncated to their width.
func Encode(version uint8, part uint16, manufacturer uint16) uint32 {
	return uint32(version&MaxVersion)<<28 |
		uint32(part)<<12 |
		uint32(manufacturer&MaxManufacturer)<<1 |
		1
}

// String formats the fields the way discovery output prints them.
func (id IDCode) String() string {
	m, _ := LookupManufacturer(id.ManufacturerCode)
	return fmt.Sprintf("0x%08X (Mfg: %s, Part: 0x%04X, Ver: %d)",
		id.Raw, m.Name, id.PartNumber, id.Version)
}
