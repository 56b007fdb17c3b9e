package jtag

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo          = 0x00
	CmdHostStatus    = 0x01
	CmdConnect       = 0x02
	CmdDisconnect    = 0x03
	CmdResetTarget   = 0x0A
	CmdSWJPins       = 0x10
	CmdSWJClock      = 0x11
	CmdSWJSequence   = 0x12
	CmdJTAGSequence  = 0x14
	CmdJTAGConfigure = 0x15
	CmdJTAGIDCODE    = 0x16

	// CmdInvalid is the reply to a command the probe does not implement.
	CmdInvalid = 0xFF
)

// DAP_Info Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// DAP_SWJ_Pins bits
const (
	PinTCK    = 1 << 0
	PinTMS    = 1 << 1
	PinTDI    = 1 << 2
	PinTDO    = 1 << 3
	PinNTRST  = 1 << 5
	PinNRESET = 1 << 7
)

// JTAG Sequence info flags
const (
	JTAGSeqTCKMask = 0x3F // Bits [5:0] = TCK count (0-63, where 0 means 64)
	JTAGSeqTMS     = 0x40 // Bit [6] = TMS value
	JTAGSeqTDO     = 0x80 // Bit [7] = Capture TDO
)

// MaxSequenceBits is the most TCK cycles a single sequence can describe.
const MaxSequenceBits = 64

var (
	// ErrShortResponse is returned when a reply is truncated.
	ErrShortResponse = errors.New("cmsis-dap: response too short")
	// ErrProbeStatus is returned when the probe reports a failed command.
	ErrProbeStatus = errors.New("cmsis-dap: command failed")
)

// CMSISDAPProtocol encodes and decodes CMSIS-DAP packets. The Encode*/Decode*
// pairs are the host side; Parse* and Encode*Response are the probe side.
type CMSISDAPProtocol struct {
	PacketSize int
}

// NewCMSISDAPProtocol creates a new protocol handler
func NewCMSISDAPProtocol(packetSize int) *CMSISDAPProtocol {
	return &CMSISDAPProtocol{
		PacketSize: packetSize,
	}
}

// expect checks the command echo and minimum length of a reply.
func expect(resp []byte, cmd byte, min int) error {
	if len(resp) < min {
		return fmt.Errorf("%w: command 0x%02X got %d bytes, want %d", ErrShortResponse, cmd, len(resp), min)
	}
	if resp[0] != cmd {
		return fmt.Errorf("cmsis-dap: reply ID 0x%02X, want 0x%02X", resp[0], cmd)
	}
	return nil
}

// expectOK is expect for the common {command, status} reply.
func expectOK(resp []byte, cmd byte) error {
	if err := expect(resp, cmd, 2); err != nil {
		return err
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("%w: command 0x%02X status 0x%02X", ErrProbeStatus, cmd, resp[1])
	}
	return nil
}

// EncodeInfo builds a DAP_Info command
func (p *CMSISDAPProtocol) EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info response
func (p *CMSISDAPProtocol) DecodeInfo(resp []byte) (string, error) {
	if err := expect(resp, CmdInfo, 2); err != nil {
		return "", err
	}
	length := int(resp[1])
	if len(resp) < 2+length {
		return "", fmt.Errorf("%w: info string of %d bytes", ErrShortResponse, length)
	}
	return string(resp[2 : 2+length]), nil
}

// DecodeInfoPacketSize parses the DAP_Info reply to InfoPacketSize.
func (p *CMSISDAPProtocol) DecodeInfoPacketSize(resp []byte) (int, error) {
	if err := expect(resp, CmdInfo, 4); err != nil {
		return 0, err
	}
	if resp[1] != 2 {
		return 0, fmt.Errorf("cmsis-dap: packet size field of %d bytes", resp[1])
	}
	return int(binary.LittleEndian.Uint16(resp[2:4])), nil
}

// EncodeConnect builds a DAP_Connect command
func (p *CMSISDAPProtocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func (p *CMSISDAPProtocol) DecodeConnect(resp []byte) (byte, error) {
	if err := expect(resp, CmdConnect, 2); err != nil {
		return 0, err
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("%w: connect refused", ErrProbeStatus)
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (p *CMSISDAPProtocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

// DecodeDisconnect parses a DAP_Disconnect response
func (p *CMSISDAPProtocol) DecodeDisconnect(resp []byte) error {
	return expectOK(resp, CmdDisconnect)
}

// EncodeJTAGConfigure builds a DAP_JTAG_Configure command
func (p *CMSISDAPProtocol) EncodeJTAGConfigure(irLengths []byte) []byte {
	cmd := make([]byte, 2+len(irLengths))
	cmd[0] = CmdJTAGConfigure
	cmd[1] = byte(len(irLengths))
	copy(cmd[2:], irLengths)
	return cmd
}

// DecodeJTAGConfigure parses response
func (p *CMSISDAPProtocol) DecodeJTAGConfigure(resp []byte) error {
	return expectOK(resp, CmdJTAGConfigure)
}

// EncodeJTAGIDCODE builds a DAP_JTAG_IDCODE command
func (p *CMSISDAPProtocol) EncodeJTAGIDCODE(deviceIndex byte) []byte {
	return []byte{CmdJTAGIDCODE, deviceIndex}
}

// DecodeJTAGIDCODE parses response and extracts IDCODE
func (p *CMSISDAPProtocol) DecodeJTAGIDCODE(resp []byte) (uint32, error) {
	if err := expectOK(resp, CmdJTAGIDCODE); err != nil {
		return 0, err
	}
	if len(resp) < 6 {
		return 0, fmt.Errorf("%w: IDCODE reply of %d bytes", ErrShortResponse, len(resp))
	}
	return binary.LittleEndian.Uint32(resp[2:6]), nil
}

// JTAGSequence represents one JTAG shift operation
type JTAGSequence struct {
	Info byte   // Sequence info byte (TCK count, TMS, TDO capture)
	TDI  []byte // TDI data to shift
}

// NewJTAGSequence creates a sequence descriptor. tckCount must be 1..64.
func NewJTAGSequence(tckCount int, tms bool, captureTDO bool, tdi []byte) JTAGSequence {
	info := byte(tckCount & JTAGSeqTCKMask)
	if tms {
		info |= JTAGSeqTMS
	}
	if captureTDO {
		info |= JTAGSeqTDO
	}
	return JTAGSequence{
		Info: info,
		TDI:  tdi,
	}
}

// TCKCount returns the number of TCK clocks in this sequence
func (seq *JTAGSequence) TCKCount() int {
	count := int(seq.Info & JTAGSeqTCKMask)
	if count == 0 {
		return MaxSequenceBits
	}
	return count
}

// TMS returns the TMS value for this sequence
func (seq *JTAGSequence) TMS() bool {
	return (seq.Info & JTAGSeqTMS) != 0
}

// CaptureTDO returns whether TDO should be captured
func (seq *JTAGSequence) CaptureTDO() bool {
	return (seq.Info & JTAGSeqTDO) != 0
}

// EncodeJTAGSequence builds a DAP_JTAG_Sequence command
// Each sequence is: [info_byte][tdi_data...]
func (p *CMSISDAPProtocol) EncodeJTAGSequence(sequences []JTAGSequence) []byte {
	cmd := []byte{CmdJTAGSequence, byte(len(sequences))}
	for _, seq := range sequences {
		tdi := make([]byte, (seq.TCKCount()+7)/8)
		copy(tdi, seq.TDI)
		cmd = append(cmd, seq.Info)
		cmd = append(cmd, tdi...)
	}
	return cmd
}

// DecodeJTAGSequence parses response and extracts TDO data for the sequences
// that requested capture.
func (p *CMSISDAPProtocol) DecodeJTAGSequence(resp []byte, sequences []JTAGSequence) ([][]byte, error) {
	if err := expectOK(resp, CmdJTAGSequence); err != nil {
		return nil, err
	}

	result := make([][]byte, 0)
	offset := 2
	for _, seq := range sequences {
		if !seq.CaptureTDO() {
			continue
		}
		n := (seq.TCKCount() + 7) / 8
		if offset+n > len(resp) {
			return nil, fmt.Errorf("%w: TDO data", ErrShortResponse)
		}
		result = append(result, append([]byte(nil), resp[offset:offset+n]...))
		offset += n
	}
	return result, nil
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func (p *CMSISDAPProtocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// DecodeSetClock parses response
func (p *CMSISDAPProtocol) DecodeSetClock(resp []byte) error {
	return expectOK(resp, CmdSWJClock)
}

// EncodeSWJPins builds a DAP_SWJ_Pins command. Only pins set in sel are
// driven; wait is in microseconds.
func (p *CMSISDAPProtocol) EncodeSWJPins(output, sel byte, wait uint32) []byte {
	cmd := make([]byte, 7)
	cmd[0] = CmdSWJPins
	cmd[1] = output
	cmd[2] = sel
	binary.LittleEndian.PutUint32(cmd[3:], wait)
	return cmd
}

// DecodeSWJPins returns the pin levels read back after the command.
func (p *CMSISDAPProtocol) DecodeSWJPins(resp []byte) (byte, error) {
	if err := expect(resp, CmdSWJPins, 2); err != nil {
		return 0, err
	}
	return resp[1], nil
}

// EncodeResetTarget builds a DAP_ResetTarget command
func (p *CMSISDAPProtocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}

// DecodeResetTarget parses response
func (p *CMSISDAPProtocol) DecodeResetTarget(resp []byte) error {
	return expectOK(resp, CmdResetTarget)
}

// ParseJTAGSequence is the probe side of EncodeJTAGSequence.
func (p *CMSISDAPProtocol) ParseJTAGSequence(cmd []byte) ([]JTAGSequence, error) {
	if err := expect(cmd, CmdJTAGSequence, 2); err != nil {
		return nil, err
	}
	count := int(cmd[1])
	seqs := make([]JTAGSequence, 0, count)
	offset := 2
	for i := 0; i < count; i++ {
		if offset >= len(cmd) {
			return nil, fmt.Errorf("cmsis-dap: sequence %d: missing info byte", i)
		}
		seq := JTAGSequence{Info: cmd[offset]}
		offset++
		n := (seq.TCKCount() + 7) / 8
		if offset+n > len(cmd) {
			return nil, fmt.Errorf("cmsis-dap: sequence %d: need %d TDI bytes, have %d", i, n, len(cmd)-offset)
		}
		seq.TDI = append([]byte(nil), cmd[offset:offset+n]...)
		offset += n
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// EncodeInfoResponse builds the probe reply to DAP_Info.
func (p *CMSISDAPProtocol) EncodeInfoResponse(value []byte) []byte {
	resp := make([]byte, 2+len(value))
	resp[0] = CmdInfo
	resp[1] = byte(len(value))
	copy(resp[2:], value)
	return resp
}

// EncodeStatusResponse builds the common {command, status} reply.
func (p *CMSISDAPProtocol) EncodeStatusResponse(cmd, status byte) []byte {
	return []byte{cmd, status}
}

// EncodeJTAGSequenceResponse builds the probe reply carrying captured TDO.
func (p *CMSISDAPProtocol) EncodeJTAGSequenceResponse(tdo [][]byte) []byte {
	resp := []byte{CmdJTAGSequence, StatusOK}
	for _, t := range tdo {
		resp = append(resp, t...)
	}
	return resp
}

// EncodeJTAGIDCODEResponse builds the probe reply to DAP_JTAG_IDCODE.
func (p *CMSISDAPProtocol) EncodeJTAGIDCODEResponse(id uint32) []byte {
	resp := make([]byte, 6)
	resp[0] = CmdJTAGIDCODE
	resp[1] = StatusOK
	binary.LittleEndian.PutUint32(resp[2:], id)
	return resp
}
