package svf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/tap"
)

var (
	// ErrTDOMismatch is returned when captured TDO differs from the expected
	// value under MASK.
	ErrTDOMismatch = errors.New("svf: tdo mismatch")
	// ErrUnsupported is returned for statements the player cannot execute.
	ErrUnsupported = errors.New("svf: unsupported statement")
)

// DefaultFrequency converts RUNTEST times into clocks until a FREQUENCY
// statement says otherwise.
const DefaultFrequency = 1_000_000

// MismatchError describes a failed TDO comparison. It wraps ErrTDOMismatch.
type MismatchError struct {
	Line     int
	Kind     string
	Expected string
	Got      string
	Mask     string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("svf: line %d: %s tdo %s, want %s mask %s", e.Line, e.Kind, e.Got, e.Expected, e.Mask)
}

func (e *MismatchError) Unwrap() error { return ErrTDOMismatch }

// scanState is the per-register operand memory. TDI, MASK and SMASK carry
// over to the next scan of the same length.
type scanState struct {
	length int
	tdi    []byte
	mask   []byte
	smask  []byte
}

// Player executes parsed SVF against an adapter.
type Player struct {
	adapter jtag.Adapter
	tap     *tap.StateMachine

	endIR    tap.State
	endDR    tap.State
	runState tap.State
	runEnd   tap.State
	freq     float64

	ir, dr scanState

	statements int
	clocks     int
}

// NewPlayer returns a player that assumes the TAP starts in Test-Logic-Reset.
func NewPlayer(adapter jtag.Adapter) *Player {
	return &Player{
		adapter:  adapter,
		tap:      tap.NewStateMachine(),
		endIR:    tap.StateRunTestIdle,
		endDR:    tap.StateRunTestIdle,
		runState: tap.StateRunTestIdle,
		runEnd:   tap.StateRunTestIdle,
		freq:     DefaultFrequency,
	}
}

// Stats reports statements executed and TCK cycles issued.
func (p *Player) Stats() (statements, clocks int) {
	return p.statements, p.clocks
}

// State is the TAP state the player believes the target is in.
func (p *Player) State() tap.State { return p.tap.State() }

// Run executes every command in f, stopping at the first failure.
func (p *Player) Run(ctx context.Context, f *File) error {
	for _, cmd := range f.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.exec(cmd); err != nil {
			var mm *MismatchError
			if errors.As(err, &mm) {
				mm.Line = cmd.Pos.Line
				return mm
			}
			return fmt.Errorf("svf: line %d: %w", cmd.Pos.Line, err)
		}
		p.statements++
	}
	return nil
}

func (p *Player) exec(cmd *Command) error {
	switch {
	case cmd.Scan != nil:
		return p.scan(cmd.Scan)
	case cmd.RunTest != nil:
		return p.runTest(cmd.RunTest)
	case cmd.State != nil:
		for _, name := range cmd.State.States {
			s, err := tap.ParseState(strings.ToUpper(name))
			if err != nil {
				return err
			}
			if err := p.moveTo(s); err != nil {
				return err
			}
		}
		return nil
	case cmd.End != nil:
		s, err := stableState(cmd.End.State)
		if err != nil {
			return err
		}
		if strings.EqualFold(cmd.End.Kind, "ENDIR") {
			p.endIR = s
		} else {
			p.endDR = s
		}
		return nil
	case cmd.TRST != nil:
		if !strings.EqualFold(cmd.TRST.Mode, "ON") {
			return nil
		}
		if err := p.adapter.ResetTAP(true); err != nil {
			return err
		}
		p.tap.Force(tap.StateTestLogicReset)
		return nil
	case cmd.Frequency != nil:
		if cmd.Frequency.Hz == nil {
			return nil
		}
		hz := *cmd.Frequency.Hz
		if err := p.adapter.SetSpeed(int(hz)); err != nil {
			return err
		}
		p.freq = hz
		return nil
	}
	return ErrUnsupported
}

func stableState(name string) (tap.State, error) {
	s, err := tap.ParseState(strings.ToUpper(name))
	if err != nil {
		return 0, err
	}
	switch s {
	case tap.StateTestLogicReset, tap.StateRunTestIdle, tap.StatePauseDR, tap.StatePauseIR:
		return s, nil
	}
	return 0, fmt.Errorf("svf: %s is not a stable state", s)
}

func (p *Player) scan(s *Scan) error {
	kind := strings.ToUpper(s.Kind)
	switch kind {
	case "HIR", "TIR", "HDR", "TDR":
		if s.Length != 0 {
			return fmt.Errorf("%w: %s %d", ErrUnsupported, kind, s.Length)
		}
		return nil
	}
	if s.Length == 0 {
		return nil
	}

	ir := kind == "SIR"
	st := &p.dr
	shift, end := tap.StateShiftDR, p.endDR
	if ir {
		st = &p.ir
		shift, end = tap.StateShiftIR, p.endIR
	}

	if st.length != s.Length {
		*st = scanState{
			length: s.Length,
			tdi:    make([]byte, (s.Length+7)/8),
			mask:   jtag.ConstBits(s.Length, true),
			smask:  jtag.ConstBits(s.Length, true),
		}
	}
	var tdo []byte
	for _, f := range s.Fields {
		v, err := parseHex(f.Value, s.Length)
		if err != nil {
			return err
		}
		switch strings.ToUpper(f.Name) {
		case "TDI":
			st.tdi = v
		case "TDO":
			tdo = v
		case "MASK":
			st.mask = v
		case "SMASK":
			st.smask = v
		}
	}

	path, err := tap.Path(p.tap.State(), shift)
	if err != nil {
		return err
	}
	exit, err := tap.Path(tap.NextState(shift, true), end)
	if err != nil {
		return err
	}

	off := len(path.TMS)
	n := off + s.Length + len(exit.TMS)
	tmsBuf := make([]byte, (n+7)/8)
	tdiBuf := make([]byte, len(tmsBuf))
	for i, b := range path.TMS {
		jtag.SetBit(tmsBuf, i, b)
	}
	for i := 0; i < s.Length; i++ {
		jtag.SetBit(tdiBuf, off+i, jtag.GetBit(st.tdi, i))
	}
	jtag.SetBit(tmsBuf, off+s.Length-1, true)
	for i, b := range exit.TMS {
		jtag.SetBit(tmsBuf, off+s.Length+i, b)
	}

	var got []byte
	if ir {
		got, err = p.adapter.ShiftIR(tmsBuf, tdiBuf, n)
	} else {
		got, err = p.adapter.ShiftDR(tmsBuf, tdiBuf, n)
	}
	if err != nil {
		return err
	}
	p.tap.Force(end)
	p.clocks += n

	if tdo == nil {
		return nil
	}
	captured := jtag.ExtractBits(got, off, s.Length)
	for i := 0; i < s.Length; i++ {
		if jtag.GetBit(st.mask, i) && jtag.GetBit(captured, i) != jtag.GetBit(tdo, i) {
			return &MismatchError{
				Kind:     kind,
				Expected: formatHex(tdo, s.Length),
				Got:      formatHex(captured, s.Length),
				Mask:     formatHex(st.mask, s.Length),
			}
		}
	}
	return nil
}

func (p *Player) runTest(r *RunTest) error {
	if r.RunState != "" {
		s, err := stableState(r.RunState)
		if err != nil {
			return err
		}
		p.runState = s
		p.runEnd = s
	}
	if r.EndState != "" {
		s, err := stableState(r.EndState)
		if err != nil {
			return err
		}
		p.runEnd = s
	}

	cycles := 0
	switch strings.ToUpper(r.Unit) {
	case "TCK", "SCK":
		cycles = int(r.Count)
	case "SEC":
		cycles = int(math.Ceil(r.Count * p.freq))
	}
	if r.MinTime != nil {
		if min := int(math.Ceil(*r.MinTime * p.freq)); min > cycles {
			cycles = min
		}
	}

	if err := p.moveTo(p.runState); err != nil {
		return err
	}
	if cycles > 0 {
		hold := p.runState == tap.StateTestLogicReset
		buf := jtag.ConstBits(cycles, hold)
		if _, err := p.adapter.ShiftDR(buf, nil, cycles); err != nil {
			return err
		}
		p.clocks += cycles
		logger.Logf("svf", "runtest %d clocks in %s", cycles, p.runState)
	}
	return p.moveTo(p.runEnd)
}

// moveTo walks the shortest TMS path to s.
func (p *Player) moveTo(s tap.State) error {
	from := p.tap.State()
	seq, err := p.tap.GoTo(s)
	if err != nil {
		return err
	}
	n := len(seq.TMS)
	if n == 0 {
		return nil
	}
	buf := make([]byte, (n+7)/8)
	for i, b := range seq.TMS {
		jtag.SetBit(buf, i, b)
	}
	if from.IsIR() {
		_, err = p.adapter.ShiftIR(buf, nil, n)
	} else {
		_, err = p.adapter.ShiftDR(buf, nil, n)
	}
	p.clocks += n
	return err
}

// parseHex converts a parenthesised hex operand into an LSB-first bit
// buffer of length bits. The rightmost digit holds bits 0..3.
func parseHex(s string, bits int) ([]byte, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	s = strings.Join(strings.Fields(s), "")
	if len(s) == 0 {
		return nil, fmt.Errorf("svf: empty hex operand")
	}
	if len(s)*4-bits >= 4 {
		return nil, fmt.Errorf("svf: %d hex digits too long for %d bits", len(s), bits)
	}
	out := make([]byte, (bits+7)/8)
	for i := 0; i < len(s); i++ {
		c := s[len(s)-1-i]
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return nil, fmt.Errorf("svf: bad hex digit %q", c)
		}
		for b := 0; b < 4; b++ {
			pos := i*4 + b
			if d>>b&1 == 0 {
				continue
			}
			if pos >= bits {
				return nil, fmt.Errorf("svf: operand has bits beyond length %d", bits)
			}
			jtag.SetBit(out, pos, true)
		}
	}
	return out, nil
}

func formatHex(buf []byte, bits int) string {
	digits := (bits + 3) / 4
	var sb strings.Builder
	for i := digits - 1; i >= 0; i-- {
		var d byte
		for b := 0; b < 4; b++ {
			pos := i*4 + b
			if pos < bits && jtag.GetBit(buf, pos) {
				d |= 1 << b
			}
		}
		sb.WriteByte("0123456789ABCDEF"[d])
	}
	return sb.String()
}
