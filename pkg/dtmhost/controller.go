// Package dtmhost drives a RISC-V debug transport module from the probe
// side. It selects instructions, scans dtmcs and dmi, and turns the status
// field into retries and errors.
package dtmhost

import (
	"context"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dtm"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
)

var (
	// ErrBusy is returned when an op meets a transaction still in flight,
	// or when its own transaction is still in flight after MaxRetries polls.
	ErrBusy = errors.New("dtmhost: dmi busy")
	// ErrSticky is returned when the DTM reports a failed transaction. It
	// stays set until DMIReset.
	ErrSticky = errors.New("dtmhost: dmi error")
	// ErrNoDTM is returned by Init when dtmcs does not describe a supported
	// transport.
	ErrNoDTM = errors.New("dtmhost: no supported dtm")
)

const (
	DefaultIdleCycles = dtm.DTMCSIdle
	DefaultMaxRetries = 32
)

// Controller issues DMI transactions through an adapter.
type Controller struct {
	// IdleCycles is spent in Run-Test/Idle after every DMI scan.
	IdleCycles int
	// MaxRetries bounds how often a busy status is polled.
	MaxRetries int

	t       *transport
	ir      dtm.Instruction
	irKnown bool
}

// NewController creates a controller bound to adapter.
func NewController(adapter jtag.Adapter) *Controller {
	return &Controller{
		IdleCycles: DefaultIdleCycles,
		MaxRetries: DefaultMaxRetries,
		t:          newTransport(adapter),
	}
}

// Scans counts register scans issued so far.
func (c *Controller) Scans() int { return c.t.scans }

// Reset resets the TAP and leaves it in Run-Test/Idle with IDCODE selected.
func (c *Controller) Reset() error {
	if err := c.t.reset(); err != nil {
		return fmt.Errorf("dtmhost: reset: %w", err)
	}
	c.ir, c.irKnown = dtm.InstIDCode, true
	return nil
}

// Init resets the TAP and checks dtmcs. IdleCycles is raised to the idle
// hint when the DTM asks for more.
func (c *Controller) Init() (dtm.DTMCS, error) {
	if err := c.Reset(); err != nil {
		return dtm.DTMCS{}, err
	}
	cs, err := c.ReadDTMCS()
	if err != nil {
		return cs, err
	}
	if cs.Version != dtm.DTMCSVersion {
		return cs, fmt.Errorf("dtmhost: dtmcs version %d: %w", cs.Version, ErrNoDTM)
	}
	if cs.Abits != dtm.DTMCSAbits {
		return cs, fmt.Errorf("dtmhost: %d address bits: %w", cs.Abits, ErrNoDTM)
	}
	if int(cs.Idle) > c.IdleCycles {
		c.IdleCycles = int(cs.Idle)
	}
	return cs, nil
}

func (c *Controller) selectIR(inst dtm.Instruction) error {
	if c.irKnown && c.ir == inst {
		return nil
	}
	if _, err := c.t.scan(true, uint64(inst), dtm.IRLength); err != nil {
		c.irKnown = false
		return fmt.Errorf("dtmhost: select %s: %w", inst, err)
	}
	c.ir, c.irKnown = inst, true
	return nil
}

// ReadIDCode selects IDCODE and scans it out.
func (c *Controller) ReadIDCode() (uint32, error) {
	if err := c.selectIR(dtm.InstIDCode); err != nil {
		return 0, err
	}
	v, err := c.t.scan(false, 0, dtm.IDCodeLength)
	if err != nil {
		return 0, fmt.Errorf("dtmhost: read idcode: %w", err)
	}
	return uint32(v), nil
}

// ReadDTMCS captures dtmcs without requesting any reset.
func (c *Controller) ReadDTMCS() (dtm.DTMCS, error) {
	v, err := c.writeDTMCS(0)
	if err != nil {
		return dtm.DTMCS{}, err
	}
	return dtm.DecodeDTMCS(v), nil
}

// DMIReset clears the sticky error. A transaction in flight is unaffected.
func (c *Controller) DMIReset() error {
	_, err := c.writeDTMCS(dtm.DTMCSDMIReset)
	return err
}

// DMIHardReset abandons any transaction in flight, clears the sticky error
// and pulses the register interface reset.
func (c *Controller) DMIHardReset() error {
	_, err := c.writeDTMCS(dtm.DTMCSDMIHardReset)
	return err
}

func (c *Controller) writeDTMCS(value uint32) (uint32, error) {
	if err := c.selectIR(dtm.InstDTMCS); err != nil {
		return 0, err
	}
	v, err := c.t.scan(false, uint64(value), dtm.DTMCSLength)
	if err != nil {
		return 0, fmt.Errorf("dtmhost: scan dtmcs: %w", err)
	}
	if err := c.t.idle(c.IdleCycles); err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// DMIRead reads the register at addr. ErrBusy means either that an earlier
// transaction was still in flight and the read was dropped, or that the
// read did not finish within MaxRetries polls.
func (c *Controller) DMIRead(ctx context.Context, addr uint8) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	met, err := c.issue(addr, 0, dmi.OpRead)
	if err != nil {
		return 0, err
	}
	data, err := c.poll(ctx, addr)
	if err == nil && met == dmi.StatusFailed {
		err = ErrSticky
	}
	if err != nil {
		return 0, fmt.Errorf("dtmhost: read 0x%02x: %w", addr, err)
	}
	return data, nil
}

// DMIWrite writes data to the register at addr. Errors are reported as for
// DMIRead.
func (c *Controller) DMIWrite(ctx context.Context, addr uint8, data uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	met, err := c.issue(addr, data, dmi.OpWrite)
	if err != nil {
		return err
	}
	_, err = c.poll(ctx, addr)
	if err == nil && met == dmi.StatusFailed {
		err = ErrSticky
	}
	if err != nil {
		return fmt.Errorf("dtmhost: write 0x%02x: %w", addr, err)
	}
	return nil
}

// issue scans op into dmi and returns the status its capture saw. A busy
// capture means the update met a transaction in flight and the DTM dropped
// the op. A failed capture still lets the op through, so the caller drains
// it before reporting the sticky error.
func (c *Controller) issue(addr uint8, data uint32, op dmi.Op) (dmi.Status, error) {
	if addr > dmi.AddrMask {
		return 0, fmt.Errorf("dtmhost: address 0x%x outside %d-bit space", addr, dmi.AddrBits)
	}
	if err := c.selectIR(dtm.InstDMI); err != nil {
		return 0, err
	}
	v, err := c.t.scan(false, dtm.EncodeDMI(addr, data, uint8(op)), dtm.DMILength)
	if err != nil {
		return 0, fmt.Errorf("dtmhost: %s 0x%02x: %w", op, addr, err)
	}
	if err := c.t.idle(c.IdleCycles); err != nil {
		return 0, err
	}
	_, _, st := dtm.DecodeDMI(v)
	met := dmi.Status(st)
	if met == dmi.StatusBusy {
		logger.Logf("dtmhost", "%s 0x%02x dropped, transaction in flight", op, addr)
		return met, fmt.Errorf("dtmhost: %s 0x%02x not accepted: %w", op, addr, ErrBusy)
	}
	return met, nil
}

// poll scans NOPs until the transaction started by issue completes and
// returns the data field of the final capture.
func (c *Controller) poll(ctx context.Context, addr uint8) (uint32, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v, err := c.t.scan(false, dtm.EncodeDMI(0, 0, uint8(dmi.OpNop)), dtm.DMILength)
		if err != nil {
			return 0, err
		}
		_, data, op := dtm.DecodeDMI(v)
		switch dmi.Status(op) {
		case dmi.StatusOK:
			return data, nil
		case dmi.StatusFailed:
			return 0, ErrSticky
		case dmi.StatusBusy:
			if attempt >= c.MaxRetries {
				return 0, fmt.Errorf("%w after %d polls", ErrBusy, attempt+1)
			}
			logger.Logf("dtmhost", "0x%02x busy, poll %d", addr, attempt+1)
			if err := c.t.idle(c.IdleCycles); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("dtmhost: reserved status %d", op)
		}
	}
}
