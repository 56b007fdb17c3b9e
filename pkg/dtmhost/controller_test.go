package dtmhost

import (
	"context"
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dtm"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
)

func newEngine(t *testing.T, cfg *dtm.Config) (*dtm.Engine, *dmi.MemoryBus) {
	t.Helper()
	bus := cfg.NewBus()
	eng, err := dtm.New(cfg, bus)
	if err != nil {
		t.Fatalf("dtm.New: %v", err)
	}
	return eng, bus
}

// adapters returns the same model behind a pin adapter and behind a
// CMSIS-DAP virtual probe.
func adapters(t *testing.T, cfg *dtm.Config) map[string]func() (jtag.Adapter, *dmi.MemoryBus) {
	return map[string]func() (jtag.Adapter, *dmi.MemoryBus){
		"pins": func() (jtag.Adapter, *dmi.MemoryBus) {
			eng, bus := newEngine(t, cfg)
			return jtag.NewPinAdapter(eng, int(cfg.TickRate)), bus
		},
		"cmsis-dap": func() (jtag.Adapter, *dmi.MemoryBus) {
			eng, bus := newEngine(t, cfg)
			adapter, err := jtag.OpenCMSISDAP(jtag.NewVirtualProbe(eng, int(cfg.TickRate)))
			if err != nil {
				t.Fatalf("OpenCMSISDAP: %v", err)
			}
			t.Cleanup(func() { adapter.Close() })
			return adapter, bus
		},
	}
}

func TestInitAndIDCode(t *testing.T) {
	cfg := dtm.DefaultConfig()
	cfg.PartNumber = 0x1234
	cfg.Manufacturer = 0x489
	for name, open := range adapters(t, cfg) {
		t.Run(name, func(t *testing.T) {
			adapter, _ := open()
			ctrl := NewController(adapter)

			cs, err := ctrl.Init()
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			want := dtm.DTMCS{Version: dtm.DTMCSVersion, Abits: dtm.DTMCSAbits, DMIStat: dmi.StatusOK, Idle: dtm.DTMCSIdle}
			if cs != want {
				t.Fatalf("dtmcs = %+v, want %+v", cs, want)
			}

			id, err := ctrl.ReadIDCode()
			if err != nil {
				t.Fatalf("ReadIDCode: %v", err)
			}
			if id != cfg.IDCode() {
				t.Fatalf("IDCODE = 0x%08X, want 0x%08X", id, cfg.IDCode())
			}
		})
	}
}

func TestWriteThenRead(t *testing.T) {
	cfg := dtm.DefaultConfig()
	for name, open := range adapters(t, cfg) {
		t.Run(name, func(t *testing.T) {
			adapter, bus := open()
			ctrl := NewController(adapter)
			if _, err := ctrl.Init(); err != nil {
				t.Fatalf("Init: %v", err)
			}
			ctx := context.Background()

			values := map[uint8]uint32{0x10: 0xDEADBEEF, 0x11: 0x00000001, 0x7F: 0x80000000}
			for addr, v := range values {
				if err := ctrl.DMIWrite(ctx, addr, v); err != nil {
					t.Fatalf("DMIWrite(0x%02x): %v", addr, err)
				}
				if bus.Regs[addr] != v {
					t.Fatalf("bus[0x%02x] = 0x%08X, want 0x%08X", addr, bus.Regs[addr], v)
				}
			}
			for addr, v := range values {
				got, err := ctrl.DMIRead(ctx, addr)
				if err != nil {
					t.Fatalf("DMIRead(0x%02x): %v", addr, err)
				}
				if got != v {
					t.Fatalf("DMIRead(0x%02x) = 0x%08X, want 0x%08X", addr, got, v)
				}
			}

			reads, writes, errs, _ := bus.Stats()
			if reads != len(values) || writes != len(values) || errs != 0 {
				t.Fatalf("bus stats reads=%d writes=%d errors=%d", reads, writes, errs)
			}
		})
	}
}

func TestStickyErrorAndDMIReset(t *testing.T) {
	cfg := dtm.DefaultConfig()
	cfg.Bus.FailAddrs = []int{0x20}
	for name, open := range adapters(t, cfg) {
		t.Run(name, func(t *testing.T) {
			adapter, _ := open()
			ctrl := NewController(adapter)
			if _, err := ctrl.Init(); err != nil {
				t.Fatalf("Init: %v", err)
			}
			ctx := context.Background()

			err := ctrl.DMIWrite(ctx, 0x20, 1)
			if !errors.Is(err, ErrSticky) {
				t.Fatalf("DMIWrite to failing address: %v, want ErrSticky", err)
			}
			cs, err := ctrl.ReadDTMCS()
			if err != nil {
				t.Fatalf("ReadDTMCS: %v", err)
			}
			if cs.DMIStat != dmi.StatusFailed {
				t.Fatalf("dmistat = %s, want failed", cs.DMIStat)
			}

			// The error is sticky: a good access still reports it.
			if err := ctrl.DMIWrite(ctx, 0x21, 1); !errors.Is(err, ErrSticky) {
				t.Fatalf("DMIWrite before dmireset: %v, want ErrSticky", err)
			}

			if err := ctrl.DMIReset(); err != nil {
				t.Fatalf("DMIReset: %v", err)
			}
			if err := ctrl.DMIWrite(ctx, 0x21, 2); err != nil {
				t.Fatalf("DMIWrite after dmireset: %v", err)
			}
		})
	}
}

func TestBusyThenHardReset(t *testing.T) {
	cfg := dtm.DefaultConfig()
	cfg.Bus.Stall = true
	for name, open := range adapters(t, cfg) {
		t.Run(name, func(t *testing.T) {
			adapter, bus := open()
			ctrl := NewController(adapter)
			ctrl.MaxRetries = 3
			if _, err := ctrl.Init(); err != nil {
				t.Fatalf("Init: %v", err)
			}
			ctx := context.Background()

			if err := ctrl.DMIWrite(ctx, 0x04, 5); !errors.Is(err, ErrBusy) {
				t.Fatalf("DMIWrite on stalled bus: %v, want ErrBusy", err)
			}
			if !bus.Pending() {
				t.Fatalf("bus has no pending request")
			}

			if err := ctrl.DMIHardReset(); err != nil {
				t.Fatalf("DMIHardReset: %v", err)
			}
			if _, _, _, resets := bus.Stats(); resets != 1 {
				t.Fatalf("bus resets = %d, want 1", resets)
			}
			cs, err := ctrl.ReadDTMCS()
			if err != nil {
				t.Fatalf("ReadDTMCS: %v", err)
			}
			if cs.DMIStat != dmi.StatusOK {
				t.Fatalf("dmistat after hard reset = %s, want ok", cs.DMIStat)
			}

			bus.Stall = false
			if err := ctrl.DMIWrite(ctx, 0x04, 6); err != nil {
				t.Fatalf("DMIWrite after hard reset: %v", err)
			}
			if bus.Regs[0x04] != 6 {
				t.Fatalf("bus[0x04] = %d, want 6", bus.Regs[0x04])
			}
		})
	}
}

// scripted answers the nth DMI-sized data scan from Run-Test/Idle with the
// nth status, repeating the last one.
func scripted(statuses ...dmi.Status) *jtag.SimAdapter {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "sim"})
	const off = 3 // Run-Test/Idle -> Shift-DR
	n := 0
	sim.OnShift = func(region jtag.ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
		if region == jtag.ShiftRegionDR && bits == off+dtm.DMILength+2 {
			status := statuses[len(statuses)-1]
			if n < len(statuses) {
				status = statuses[n]
			}
			n++
			return jtag.PackBits(dtm.EncodeDMI(0, 0x1234, uint8(status))<<off, bits), nil
		}
		return make([]byte, (bits+7)/8), nil
	}
	return sim
}

func dmiScans(sim *jtag.SimAdapter) int {
	n := 0
	for _, op := range sim.History() {
		if op.Region == jtag.ShiftRegionDR && op.Bits == 3+dtm.DMILength+2 {
			n++
		}
	}
	return n
}

func TestPollStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("busy", func(t *testing.T) {
		sim := scripted(dmi.StatusOK, dmi.StatusBusy)
		ctrl := NewController(sim)
		ctrl.MaxRetries = 2
		if err := ctrl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if _, err := ctrl.DMIRead(ctx, 1); !errors.Is(err, ErrBusy) {
			t.Fatalf("DMIRead: %v, want ErrBusy", err)
		}
		if got, want := dmiScans(sim), 1+ctrl.MaxRetries+1; got != want {
			t.Fatalf("dmi scans = %d, want %d", got, want)
		}
		if _, hard := sim.ResetCounts(); hard != 1 {
			t.Fatalf("hard resets = %d, want 1", hard)
		}
	})

	t.Run("busy at issue", func(t *testing.T) {
		sim := scripted(dmi.StatusBusy, dmi.StatusOK)
		ctrl := NewController(sim)
		if err := ctrl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if err := ctrl.DMIWrite(ctx, 1, 1); !errors.Is(err, ErrBusy) {
			t.Fatalf("DMIWrite: %v, want ErrBusy", err)
		}
		if got := dmiScans(sim); got != 1 {
			t.Fatalf("dmi scans = %d, want 1", got)
		}
	})

	t.Run("failed", func(t *testing.T) {
		ctrl := NewController(scripted(dmi.StatusFailed))
		if err := ctrl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if err := ctrl.DMIWrite(ctx, 1, 1); !errors.Is(err, ErrSticky) {
			t.Fatalf("DMIWrite: %v, want ErrSticky", err)
		}
	})

	t.Run("failed at issue", func(t *testing.T) {
		sim := scripted(dmi.StatusFailed, dmi.StatusOK)
		ctrl := NewController(sim)
		if err := ctrl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if _, err := ctrl.DMIRead(ctx, 1); !errors.Is(err, ErrSticky) {
			t.Fatalf("DMIRead: %v, want ErrSticky", err)
		}
		if got := dmiScans(sim); got != 2 {
			t.Fatalf("dmi scans = %d, want 2", got)
		}
	})

	t.Run("ok", func(t *testing.T) {
		ctrl := NewController(scripted(dmi.StatusOK))
		if err := ctrl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		got, err := ctrl.DMIRead(ctx, 1)
		if err != nil {
			t.Fatalf("DMIRead: %v", err)
		}
		if got != 0x1234 {
			t.Fatalf("DMIRead = 0x%X, want 0x1234", got)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctrl := NewController(scripted(dmi.StatusBusy))
		if err := ctrl.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := ctrl.DMIRead(cctx, 1); !errors.Is(err, context.Canceled) {
			t.Fatalf("DMIRead: %v, want context.Canceled", err)
		}
	})
}

func TestOpDroppedWhileTransactionInFlight(t *testing.T) {
	cfg := dtm.DefaultConfig()
	cfg.Bus.ResponseDelay = 2000
	eng, bus := newEngine(t, cfg)
	ctrl := NewController(jtag.NewPinAdapter(eng, int(cfg.TickRate)))
	if _, err := ctrl.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()

	ctrl.MaxRetries = 0
	if err := ctrl.DMIWrite(ctx, 0x04, 5); !errors.Is(err, ErrBusy) {
		t.Fatalf("first DMIWrite: %v, want ErrBusy", err)
	}

	// The first write is still waiting for its response, so this one must
	// not be reported as done.
	ctrl.MaxRetries = 1000
	if err := ctrl.DMIWrite(ctx, 0x08, 0x55); !errors.Is(err, ErrBusy) {
		t.Fatalf("DMIWrite during transaction: %v, want ErrBusy", err)
	}
	if bus.Regs[0x08] != 0 {
		t.Fatalf("dropped write landed: bus[0x08] = 0x%X", bus.Regs[0x08])
	}

	for i := 0; ; i++ {
		cs, err := ctrl.ReadDTMCS()
		if err != nil {
			t.Fatalf("ReadDTMCS: %v", err)
		}
		if cs.DMIStat == dmi.StatusOK {
			break
		}
		if i == 1000 {
			t.Fatalf("dmistat still %s", cs.DMIStat)
		}
	}

	if err := ctrl.DMIWrite(ctx, 0x08, 0x55); err != nil {
		t.Fatalf("DMIWrite after completion: %v", err)
	}
	if bus.Regs[0x04] != 5 || bus.Regs[0x08] != 0x55 {
		t.Fatalf("bus[0x04] = %d, bus[0x08] = 0x%X, want 5 and 0x55", bus.Regs[0x04], bus.Regs[0x08])
	}
}

func TestInstructionSelectedOnce(t *testing.T) {
	sim := scripted(dmi.StatusOK)
	ctrl := NewController(sim)
	if err := ctrl.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := ctrl.DMIWrite(context.Background(), uint8(i), 0); err != nil {
			t.Fatalf("DMIWrite: %v", err)
		}
	}
	ir := 0
	for _, op := range sim.History() {
		if op.Region == jtag.ShiftRegionIR {
			ir++
		}
	}
	if ir != 1 {
		t.Fatalf("IR scans = %d, want 1", ir)
	}
}

func TestRejects(t *testing.T) {
	ctrl := NewController(jtag.NewSimAdapter(jtag.AdapterInfo{Name: "sim"}))
	if err := ctrl.DMIWrite(context.Background(), 0x80, 0); err == nil {
		t.Fatalf("expected error for 8-bit address")
	}
	// An echoing adapter reads back an all-zero dtmcs.
	if _, err := ctrl.Init(); !errors.Is(err, ErrNoDTM) {
		t.Fatalf("Init on echo adapter: %v, want ErrNoDTM", err)
	}
}
