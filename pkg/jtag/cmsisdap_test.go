package jtag

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildSequences(t *testing.T) {
	tests := []struct {
		name      string
		tms       []byte
		tdi       []byte
		bits      int
		wantSeqs  int
		checkFunc func(*testing.T, []JTAGSequence)
	}{
		{
			name:     "no TMS, 8 bits",
			tms:      nil,
			tdi:      []byte{0xAA},
			bits:     8,
			wantSeqs: 1,
			checkFunc: func(t *testing.T, seqs []JTAGSequence) {
				if seqs[0].TCKCount() != 8 || seqs[0].TMS() || !seqs[0].CaptureTDO() {
					t.Errorf("unexpected sequence %+v", seqs[0])
				}
			},
		},
		{
			name:     "TMS changes, 16 bits",
			tms:      []byte{0x0F, 0x00},
			tdi:      []byte{0xAA, 0x55},
			bits:     16,
			wantSeqs: 2,
			checkFunc: func(t *testing.T, seqs []JTAGSequence) {
				if seqs[0].TCKCount() != 4 || !seqs[0].TMS() {
					t.Errorf("Seq 0: %d clocks TMS=%v, want 4 TMS=true", seqs[0].TCKCount(), seqs[0].TMS())
				}
				if seqs[1].TCKCount() != 12 || seqs[1].TMS() {
					t.Errorf("Seq 1: %d clocks TMS=%v, want 12 TMS=false", seqs[1].TCKCount(), seqs[1].TMS())
				}
				// 0x55AA >> 4 = 0x55A
				if !bytes.Equal(seqs[1].TDI, []byte{0x5A, 0x05}) {
					t.Errorf("Seq 1 TDI = %X, want 5A05", seqs[1].TDI)
				}
			},
		},
		{
			name:     "70 bits, no TMS (should split at 64)",
			tms:      nil,
			tdi:      make([]byte, 9),
			bits:     70,
			wantSeqs: 2,
			checkFunc: func(t *testing.T, seqs []JTAGSequence) {
				if seqs[0].TCKCount() != 64 || seqs[1].TCKCount() != 6 {
					t.Errorf("counts = %d/%d, want 64/6", seqs[0].TCKCount(), seqs[1].TCKCount())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seqs := buildSequences(tt.tms, tt.tdi, tt.bits)
			if len(seqs) != tt.wantSeqs {
				t.Fatalf("Expected %d sequences, got %d", tt.wantSeqs, len(seqs))
			}
			tt.checkFunc(t, seqs)
		})
	}
}

func openVirtual(t *testing.T, tickRate int) (*CMSISDAPAdapter, *echoTarget) {
	t.Helper()
	target := &echoTarget{}
	adapter, err := OpenCMSISDAP(NewVirtualProbe(target, tickRate))
	if err != nil {
		t.Fatalf("OpenCMSISDAP: %v", err)
	}
	return adapter, target
}

func TestCMSISDAPAdapterOverVirtualProbe(t *testing.T) {
	adapter, target := openVirtual(t, 48_000_000)
	defer adapter.Close()

	info, err := adapter.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Vendor != "OpenTraceLab" || info.SerialNumber != "SIM0001" {
		t.Fatalf("unexpected info %+v", info)
	}
	if adapter.Speed() != DefaultSpeed {
		t.Fatalf("Speed = %d, want %d", adapter.Speed(), DefaultSpeed)
	}

	// 100 bits with TMS toggling forces several sequences and packets.
	const bits = 100
	tdi := make([]byte, (bits+7)/8)
	tms := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		SetBit(tdi, i, i%3 == 0)
		SetBit(tms, i, i%7 == 0)
	}
	tdo, err := adapter.ShiftDR(tms, tdi, bits)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if target.rises != bits {
		t.Fatalf("rising edges = %d, want %d", target.rises, bits)
	}
	for i := 1; i < bits; i++ {
		if GetBit(tdo, i) != GetBit(tdi, i-1) {
			t.Fatalf("tdo bit %d = %v, want %v", i, GetBit(tdo, i), GetBit(tdi, i-1))
		}
	}
}

func TestCMSISDAPAdapterResets(t *testing.T) {
	adapter, target := openVirtual(t, 48_000_000)
	defer adapter.Close()

	if err := adapter.ResetTAP(true); err != nil {
		t.Fatalf("ResetTAP(hard): %v", err)
	}
	if target.trstTicks < TRSTHoldTicks {
		t.Fatalf("TRST held for %d ticks, want at least %d", target.trstTicks, TRSTHoldTicks)
	}
	if err := adapter.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP(soft): %v", err)
	}
	if target.rises != 5 {
		t.Fatalf("soft reset clocked %d edges, want 5", target.rises)
	}
	if err := adapter.ResetTarget(); err != nil {
		t.Fatalf("ResetTarget: %v", err)
	}
	if target.resets != 1 {
		t.Fatalf("target resets = %d, want 1", target.resets)
	}
}

func TestCMSISDAPAdapterSpeedLimitedByProbe(t *testing.T) {
	// A 8 MHz target clock allows at most 2 MHz TCK.
	adapter, _ := openVirtual(t, 8_000_000)
	defer adapter.Close()

	if err := adapter.SetSpeed(2_000_000); err != nil {
		t.Fatalf("SetSpeed(2MHz): %v", err)
	}
	if err := adapter.SetSpeed(5_000_000); err == nil {
		t.Fatalf("expected probe to reject 5 MHz")
	}
	if adapter.Speed() != 2_000_000 {
		t.Fatalf("Speed = %d after rejected change, want 2000000", adapter.Speed())
	}
}

func TestVirtualProbeUnknownCommand(t *testing.T) {
	probe := NewVirtualProbe(&echoTarget{}, 48_000_000)
	resp, err := probe.WriteRead([]byte{0x7E})
	if err != nil {
		t.Fatalf("WriteRead: %v", err)
	}
	if !bytes.Equal(resp, []byte{CmdInvalid}) {
		t.Fatalf("resp = %X, want FF", resp)
	}
	probe.Close()
	if _, err := probe.WriteRead([]byte{CmdInfo, InfoVendorID}); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestCMSISDAPAdapter_ValidateInterface(t *testing.T) {
	var _ Adapter = (*CMSISDAPAdapter)(nil)
	var _ Adapter = (*PinAdapter)(nil)
}

func TestVirtualProbeChainConfiguration(t *testing.T) {
	adapter, _ := openVirtual(t, 48_000_000)
	defer adapter.Close()

	tests := []struct {
		name      string
		irLengths []byte
		wantErr   bool
	}{
		{"single dtm", []byte{DefaultIRLength}, false},
		{"wrong width", []byte{8}, true},
		{"two taps", []byte{DefaultIRLength, DefaultIRLength}, true},
		{"empty chain", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adapter.ConfigureJTAGChain(tt.irLengths)
			if tt.wantErr {
				if !errors.Is(err, ErrProbeStatus) {
					t.Fatalf("ConfigureJTAGChain(%v) = %v, want ErrProbeStatus", tt.irLengths, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConfigureJTAGChain(%v): %v", tt.irLengths, err)
			}
		})
	}
}

func TestVirtualProbePacketLimits(t *testing.T) {
	probe := NewVirtualProbe(&echoTarget{}, 48_000_000)
	defer probe.Close()

	if probe.GetPacketSize() != DefaultPacketSize {
		t.Fatalf("packet size = %d, want %d", probe.GetPacketSize(), DefaultPacketSize)
	}
	if _, err := probe.WriteRead(nil); err == nil {
		t.Fatalf("empty command accepted")
	}
	oversize := make([]byte, DefaultPacketSize+1)
	oversize[0] = CmdJTAGSequence
	if _, err := probe.WriteRead(oversize); err == nil {
		t.Fatalf("command larger than a packet accepted")
	}
}

func BenchmarkBuildSequences(b *testing.B) {
	tms := make([]byte, 100)
	tdi := make([]byte, 100)
	tms[10] = 0xFF
	tms[50] = 0xFF

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buildSequences(tms, tdi, 800)
	}
}
