// Package dtm is a cycle-accurate behavioral model of a JTAG Debug Transport
// Module: a TAP controller, its register bank and a DMI arbiter evaluated
// together once per model tick.
//
// # Overview
//
// The model is driven entirely by the caller. Each call to Engine.Tick
// samples the four JTAG lines, clocks the external register interface
// (a dmi.Bus) once and advances both state machines:
//
//	bus := dmi.NewMemoryBus()
//	eng, err := dtm.New(dtm.DefaultConfig(), bus)
//	for _, p := range pins {
//		eng.Tick(p)
//		tdo := eng.TDO()
//	}
//
// TCK edges are only seen through a synchronizer, so the lines must hold each
// level for at least one tick (an edge rate of at most a quarter of the tick
// rate with a symmetric clock). jtag.PinAdapter takes care of that.
//
// # Registers
//
//	IR     5 bits   00001 IDCODE, 10000 DTMCS, 10001 DMI, anything else BYPASS
//	IDCODE 32 bits  version[31:28] part[27:12] manufacturer[11:1] 1
//	DTMCS  32 bits  dmihardreset[17] dmireset[16] idle[14:12]=2
//	                dmistat[11:10] abits[9:4]=7 version[3:0]=1
//	DMI    41 bits  addr[40:34] data[33:2] op[1:0]
//	BYPASS 1 bit
//
// Capture-IR always reloads IDCODE, so IDCODE is selected after every
// instruction scan until a new instruction is shifted in.
//
// # Resets
//
// Reset reinitialises everything. ResetTransport, and the synchronized TRST
// line, only touch the TAP controller and the instruction register so an
// in-flight DMI transaction survives. dtmcs.dmihardreset is the only way to
// abandon a transaction; dtmcs.dmireset clears the sticky error.
package dtm
