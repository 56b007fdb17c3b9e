// Package monitor is a terminal view of a running DTM model. It shows the
// TAP, the arbiter and the register interface and lets the user start DMI
// transactions from the keyboard.
package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell"

	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dtm"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dtmhost"
)

// DemoAddr is the register used by the write/read key.
const DemoAddr = 0x10

var (
	styleTitle = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleLabel = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleValue = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleError = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleLog   = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleKeys  = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorTeal)
)

// Monitor draws the model state on a tcell screen. Every transaction runs
// on the event loop, so the engine is never touched concurrently.
type Monitor struct {
	screen tcell.Screen
	eng    *dtm.Engine
	bus    *dmi.MemoryBus
	ctrl   *dtmhost.Controller

	counter uint32
	status  string
	failed  bool
}

// New returns a monitor for eng. bus may be nil when the model is attached
// to something other than a MemoryBus.
func New(screen tcell.Screen, eng *dtm.Engine, bus *dmi.MemoryBus, ctrl *dtmhost.Controller) *Monitor {
	return &Monitor{screen: screen, eng: eng, bus: bus, ctrl: ctrl, status: "ready"}
}

// Status returns the message shown on the status line.
func (m *Monitor) Status() string { return m.status }

// Run draws and handles events until the user quits or ctx is done. The
// screen must already be initialised.
func (m *Monitor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		m.screen.PostEvent(tcell.NewEventInterrupt(nil))
	}()

	m.Draw()
	for {
		ev := m.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.Handle(ctx, ev) {
			return nil
		}
		m.Draw()
	}
}

// Handle applies one event and reports whether the user asked to quit.
func (m *Monitor) Handle(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		m.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return true
			case ' ':
				m.demo(ctx)
			case 'i':
				id, err := m.ctrl.ReadIDCode()
				m.report(err, "IDCODE 0x%08X", id)
			case 'r':
				m.report(m.ctrl.DMIReset(), "dmireset sent")
			case 'h':
				m.report(m.ctrl.DMIHardReset(), "dmihardreset sent")
			}
		}
	}
	return false
}

func (m *Monitor) demo(ctx context.Context) {
	m.counter++
	if err := m.ctrl.DMIWrite(ctx, DemoAddr, m.counter); err != nil {
		m.report(err, "")
		return
	}
	v, err := m.ctrl.DMIRead(ctx, DemoAddr)
	m.report(err, "wrote 0x%08X, read 0x%08X", m.counter, v)
}

func (m *Monitor) report(err error, format string, args ...interface{}) {
	if err != nil {
		m.status, m.failed = err.Error(), true
		return
	}
	m.status, m.failed = fmt.Sprintf(format, args...), false
}

// Draw renders the current model state.
func (m *Monitor) Draw() {
	s := m.screen
	s.Clear()
	w, h := s.Size()

	arb := m.eng.Arbiter()
	y := 0
	m.text(0, y, styleTitle, "OpenTraceDTM monitor")
	m.text(w-24, y, styleValue, fmt.Sprintf("tick %d", m.eng.Ticks()))
	y += 2

	m.field(0, y, "TAP", m.eng.State().String())
	m.field(30, y, "IR", m.eng.IR().String())
	y++
	m.field(0, y, "Arbiter", arb.State.String())
	m.field(30, y, "Status", m.eng.Status().String())
	m.field(50, y, "Sticky", fmt.Sprintf("%v", arb.Sticky))
	y++
	m.field(0, y, "Addr", fmt.Sprintf("0x%02X", arb.Addr))
	m.field(30, y, "WData", fmt.Sprintf("0x%08X", arb.WriteData))
	m.field(50, y, "RData", fmt.Sprintf("0x%08X", arb.ReadData))
	y++
	if m.bus != nil {
		reads, writes, errs, resets := m.bus.Stats()
		m.field(0, y, "Bus", fmt.Sprintf("reads %d writes %d errors %d resets %d", reads, writes, errs, resets))
		y++
	}
	y++

	style := styleValue
	if m.failed {
		style = styleError
	}
	m.text(0, y, styleLabel, "Status")
	m.text(10, y, style, m.status)
	y += 2

	m.text(0, y, styleLabel, "Log")
	y++
	for _, e := range logger.Recent(h - y - 1) {
		m.text(2, y, styleLog, strings.TrimSuffix(e.String(), "\n"))
		y++
	}

	m.text(0, h-1, styleKeys, " space write/read  i idcode  r dmireset  h hard reset  q quit ")
	s.Show()
}

func (m *Monitor) field(x, y int, label, value string) {
	m.text(x, y, styleLabel, label)
	m.text(x+10, y, styleValue, value)
}

func (m *Monitor) text(x, y int, style tcell.Style, str string) {
	w, _ := m.screen.Size()
	for _, r := range str {
		if x >= w {
			return
		}
		if x >= 0 {
			m.screen.SetContent(x, y, r, nil, style)
		}
		x++
	}
}
