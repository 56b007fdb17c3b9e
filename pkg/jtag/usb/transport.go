// Package usb reaches real CMSIS-DAP probes through libusb. Everything else
// in the module builds without it.
package usb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
)

const (
	// Debugprobe (Raspberry Pi) USB identifiers, the default probe.
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C

	DefaultTimeout = 5 * time.Second
)

// Transport carries CMSIS-DAP packets over the bulk endpoints of a probe.
type Transport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

var _ jtag.Transport = (*Transport)(nil)

// NewTransport opens the first probe matching vid:pid and claims its
// vendor-class interface.
func NewTransport(vid, pid uint16) (*Transport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usb: open %04X:%04X: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usb: device %04X:%04X not found", vid, pid)
	}

	// Not supported everywhere; a failure here only matters on Linux with
	// a kernel driver bound.
	_ = dev.SetAutoDetach(true)

	t := &Transport{
		ctx:        ctx,
		dev:        dev,
		packetSize: jtag.DefaultPacketSize,
		timeout:    DefaultTimeout,
	}
	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// Open connects to the probe vid:pid and returns a CMSIS-DAP adapter over
// it. Closing the adapter closes the transport.
func Open(vid, pid uint16) (*jtag.CMSISDAPAdapter, error) {
	t, err := NewTransport(vid, pid)
	if err != nil {
		return nil, err
	}
	adapter, err := jtag.OpenCMSISDAP(t)
	if err != nil {
		t.Close()
		return nil, err
	}
	return adapter, nil
}

// claimInterface picks the first vendor-class interface, falling back to
// interface 0.
func (t *Transport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("usb: usb config: %w", err)
	}
	t.cfg = cfg

	num := 0
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = intf.Number
			break
		}
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("usb: claim interface %d: %w", num, err)
	}
	t.intf = intf
	return t.findEndpoints()
}

// findEndpoints opens the bulk IN and OUT endpoints of the claimed interface.
func (t *Transport) findEndpoints() error {
	var outAddr, inAddr int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outAddr == 0:
			outAddr = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inAddr == 0:
			inAddr = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outAddr == 0 || inAddr == 0 {
		return fmt.Errorf("usb: bulk endpoints not found (out=%d in=%d)", outAddr, inAddr)
	}

	epOut, err := t.intf.OutEndpoint(outAddr)
	if err != nil {
		return fmt.Errorf("usb: open OUT endpoint: %w", err)
	}
	epIn, err := t.intf.InEndpoint(inAddr)
	if err != nil {
		return fmt.Errorf("usb: open IN endpoint: %w", err)
	}
	t.epOut, t.epIn = epOut, epIn
	return nil
}

// WriteRead sends one padded command packet and reads the reply, both
// bounded by the transport timeout.
func (t *Transport) WriteRead(cmd []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.WriteContext(ctx, packet); err != nil {
		return nil, fmt.Errorf("usb: usb write: %w", err)
	}

	resp := make([]byte, t.packetSize)
	n, err := t.epIn.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("usb: usb read: %w", err)
	}
	return resp[:n], nil
}

// GetPacketSize returns the current packet size
func (t *Transport) GetPacketSize() int {
	return t.packetSize
}

// SetTimeout sets the read/write timeout
func (t *Transport) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// Close releases USB resources
func (t *Transport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// DeviceInfo represents a discovered USB device
type DeviceInfo struct {
	VID          uint16
	PID          uint16
	SerialNumber string
	Description  string
}

// EnumerateProbes lists connected probes with a known CMSIS-DAP VID:PID.
func EnumerateProbes() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := lookupCMSISDAP(uint16(desc.Vendor), uint16(desc.Product))
		return ok
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("usb: enumerate: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		devices = append(devices, DeviceInfo{
			VID:          uint16(dev.Desc.Vendor),
			PID:          uint16(dev.Desc.Product),
			SerialNumber: serial,
			Description:  fmt.Sprintf("%s %s", manufacturer, product),
		})
		dev.Close()
	}
	return devices, nil
}
