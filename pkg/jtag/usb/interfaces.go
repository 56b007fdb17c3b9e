package usb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes adapter families.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP InterfaceKind = "cmsis-dap"
	InterfaceKindSim      InterfaceKind = "simulator"
	InterfaceKindUnknown  InterfaceKind = "unknown"
)

// InterfaceInfo describes a detected adapter interface/transport.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// DiscoverInterfaces lists attached CMSIS-DAP probes followed by the
// built-in simulator, which is always present. A USB permission error is
// not fatal; the simulator is still returned.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := lookupCMSISDAP(uint16(desc.Vendor), uint16(desc.Product))
		return ok
	})
	for _, dev := range devs {
		known, _ := lookupCMSISDAP(uint16(dev.Desc.Vendor), uint16(dev.Desc.Product))
		serial, _ := dev.SerialNumber()
		results = append(results, InterfaceInfo{
			Kind:        InterfaceKindCMSISDAP,
			Description: known.Description,
			VendorID:    known.VendorID,
			ProductID:   known.ProductID,
			Serial:      serial,
		})
		dev.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, fmt.Errorf("usb: discovery: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "DTM model (no hardware)",
	})
	return results, nil
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownCMSISDAPVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDRaspberryPi, ProductID: ProductIDCMSISDAP, Description: "Raspberry Pi CMSIS-DAP"},
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
	{VendorID: 0xc251, ProductID: 0xf001, Description: "Keil ULINKplus CMSIS-DAP"},
}

func lookupCMSISDAP(vid, pid uint16) (knownUSBDevice, bool) {
	for _, known := range knownCMSISDAPVIDPIDs {
		if known.VendorID == vid && known.ProductID == pid {
			return known, true
		}
	}
	return knownUSBDevice{}, false
}
