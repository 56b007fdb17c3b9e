package cmd

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dtm"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dtmhost"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag/usb"
)

var (
	probeVID uint16 = usb.VendorIDRaspberryPi
	probePID uint16 = usb.ProductIDCMSISDAP
)

// session is one connection to a DTM, simulated or real.
type session struct {
	cfg     *dtm.Config
	adapter jtag.Adapter
	ctrl    *dtmhost.Controller

	// Only set when the model runs in-process.
	eng *dtm.Engine
	bus *dmi.MemoryBus

	closer func() error
}

func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// loadConfig returns the config named by --config, or the defaults, with
// --tick-rate applied.
func loadConfig() (*dtm.Config, error) {
	cfg := dtm.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = dtm.LoadConfig(fs, configPath); err != nil {
			return nil, err
		}
	}
	if tickRate != 0 {
		cfg.TickRate = tickRate
	}
	return cfg, cfg.Validate()
}

// openSession builds the adapter selected by --adapter and initialises the
// DTM behind it.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}

	switch adapterType {
	case "sim", "simulator", "pins":
		s.bus = cfg.NewBus()
		s.eng, err = dtm.New(cfg, s.bus)
		if err != nil {
			return nil, err
		}
		if adapterType == "pins" {
			s.adapter = jtag.NewPinAdapter(s.eng, int(cfg.TickRate))
			break
		}
		adapter, err := jtag.OpenCMSISDAP(jtag.NewVirtualProbe(s.eng, int(cfg.TickRate)))
		if err != nil {
			return nil, err
		}
		s.adapter, s.closer = adapter, adapter.Close
	case "cmsisdap":
		adapter, err := usb.Open(probeVID, probePID)
		if err != nil {
			return nil, err
		}
		s.adapter, s.closer = adapter, adapter.Close
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", adapterType)
	}

	if speedHz > 0 {
		if err := s.adapter.SetSpeed(speedHz); err != nil && !errors.Is(err, jtag.ErrNotImplemented) {
			s.Close()
			return nil, fmt.Errorf("failed to set speed: %w", err)
		}
	}

	if verbose {
		if info, err := s.adapter.Info(); err == nil {
			fmt.Printf("Adapter: %s\n", info)
		}
	}

	s.ctrl = dtmhost.NewController(s.adapter)
	if _, err := s.ctrl.Init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func init() {
	rootCmd.PersistentFlags().Uint16Var(&probeVID, "vid", probeVID, "cmsisdap: probe USB vendor ID")
	rootCmd.PersistentFlags().Uint16Var(&probePID, "pid", probePID, "cmsisdap: probe USB product ID")
}
