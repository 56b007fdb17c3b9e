package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	adapterType string
	tickRate    uint64
	speedHz     int

	// fs backs config and SVF file access. Tests swap in a memory filesystem.
	fs afero.Fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "dtmsim",
	Short: "RISC-V JTAG debug transport model and host driver",
	Long: `A cycle-level model of a RISC-V JTAG debug transport module together with
the host-side tooling to drive it, either through a simulated CMSIS-DAP probe or
through real hardware.

Examples:
  dtmsim idcode                                  # Read IDCODE from the model
  dtmsim dmi write 0x10 0xdeadbeef               # Write a DMI register
  dtmsim dmi read 0x10 --adapter cmsisdap        # Read through a USB probe
  dtmsim svf test.svf                            # Play an SVF file
  dtmsim monitor                                 # Live terminal view`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetEcho(os.Stderr)
		} else {
			logger.SetEcho(nil)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "model config file (JSON)")
	rootCmd.PersistentFlags().StringVarP(&adapterType, "adapter", "a", "sim",
		"adapter type (sim, pins, cmsisdap)")
	rootCmd.PersistentFlags().Uint64Var(&tickRate, "tick-rate", 0,
		"model clock in Hz (default from config)")
	rootCmd.PersistentFlags().IntVar(&speedHz, "speed", 0,
		"TCK speed in Hz (default: adapter default)")
}
