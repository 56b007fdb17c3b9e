package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
)

var dmiTimeout time.Duration

var dmiCmd = &cobra.Command{
	Use:   "dmi",
	Short: "Access registers through the debug module interface",
}

var dmiReadCmd = &cobra.Command{
	Use:   "read <addr>",
	Short: "Read a DMI register",
	Example: `  dtmsim dmi read 0x11
  dtmsim dmi read 16 --adapter cmsisdap`,
	Args: cobra.ExactArgs(1),
	RunE: runDMIRead,
}

var dmiWriteCmd = &cobra.Command{
	Use:     "write <addr> <data>",
	Short:   "Write a DMI register",
	Example: `  dtmsim dmi write 0x10 0x80000001`,
	Args:    cobra.ExactArgs(2),
	RunE:    runDMIWrite,
}

func init() {
	rootCmd.AddCommand(dmiCmd)
	dmiCmd.AddCommand(dmiReadCmd, dmiWriteCmd)

	dmiCmd.PersistentFlags().DurationVar(&dmiTimeout, "timeout", 5*time.Second, "give up on a busy DMI after this long")
}

func parseAddr(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > dmi.AddrMask {
		return 0, fmt.Errorf("invalid DMI address %q (0x00-0x%02X)", s, dmi.AddrMask)
	}
	return uint8(v), nil
}

func runDMIRead(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dmiTimeout)
	defer cancel()

	v, err := s.ctrl.DMIRead(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Printf("dmi[0x%02X] = 0x%08X\n", addr, v)
	return nil
}

func runDMIWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	data, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid data %q: %w", args[1], err)
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dmiTimeout)
	defer cancel()

	if err := s.ctrl.DMIWrite(ctx, addr, uint32(data)); err != nil {
		return err
	}
	fmt.Printf("dmi[0x%02X] <- 0x%08X\n", addr, data)
	if verbose && s.bus != nil {
		reads, writes, errs, _ := s.bus.Stats()
		fmt.Printf("bus: %d reads, %d writes, %d errors\n", reads, writes, errs)
	}
	return nil
}
