package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/idcode"
)

var idcodeCmd = &cobra.Command{
	Use:   "idcode",
	Short: "Read the identification register",
	Long: `Reset the TAP, select IDCODE and scan the identification register out.
The value is decoded into version, part number and JEP106 manufacturer.`,
	Args: cobra.NoArgs,
	RunE: runIDCode,
}

func init() {
	rootCmd.AddCommand(idcodeCmd)
}

func runIDCode(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	raw, err := s.ctrl.ReadIDCode()
	if err != nil {
		return err
	}
	id := idcode.ParseIDCode(raw)
	fmt.Printf("IDCODE: 0x%08X\n", raw)
	fmt.Printf("  Version:      %d\n", id.Version)
	fmt.Printf("  Part number:  0x%04X\n", id.PartNumber)
	if m, ok := idcode.LookupManufacturer(id.ManufacturerCode); ok {
		fmt.Printf("  Manufacturer: %s\n", m)
	} else {
		fmt.Printf("  Manufacturer: 0x%03X\n", id.ManufacturerCode)
	}
	return nil
}
