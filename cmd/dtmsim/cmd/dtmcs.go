package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dtmcsReset     bool
	dtmcsHardReset bool
)

var dtmcsCmd = &cobra.Command{
	Use:   "dtmcs",
	Short: "Show the DTM control and status register",
	Long: `Capture dtmcs and print its fields. With --dmireset the sticky error is
cleared first; with --hardreset any transaction in flight is abandoned and the
register interface is reset.`,
	Args: cobra.NoArgs,
	RunE: runDTMCS,
}

func init() {
	rootCmd.AddCommand(dtmcsCmd)

	dtmcsCmd.Flags().BoolVar(&dtmcsReset, "dmireset", false, "clear the sticky error before reading")
	dtmcsCmd.Flags().BoolVar(&dtmcsHardReset, "hardreset", false, "hard reset the DMI before reading")
}

func runDTMCS(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if dtmcsHardReset {
		if err := s.ctrl.DMIHardReset(); err != nil {
			return err
		}
	}
	if dtmcsReset {
		if err := s.ctrl.DMIReset(); err != nil {
			return err
		}
	}

	cs, err := s.ctrl.ReadDTMCS()
	if err != nil {
		return err
	}
	fmt.Println("DTMCS:")
	fmt.Printf("  Version: %d\n", cs.Version)
	fmt.Printf("  Abits:   %d\n", cs.Abits)
	fmt.Printf("  DMIStat: %s\n", cs.DMIStat)
	fmt.Printf("  Idle:    %d\n", cs.Idle)
	return nil
}
