package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/svf"
)

var svfCmd = &cobra.Command{
	Use:   "svf <file>",
	Short: "Play a Serial Vector Format file",
	Long: `Parse an SVF file and clock it through the selected adapter. Every TDO
operand is compared under its MASK; the first mismatch stops playback and is
reported with its line number.`,
	Args: cobra.ExactArgs(1),
	RunE: runSVF,
}

func init() {
	rootCmd.AddCommand(svfCmd)
}

func runSVF(cmd *cobra.Command, args []string) error {
	parser, err := svf.NewParser()
	if err != nil {
		return err
	}
	file, err := parser.ParseFile(fs, args[0])
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Parsed %d statements from %s\n", len(file.Commands), args[0])
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	// The player starts from Test-Logic-Reset.
	if err := s.adapter.ResetTAP(false); err != nil {
		return err
	}
	player := svf.NewPlayer(s.adapter)
	if err := player.Run(context.Background(), file); err != nil {
		return err
	}
	statements, clocks := player.Stats()
	fmt.Printf("SVF OK: %d statements, %d TCK cycles\n", statements, clocks)
	return nil
}
