package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gdamore/tcell"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
	"github.com/OpenTraceLab/OpenTraceDTM/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal view of the simulated DTM",
	Long: `Open a full-screen view of the in-process model showing the TAP state, the
instruction register, the DMI arbiter and the register interface counters.

Keys:
  space  write a counter to 0x10 and read it back
  i      read IDCODE
  r      dmireset
  h      dmihardreset
  q/Esc  quit`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if adapterType == "cmsisdap" {
		return fmt.Errorf("monitor needs the in-process model (--adapter sim or pins)")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer screen.Fini()
	screen.DisableMouse()
	screen.HideCursor()

	// Echoing to stderr would scribble over the screen.
	logger.SetEcho(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return monitor.New(screen, s.eng, s.bus, s.ctrl).Run(ctx)
}
