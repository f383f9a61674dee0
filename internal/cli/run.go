package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"minic/pkg/obj"
	"minic/pkg/vm"
)

func newRunCmd() *cobra.Command {
	var maxSteps int
	cmd := &cobra.Command{
		Use:   "run <program.mexe> [arg]...",
		Short: "Run an executable image on the stack machine",
		Long: `Run loads a linked image and executes it from its entry point. Each
argument is one entry-function stack slot, given as a decimal or 0x-prefixed
integer. Result slots are printed one per line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			exe, err := obj.DecodeExecutable(data)
			if err != nil {
				return fmt.Errorf("%s: %w", pathStyle.Render(args[0]), err)
			}
			vmArgs := make([]vm.Value, len(args)-1)
			for i, a := range args[1:] {
				w, err := strconv.ParseUint(a, 0, 64)
				if err != nil {
					return fmt.Errorf("argument %q is not an integer", a)
				}
				vmArgs[i] = vm.Word64(w)
			}

			m := vm.New(exe.Code, exe.Pool)
			if maxSteps > 0 {
				m.MaxSteps = maxSteps
			}
			results, err := m.Run(int(exe.Entry), vmArgs)
			var trap *vm.TrapError
			if errors.As(err, &trap) {
				return fmt.Errorf("program failed: %w", trap)
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "execution step limit (default built-in limit)")
	return cmd
}
