package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"minic/pkg/link"
	"minic/pkg/obj"
)

func newLinkCmd() *cobra.Command {
	var (
		output string
		entry  string
	)
	cmd := &cobra.Command{
		Use:   "link <object.mao>...",
		Short: "Link relocatable objects into an executable image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mods := make([]*obj.Module, len(args))
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				m, err := obj.DecodeModule(data)
				if err != nil {
					return fmt.Errorf("%s: %w", pathStyle.Render(path), err)
				}
				mods[i] = m
			}
			exe, err := link.Link(mods, entry)
			if err != nil {
				return err
			}
			data, err := obj.EncodeExecutable(exe)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			logger.Info("linked", "objects", len(mods), "out", output,
				"instructions", len(exe.Code))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "a.mexe", "executable file to write")
	cmd.Flags().StringVar(&entry, "entry", "", "entry symbol (default "+link.DefaultEntry+")")
	return cmd
}
