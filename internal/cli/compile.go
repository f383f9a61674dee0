package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"minic/pkg/compiler"
	"minic/pkg/link"
	"minic/pkg/obj"
)

// moduleName derives the module name recorded in an object file from its
// source path.
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newCompileCmd() *cobra.Command {
	var (
		output      string
		compileOnly bool
		entry       string
	)
	cmd := &cobra.Command{
		Use:   "compile <source.mini>...",
		Short: "Compile Mini sources into an executable or relocatable objects",
		Long: `Compile builds each source file independently and links the results, in
the order given, into one executable image. Callers list dependencies before
dependents. With --compile-only, linking is skipped and each source is
written out as a relocatable object instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if compileOnly && output != "" && len(args) > 1 {
				return fmt.Errorf("--output needs a single source with --compile-only")
			}
			mods := make([]*obj.Module, len(args))
			for i, path := range args {
				src, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				name := moduleName(path)
				m, err := compiler.Compile(string(src), name)
				if err != nil {
					return fmt.Errorf("%s: %w", pathStyle.Render(path), err)
				}
				mods[i] = m
				if !compileOnly {
					continue
				}
				data, err := obj.EncodeModule(m)
				if err != nil {
					return err
				}
				out := output
				if out == "" {
					out = name + ".mao"
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				logger.Info("compiled", "source", path, "out", out,
					"symbols", len(m.Symbols), "instructions", len(m.Code))
			}
			if compileOnly {
				return nil
			}

			exe, err := link.Link(mods, entry)
			if err != nil {
				return err
			}
			data, err := obj.EncodeExecutable(exe)
			if err != nil {
				return err
			}
			out := output
			if out == "" {
				out = moduleName(args[0]) + ".mexe"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			logger.Info("compiled and linked", "sources", len(args), "out", out,
				"instructions", len(exe.Code))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default <first source>.mexe, or <source>.mao)")
	cmd.Flags().BoolVarP(&compileOnly, "compile-only", "c", false, "emit relocatable objects instead of linking")
	cmd.Flags().StringVar(&entry, "entry", "", "entry symbol (default "+link.DefaultEntry+")")
	return cmd
}
