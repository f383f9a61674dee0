package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"minic/pkg/obj"
	"minic/pkg/vm"
)

func newInspectCmd() *cobra.Command {
	var showCode bool
	cmd := &cobra.Command{
		Use:   "inspect <file.mao|file.mexe>",
		Short: "Show the contents of an object or executable file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if strings.HasSuffix(args[0], ".mexe") {
				exe, err := obj.DecodeExecutable(data)
				if err != nil {
					return err
				}
				return inspectExecutable(cmd, exe, showCode)
			}
			m, err := obj.DecodeModule(data)
			if err != nil {
				return err
			}
			return inspectModule(cmd, m, showCode)
		},
	}
	cmd.Flags().BoolVar(&showCode, "code", false, "disassemble the code segment")
	return cmd
}

func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	return t
}

func inspectModule(cmd *cobra.Command, m *obj.Module, showCode bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "module %s: %d instructions, %d pool constants\n",
		m.Name, len(m.Code), len(m.Pool))

	if len(m.Symbols) > 0 {
		t := newTable(cmd)
		t.AppendHeader(table.Row{"Symbol", "Offset", "Signature"})
		for _, s := range m.Symbols {
			t.AppendRow(table.Row{s.Name, s.Offset, s.Sig})
		}
		t.Render()
	}
	if len(m.Relocs) > 0 {
		t := newTable(cmd)
		t.AppendHeader(table.Row{"Call Site", "Needs"})
		for _, r := range m.Relocs {
			t.AppendRow(table.Row{r.Offset, r.Symbol})
		}
		t.Render()
	}
	if showCode {
		disassemble(cmd, m.Code)
	}
	return nil
}

func inspectExecutable(cmd *cobra.Command, exe *obj.Executable, showCode bool) error {
	fmt.Fprintf(cmd.OutOrStdout(), "executable: entry %d, %d instructions, %d pool constants\n",
		exe.Entry, len(exe.Code), len(exe.Pool))
	if showCode {
		disassemble(cmd, exe.Code)
	}
	return nil
}

func disassemble(cmd *cobra.Command, code []vm.Instruction) {
	out := cmd.OutOrStdout()
	for i, in := range code {
		fmt.Fprintf(out, "%6d  %s\n", i, in)
	}
}
