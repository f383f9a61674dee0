// Package cli wires the minic commands: compiling, linking, running and
// inspecting Mini programs, plus whole-project builds.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "0.1.0"

var (
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	pathStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

var (
	verboseFlag bool
	logFileFlag string
	logger      *slog.Logger
	logCloser   io.Closer
)

// NewRootCmd assembles the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "minic",
		Short: "Compiler and linker for the Mini language",
		Long: `minic compiles Mini source files into relocatable objects, links
objects into executable images, and runs the results on the built-in
stack machine.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, c, err := newLogger(verboseFlag, logFileFlag)
			if err != nil {
				return err
			}
			logger = l
			logCloser = c
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "append JSON logs to a file")

	root.AddCommand(newCompileCmd())
	root.AddCommand(newLinkCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errStyle.Render("error:"), err)
		return 1
	}
	return 0
}
