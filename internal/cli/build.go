package cli

import (
	"github.com/spf13/cobra"

	"minic/pkg/build"
)

func newBuildCmd() *cobra.Command {
	var (
		configPath string
		jobs       int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile and link every target in the project file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, root, err := loadProject(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			runner := &build.Runner{
				Project: project,
				Root:    root,
				Log:     logger,
				Jobs:    jobs,
			}
			return runner.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "project file (default mini.yaml)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "max concurrent targets (default number of CPUs)")
	cmd.Flags().String("out-dir", "", "directory for build products")
	return cmd
}
