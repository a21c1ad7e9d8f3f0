package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tasks/internal/config"
	"github.com/idilsaglam/tasks/internal/ui"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialise settings",
		Args:  exactArgs(0, "config <init|show>"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageErr("usage: tasks config <init|show>")
		},
	}

	var force, project bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings to a config file",
		Args:  exactArgs(0, "config init [--project] [--force]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ProjectPath()
			if !project {
				dir := o.dir
				if dir == "" {
					d, err := config.DefaultDir()
					if err != nil {
						return err
					}
					dir = d
				}
				path = config.GlobalPath(dir)
			}
			if err := config.WriteDefaults(path, force); err != nil {
				return fmt.Errorf("config init: %w", err)
			}
			ui.OK("wrote " + path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&project, "project", false, "write ./.tasks/config.yaml instead")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  exactArgs(0, "config show"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			b, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# dir: %s\n%s", cfg.Dir, b)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
