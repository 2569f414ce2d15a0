package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quiver-ml/quiver/plugin"
)

func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect backend plugins",
	}
	cmd.AddCommand(newPluginsListCommand())
	return cmd
}

func newPluginsListCommand() *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover plugins across search paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			factory := plugin.NewFactory()
			for _, dir := range paths {
				if err := factory.AddSearchPath(dir); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			n, err := factory.Discover(func(path string, info plugin.Info) {
				fmt.Fprintf(out, "%-24s %-12s %-18s %s\n",
					info.Name, info.Version, info.Type, path)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d plugin(s) found\n", n)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "plugin search path (repeatable)")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
