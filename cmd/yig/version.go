package main

import (
	"github.com/spf13/cobra"

	"github.com/yigbench/yig/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version",
		GroupID: gAdvanced,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("client: %s %s\n", version.Version, version.GitCommit)
			if info, err := apiClient.GetVersion(); err == nil {
				cmd.Printf("daemon: %s %s\n", info.Version, info.GitCommit)
			}
		},
	}
}
