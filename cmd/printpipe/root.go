package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "printpipe",
		Short:         "A print job pipeline with a single-worker scheduler.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newDemoCmd(), newHashPasswordCmd())
	return root
}
