package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var projectRoot string

	root := &cobra.Command{
		Use:           "pictopercept",
		Short:         "Paired-image forced-choice survey server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root containing config/")

	root.AddCommand(newServeCmd(&projectRoot))
	root.AddCommand(newDeckCmd(&projectRoot))
	return root
}
