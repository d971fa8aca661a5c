package cli

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "draftforge",
		Short: "Iteratively generate and refine long-form articles",
	}

	root.AddCommand(
		GenerateCmd(),
	)

	return root
}
