package cmd

import (
	"github.com/spf13/cobra"

	"label-processor/internal/parser"
)

func newPatternsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the recognition patterns in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.formatter(cmd).PrintPatterns(parser.ListPatterns())
		},
	}
}
