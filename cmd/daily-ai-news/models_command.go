package main

import (
	"fmt"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/cj4yoyo1228/daily-ai-news/internal/embedding"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered embedding models",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, m := range embedding.ListModels() {
				marker := " "
				if m.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s %s: %s\n", marker, runewidth.FillRight(m.Version, 8), m.Name, m.Description)
			}
			return nil
		},
	}
}
