package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Fetch the category tree from every source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"categories": env.Coord.Categories(ctx),
		})
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
