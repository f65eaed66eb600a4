package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	searchPage     int
	searchPageSize int
	searchRegister bool
	searchTrack    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a one-shot product search across all sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if searchTrack {
			if err := env.Store.AddTrackedQuery(ctx, query); err != nil {
				return eris.Wrapf(err, "track query %q", query)
			}
			zap.L().Info("query tracked for polling", zap.String("query", query))
		}

		pageSize := searchPageSize
		if pageSize <= 0 {
			pageSize = cfg.Search.PageSize
		}

		results, failures := searchAndRecord(ctx, env, query, searchPage, pageSize, searchRegister)

		for source, msg := range failures {
			zap.L().Warn("source failed", zap.String("source", source), zap.String("error", msg))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"query":   query,
			"results": results,
		})
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page to fetch")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 0, "results per page (default from config)")
	searchCmd.Flags().BoolVar(&searchRegister, "register", false, "register results into the catalog")
	searchCmd.Flags().BoolVar(&searchTrack, "track", false, "add the query to the poller's tracked set")
	rootCmd.AddCommand(searchCmd)
}
