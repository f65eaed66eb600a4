package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buy-smart/pricewatch/internal/poll"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Re-run tracked queries on an interval to build price history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		p := poll.New(
			env.Store,
			env.Coord,
			env.Registry,
			env.Registrar,
			time.Duration(cfg.Poll.IntervalMins)*time.Minute,
			cfg.Search.PageSize,
		)
		p.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
