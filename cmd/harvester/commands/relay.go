package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var relayOnce bool

func init() {
	relayCmd.Flags().BoolVar(&relayOnce, "once", false, "relay one batch of pending events and exit")
	rootCmd.AddCommand(relayCmd)
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forwards outbox events to the Redis stream.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg.Database.Enabled = true

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		relay := database.NewRelay(db, redisClient, log, cfg.RelayConfig())

		if relayOnce {
			res, err := relay.ProcessOnce(ctx)
			if err != nil {
				return err
			}
			backlog, err := relay.Backlog(ctx)
			if err != nil {
				return err
			}
			renderRelayResult(cmd.OutOrStdout(), res, backlog)
			return nil
		}

		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
