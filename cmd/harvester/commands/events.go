package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maltedev/basket-harvester/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var eventsFlags struct {
	group         string
	consumer      string
	retryDelay    time.Duration
	maxDeliveries int
}

func init() {
	host, _ := os.Hostname()
	eventsCmd.Flags().StringVar(&eventsFlags.group, "group", "harvester-cli", "consumer group name")
	eventsCmd.Flags().StringVar(&eventsFlags.consumer, "consumer", "cli-"+host, "consumer name within the group")
	eventsCmd.Flags().DurationVar(&eventsFlags.retryDelay, "retry-delay", 30*time.Second, "pause before failed events are read back from the pending list")
	eventsCmd.Flags().IntVar(&eventsFlags.maxDeliveries, "max-deliveries", 5, "deliveries of one event before it is dropped")
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follows harvest events on the Redis stream.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if eventsFlags.maxDeliveries < 1 {
			return fmt.Errorf("--max-deliveries must be at least 1")
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		out := cmd.OutOrStdout()
		consumer := events.NewConsumer(redisClient, eventsFlags.group, eventsFlags.consumer, log)
		consumer.RetryDelay = eventsFlags.retryDelay
		consumer.MaxDeliveries = eventsFlags.maxDeliveries
		err := consumer.Run(ctx, func(ctx context.Context, id string, p *events.HarvestPayload) error {
			fmt.Fprintf(out, "%s %s profile=%s outcome=%s records=%d artifact=%s\n",
				id, p.EventType, p.Profile, p.Outcome, p.RecordCount, p.Artifact)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
