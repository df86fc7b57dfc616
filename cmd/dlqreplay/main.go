// Command deltastream-dlqreplay is the operator tool for spec §6's
// DLQ recovery path: it lists and replays permanently-failed tasks
// captured by the worker pool, using the cobra command framework the
// same way the NSE-analysis CLI in the example corpus structures its
// subcommands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/broker"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/config"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/logger"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

var kindFilter string
var limit int64

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deltastream-dlqreplay",
	Short: "Inspect and replay DeltaStream's dead-letter queue",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries currently parked in the DLQ without removing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		entries, err := cache.ReadDLQ(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("read dlq: %w", err)
		}
		for _, raw := range entries {
			var e model.DLQEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				fmt.Fprintf(os.Stderr, "skipping malformed dlq entry: %v\n", err)
				continue
			}
			if kindFilter != "" && e.TaskKind != kindFilter {
				continue
			}
			fmt.Printf("%s\t%s\ttask=%s\tattempts=%d\tfailed_at=%s\terror=%s\n",
				e.ID, e.TaskKind, e.TaskID, e.Attempts, e.FailedAt.Format("2006-01-02T15:04:05Z"), e.Error)
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Pop matching DLQ entries and requeue them onto the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		cb := broker.NewCircuitBreaker(5, 0, logger.New(config.Load()))
		queue := broker.NewRedisQueue(cache.Client(), cb)

		entries, err := cache.PopDLQ(ctx, limit)
		if err != nil {
			return fmt.Errorf("pop dlq: %w", err)
		}

		var requeued, skipped, leftover int
		for _, raw := range entries {
			var e model.DLQEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				fmt.Fprintf(os.Stderr, "skipping malformed dlq entry: %v\n", err)
				skipped++
				continue
			}
			if kindFilter != "" && e.TaskKind != kindFilter {
				// Not ours to replay; put it back for another operator run.
				if err := cache.AppendDLQ(ctx, raw); err != nil {
					fmt.Fprintf(os.Stderr, "failed to re-park entry %s: %v\n", e.ID, err)
				}
				leftover++
				continue
			}
			task, err := model.UnmarshalTask(e.Args)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping entry %s with unparseable task: %v\n", e.ID, err)
				skipped++
				continue
			}
			task.Attempt = 0
			if err := queue.Enqueue(ctx, task); err != nil {
				fmt.Fprintf(os.Stderr, "failed to requeue task %s: %v\n", task.ID, err)
				skipped++
				continue
			}
			requeued++
		}
		fmt.Printf("requeued=%d skipped=%d left_in_dlq=%d\n", requeued, skipped, leftover)
		return nil
	},
}

func openCache() (*store.RedisCache, error) {
	cfg := config.Load()
	cache, err := store.NewRedisCache(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if err := cache.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return cache, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kindFilter, "kind", "", "only operate on this task kind (EnrichTick, EnrichChain, RecomputeOHLC)")
	rootCmd.PersistentFlags().Int64Var(&limit, "limit", 1000, "maximum number of dlq entries to process")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(replayCmd)
}
