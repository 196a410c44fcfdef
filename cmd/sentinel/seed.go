package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/estatehub/sentinel/internal/seeder"
)

var (
	seedPattern string
	seedActor   string
	seedCount   int
	seedSpread  time.Duration
	seedSeed    int64
	seedPublish bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Append synthetic log events",
	Long: `Generate synthetic log events, append them to the event store and
publish them on the change feed, as the application would.

Examples:
  # Six failed logins for one actor inside two minutes
  sentinel seed --pattern brute-force --actor u-42 --count 6 --spread 2m

  # Background traffic that should never trigger anything
  sentinel seed --pattern noise --count 500 --spread 1h`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedPattern, "pattern", "brute-force", "pattern to generate: "+strings.Join(seeder.Patterns(), ", "))
	seedCmd.Flags().StringVar(&seedActor, "actor", "", "targeted actor (default: a fake username)")
	seedCmd.Flags().IntVar(&seedCount, "count", 6, "number of events")
	seedCmd.Flags().DurationVar(&seedSpread, "spread", 2*time.Minute, "time span the events are spread over, ending now")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 = random)")
	seedCmd.Flags().BoolVar(&seedPublish, "publish", true, "publish events on the change feed")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	s := seeder.New(a.store, nil, seedSeed, logger)
	if seedPublish {
		_, publisher, _, err := a.feed(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect change feed: %w", err)
		}
		if publisher != nil {
			s = seeder.New(a.store, publisher, seedSeed, logger).WithSubject(a.feedSubject())
		}
	}

	events, err := s.Run(ctx, seedPattern, seeder.Params{
		Actor:  seedActor,
		Count:  seedCount,
		Spread: seedSpread,
	})
	if err != nil {
		return err
	}

	for _, ev := range events {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s %-22s %s\n",
			ev.CreatedAt.Format(time.RFC3339), ev.Type, ev.Action, ev.ActorID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d events\n", len(events))
	return nil
}
