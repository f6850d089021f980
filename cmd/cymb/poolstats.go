package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func poolStatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "pool-stats",
		Usage:  "Warm one connection and print the pool's checkout stats",
		Flags:  commonFlags(),
		Action: runPoolStats,
	}
}

func runPoolStats(ctx context.Context, cmd *cli.Command) error {
	s, p, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	routed := s.ConnectedTo(ctx, "reading", "")
	if _, err := s.Execute(routed, "RETURN 1", nil, "pool-stats"); err != nil {
		return fmt.Errorf("cymb: warming connection: %w", err)
	}

	stats := p.Stats()
	fmt.Printf("idle=%d in_flight=%d waiting=%d max_size=%d\n", stats.Idle, stats.InFlight, stats.Waiting, stats.MaxSize)
	return nil
}
