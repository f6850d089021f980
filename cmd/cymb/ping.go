package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Dial the endpoint and run RETURN 1 to confirm connectivity",
		Flags:  commonFlags(),
		Action: runPing,
	}
}

func runPing(ctx context.Context, cmd *cli.Command) error {
	s, p, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	routed := s.ConnectedTo(ctx, "reading", "")
	_, err = s.Execute(routed, "RETURN 1", nil, "ping")
	if err != nil {
		return fmt.Errorf("cymb: ping failed: %w", err)
	}
	fmt.Printf("ok (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}
