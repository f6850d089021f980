// Command cymb is a CLI that sends raw Cypher text through this module's
// session, router, pool and Bolt transport to a live Neo4j/Memgraph
// endpoint; it does not use the query builder.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "cymb",
		Version: version,
		Usage:   "Cypher/Bolt driver CLI",
		Commands: []*cli.Command{
			runCommand(),
			poolStatsCommand(),
			pingCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
