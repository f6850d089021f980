// Command cymb-console is an interactive terminal UI that live-monitors
// the pool/router state of every db_key in a cymb mapping file: idle,
// busy and waiting connection counts per endpoint, plus a feed of recent
// telemetry.Events (spec.md §4.13, SPEC_FULL.md 4.13).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/cyphergraph/go-cypher-bolt/config"
	"github.com/cyphergraph/go-cypher-bolt/driver"
	"github.com/cyphergraph/go-cypher-bolt/internal/telemetry"
	"github.com/cyphergraph/go-cypher-bolt/pool"
	"github.com/cyphergraph/go-cypher-bolt/router"
	"github.com/cyphergraph/go-cypher-bolt/session"
)

// ErrNoEndpoints is returned when the config directory has no mapping
// file and no --uri was given: there is nothing to monitor.
var ErrNoEndpoints = errors.New("cymb-console: no endpoints configured (need a cymb.yaml mapping or --uri)")

// recordedEvents bounds the in-memory telemetry feed shown by the TUI.
const recordedEvents = 200

func main() {
	app := &cli.Command{
		Name:  "cymb-console",
		Usage: "Live pool/router monitor TUI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Usage: "directory to search for a cymb.yaml mapping file", Value: "."},
			&cli.StringFlag{Name: "uri", Usage: "single driver URL to monitor, registered as db_key \"cli\""},
			&cli.IntFlag{Name: "pool-size", Usage: "maximum pool size per endpoint", Value: 4},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "verbose logging to stderr"},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(_ context.Context, cmd *cli.Command) error {
	endpoints, err := resolveEndpoints(cmd)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		return ErrNoEndpoints
	}

	logger := zap.NewNop()
	if cmd.Bool("verbose") {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}

	recorder := telemetry.NewRecorder(recordedEvents)
	emitter := telemetry.NewEmitter(logger).WithRecorder(recorder)

	r := router.New()
	eps := make([]*endpoint, 0, len(endpoints))
	for dbKey, ep := range endpoints {
		p := pool.New(driver.Dialer(ep, logger), pool.Config{MaxSize: int(cmd.Int("pool-size")), Logger: logger})
		r.RegisterPool(dbKey, p)
		if err := r.SetRouting(dbKey, &router.ModelRouting{
			RoleMap: map[string]router.RoleRoute{
				"writing": {DBKey: dbKey},
				"reading": {DBKey: dbKey},
			},
		}); err != nil {
			return err
		}
		eps = append(eps, &endpoint{dbKey: dbKey, pool: p, session: session.New(dbKey, r, emitter)})
	}
	defer func() {
		for _, ep := range eps {
			_ = ep.pool.Close()
		}
	}()

	model := newConsoleModel(eps, recorder)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		opts = append(opts, tea.WithInput(nil))
	}

	_, err = tea.NewProgram(model, opts...).Run()
	return err
}

// resolveEndpoints merges --uri (registered as db_key "cli") with every
// entry in the nearest cymb.yaml mapping file, if one exists.
func resolveEndpoints(cmd *cli.Command) (map[string]config.Endpoint, error) {
	out := map[string]config.Endpoint{}

	mapping, err := config.LoadMapping(cmd.String("config-dir"))
	if err != nil {
		return nil, fmt.Errorf("cymb-console: loading config: %w", err)
	}
	for _, key := range mapping.Keys() {
		ep, err := mapping.For(key)
		if err != nil {
			return nil, fmt.Errorf("cymb-console: resolving db_key %q: %w", key, err)
		}
		out[key] = ep
	}

	if uri := cmd.String("uri"); uri != "" {
		ep, err := config.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("cymb-console: parsing --uri: %w", err)
		}
		out["cli"] = ep
	}

	return out, nil
}
