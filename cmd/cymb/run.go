package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/cyphergraph/go-cypher-bolt/session"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

var ErrMissingCypher = errors.New("cymb: run requires a Cypher statement argument")

func runCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "query parameter key=value, repeatable"},
		&cli.StringFlag{Name: "role", Usage: "routing role", Value: "writing"},
		&cli.StringFlag{Name: "shard", Usage: "routing shard"},
		&cli.BoolFlag{Name: "json", Usage: "print results as JSON"},
	)
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a single Cypher statement",
		ArgsUsage: "<cypher>",
		Flags:     flags,
		Action:    runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	cypher := strings.Join(cmd.Args().Slice(), " ")
	if cypher == "" {
		return ErrMissingCypher
	}

	params, err := parseParams(cmd.StringSlice("param"))
	if err != nil {
		return err
	}

	s, p, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	routed := s.ConnectedTo(ctx, cmd.String("role"), cmd.String("shard"))
	rows, err := s.Execute(routed, cypher, params, "cli")
	if err != nil {
		return fmt.Errorf("cymb: executing query: %w", err)
	}

	if cmd.Bool("json") {
		return printJSON(rows)
	}
	printTable(rows)
	return nil
}

func parseParams(raw []string) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(raw))
	for _, kv := range raw {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("cymb: invalid --param %q, expected key=value", kv)
		}
		out[key] = inferLiteral(val)
	}
	return out, nil
}

func inferLiteral(s string) value.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Int(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Float(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return value.Bool(b)
	}
	return value.Str(s)
}

func printJSON(rows session.Rows) error {
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		m := make(map[string]string, len(row))
		for k, v := range row {
			m[k] = v.String()
		}
		out[i] = m
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// rowHeaderColor, keyColor and reset are only emitted when stdout is a
// terminal (mattn/go-isatty), the same gate the teacher's TUI uses to
// decide between an animated and a plain formatter.
const (
	rowHeaderColor = "\x1b[1;34m" // bold blue
	keyColor       = "\x1b[36m"   // cyan
	ansiReset      = "\x1b[0m"
)

func printTable(rows session.Rows) {
	colorize := isatty.IsTerminal(os.Stdout.Fd())

	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return
	}
	for i, row := range rows {
		if colorize {
			fmt.Printf("%srow %d:%s\n", rowHeaderColor, i, ansiReset)
		} else {
			fmt.Printf("row %d:\n", i)
		}
		for k, v := range row {
			if colorize {
				fmt.Printf("  %s%s%s = %s\n", keyColor, k, ansiReset, v.String())
			} else {
				fmt.Printf("  %s = %s\n", k, v.String())
			}
		}
	}
}
