// Command flashkv-shell is the interactive REPL from spec.md §6: each
// line of stdin is dispatched as `get <key>` or `set <key> <value>`,
// grounded directly on original_source/src/bin/cli.rs's command loop.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	flashkvconfig "github.com/flashdb/flashkv/config"
	"github.com/flashdb/flashkv/database"
)

func main() {
	app := &cli.App{
		Name:  "flashkv-shell",
		Usage: "interactive get/set shell over a flashkv database directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "database directory", Value: "./flashkv-data"},
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, ">> Error starting shell:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := flashkvconfig.Default()
	if path := c.String("config"); path != "" {
		loaded, err := flashkvconfig.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.IsSet("dir") {
		cfg.Dir = c.String("dir")
	}

	logger := zap.NewNop()
	if c.Bool("verbose") {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	opts, err := cfg.DatabaseOptions(logger)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Dir, opts...)
	if err != nil {
		return err
	}
	defer db.Close()

	repl(os.Stdin, os.Stdout, db)
	return nil
}

func repl(in io.Reader, out io.Writer, db *database.Database) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		dispatch(strings.Fields(strings.TrimSpace(scanner.Text())), out, db)
	}
}

func dispatch(fields []string, out io.Writer, db *database.Database) {
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "get":
		if len(fields) != 2 {
			fmt.Fprintln(out, "Usage: get <key>")
			return
		}
		v, ok, err := db.Get(fields[1])
		switch {
		case err != nil:
			fmt.Fprintf(out, ">> Error getting value: %s\n", err)
		case !ok:
			fmt.Fprintln(out, ">> Key not found!")
		default:
			fmt.Fprintln(out, v)
		}

	case "set":
		if len(fields) != 3 {
			fmt.Fprintln(out, "Usage: set <key> <value>")
			return
		}
		if err := db.Set(fields[1], fields[2]); err != nil {
			fmt.Fprintf(out, ">> Error setting value: %s\n", err)
			return
		}
		fmt.Fprintln(out, ">> Value set!")

	default:
		fmt.Fprintln(out, "Unknown command! Known commands: get <key>, set <key> <value>")
	}
}
