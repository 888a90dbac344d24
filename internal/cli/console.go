package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

func cmdConsole(a *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("console", flag.ContinueOnError),
		Usage: "console",
		Short: "Interactive shell running tg commands in one session",
		Long: `Open a readline-style shell. Every tg command works unchanged, sharing
one database connection and one graph snapshot across the session.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			repl := &console{app: a}

			return repl.run(ctx, o)
		},
	}
}

// console is the interactive command loop.
type console struct {
	app   *App
	liner *liner.State
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".tg_history")
}

func (c *console) run(ctx context.Context, o *IO) error {
	c.liner = liner.NewLiner()
	defer c.liner.Close()

	c.liner.SetCtrlCAborts(true)
	c.liner.SetCompleter(c.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = c.liner.ReadHistory(f)
		_ = f.Close()
	}

	o.Println("tg console - type 'help' for commands, 'exit' to leave")
	o.Println()

	for {
		line, err := c.liner.Prompt("tg> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				o.Println()

				break
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		c.liner.AppendHistory(line)

		parts := strings.Fields(line)
		name := strings.ToLower(parts[0])

		switch name {
		case "exit", "quit", "q":
			c.saveHistory()

			return nil

		case "help", "?":
			printUsage(o.out)

		default:
			c.dispatch(ctx, o, name, parts[1:])
		}
	}

	c.saveHistory()

	return nil
}

// dispatch runs one registry command. Errors are printed, not returned: a
// failed command must not end the session.
func (c *console) dispatch(ctx context.Context, o *IO, name string, args []string) {
	cmd := findCommand(commands(c.app), name)
	if cmd == nil {
		o.Println("unknown command:", name, "(type 'help' for commands)")

		return
	}

	_ = cmd.Run(ctx, o, args)
}

// saveHistory persists command history to disk.
func (c *console) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = c.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

// completer provides tab completion for command names.
func (c *console) completer(line string) []string {
	names := []string{"help", "exit", "quit"}

	for _, cmd := range commands(c.app) {
		names = append(names, cmd.Name())
	}

	var matches []string

	for _, name := range names {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			matches = append(matches, name)
		}
	}

	return matches
}
