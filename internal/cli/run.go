// Package cli implements the tg command line interface on top of the
// resolution engine.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/taskgate/taskgate/internal/config"
	"github.com/taskgate/taskgate/internal/engine"
	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/store"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
)

// App bundles the opened stores and engine for command execution.
type App struct {
	Cfg    config.Config
	Store  *store.Store
	Engine *engine.Engine
}

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		DBPathOverride:  flags.dbPath,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	name := flags.remaining[0]
	if name == "-h" || name == helpFlag {
		printUsage(out)

		return 0
	}

	o := NewIO(out, errOut)

	// print-config needs no database.
	if name == "print-config" {
		err = printConfig(o, cfg)
		if err != nil {
			o.ErrPrintln("error:", err)

			return 1
		}

		return o.Finish()
	}

	app, err := openApp(ctx, cfg)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	defer app.close()

	cmd := findCommand(commands(app), name)
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut)

		return 1
	}

	code := cmd.Run(ctx, o, flags.remaining[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

// openApp opens the store and builds the engine over a shared change feed.
func openApp(ctx context.Context, cfg config.Config) (*App, error) {
	events := feed.New()

	st, err := store.Open(ctx, cfg.DBPathAbs, events)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(ctx, st, events,
		engine.WithDependencyWindow(time.Duration(cfg.NotifyWindowHours)*time.Hour))
	if err != nil {
		_ = st.Close()

		return nil, err
	}

	return &App{Cfg: cfg, Store: st, Engine: eng}, nil
}

func (a *App) close() {
	_ = a.Engine.Close()
	_ = a.Store.Close()
}

// commands returns the full command registry bound to the app.
func commands(a *App) []*Command {
	return []*Command{
		cmdAdd(a),
		cmdLs(a),
		cmdShow(a),
		cmdStart(a),
		cmdHold(a),
		cmdStall(a),
		cmdResume(a),
		cmdComplete(a),
		cmdReopen(a),
		cmdArchive(a),
		cmdRestrict(a),
		cmdResolve(a),
		cmdCancel(a),
		cmdAvailable(a),
		cmdBlocked(a),
		cmdNotifications(a),
		cmdMetrics(a),
		cmdExport(a),
		cmdConsole(a),
	}
}

func findCommand(registry []*Command, name string) *Command {
	for _, cmd := range registry {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

type globalFlags struct {
	workDir    string
	configPath string
	dbPath     string
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --db flag
	if arg == "--db" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.dbPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--db="); ok {
		flags.dbPath = after

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(writer io.Writer) {
	fprintln(writer, `tg - task dependency tracker

Usage: tg [options] <command> [args]

Options:
  -C, --cwd <dir>    Run as if started in <dir>
  -c, --config       Use specified config file
  --db <path>        Use specified database file

Commands:`)

	for _, cmd := range commands(nil) {
		fprintln(writer, cmd.HelpLine())
	}

	fprintln(writer, `  print-config                       Show resolved configuration`)
}
