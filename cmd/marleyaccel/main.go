package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/arthurfeeney/Marley-Accel/internal/config"
	"github.com/arthurfeeney/Marley-Accel/internal/logging"
)

const version = "1.0.0"

// errUsage marks command line mistakes; they exit with status 2.
var errUsage = errors.New("usage error")

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "marleyaccel v%s\n", version)
	fmt.Fprintln(w, "Mouse acceleration curve tuning and preview")
}

func printUsage(w io.Writer) {
	printVersion(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  marleyaccel [OPTIONS] <command> [COMMAND OPTIONS] [PROFILE]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "  -config string")
	fmt.Fprintf(w, "        YAML config file (default %q, optional)\n", config.DefaultPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -log-level string")
	fmt.Fprintln(w, "        Log level: error, warn, info, debug (overrides logging.level)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  curve   [-min v] [-max v] [-step v] [PROFILE]")
	fmt.Fprintln(w, "        Print the sensitivity curve as a velocity/sensitivity table")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  show    [PROFILE | -]")
	fmt.Fprintln(w, "        Print every setting and any entries that fell back to defaults")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  reset   [-legacy] [PROFILE]")
	fmt.Fprintln(w, "        Write the default settings")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  set     [-profile PROFILE] key=value...")
	fmt.Fprintln(w, "        Change settings and save")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  serve   [-listen addr] [PROFILE]")
	fmt.Fprintln(w, "        Run the live preview (HTTP API + websocket curve updates)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  monitor [-device path|-] [PROFILE]")
	fmt.Fprintln(w, "        Log accelerated output for live mouse motion (Linux evdev)")
	fmt.Fprintln(w, "        -device - replays recorded input_event records from stdin")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  version")
	fmt.Fprintln(w, "        Print version and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PROFILE FORMAT:")
	fmt.Fprintln(w, "  One key=value per line. Keys: base offset upper_bound accel_rate power")
	fmt.Fprintln(w, "  game_sens overflow_lim pre_scalar_x pre_scalar_y post_scalar_x post_scalar_y")
	fmt.Fprintln(w, "  Missing or invalid values use the defaults.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  marleyaccel curve -max 50 ~/accel.cfg")
	fmt.Fprintln(w, "  marleyaccel set -profile ~/accel.cfg accel_rate=0.04 offset=4")
	fmt.Fprintln(w, "  marleyaccel serve -listen 127.0.0.1:8099")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "NOTES:")
	fmt.Fprintln(w, "  - monitor needs read access to the input device (root or the 'input' group)")
}

// env is what every command gets.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
}

type command func(e *env, args []string) error

var commands = map[string]command{
	"curve":   runCurve,
	"show":    runShow,
	"reset":   runReset,
	"set":     runSet,
	"serve":   runServe,
	"monitor": runMonitor,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is main without the process exit. It returns the exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("marleyaccel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	configPath := fs.String("config", config.DefaultPath, "YAML config file")
	logLevelStr := fs.String("log-level", "", "Log level: error, warn, info, debug")
	showVersion := fs.Bool("version", false, "Print version and exit")
	showHelp := fs.Bool("help", false, "Print help message")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showHelp {
		printUsage(stdout)
		return 0
	}
	if *showVersion {
		printVersion(stdout)
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	name, cmdArgs := rest[0], rest[1:]
	switch name {
	case "version":
		printVersion(stdout)
		return 0
	case "help":
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", name)
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *logLevelStr != "" {
		config.FlagOverrides{LogLevel: logLevelStr}.Apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "error: invalid config:", err)
		return 1
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	e := &env{
		cfg:    cfg,
		logger: logging.New(level, stderr),
		stdin:  stdin,
		stdout: stdout,
	}

	if err := cmd(e, cmdArgs); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, "error:", err)
			return 2
		}
		e.logger.Error(name+" failed", "error", err)
		return 1
	}
	return 0
}
