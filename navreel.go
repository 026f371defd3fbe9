package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"navreel/backend"
	"navreel/backend/provider"
	"navreel/config"
	"navreel/debuglog"
	"navreel/failure"
	"navreel/journal"
	"navreel/pkg/ffmpeg"
	"navreel/session"
)

var (
	// Command-line flags
	configPath   = flag.String("config", "", "YAML config file (defaults apply when omitted, NAVREEL_* env vars override)\n\t\tExample: -config navreel.yaml")
	commandsJSON = flag.String("commands", "", "Run one JSON command sequence and exit instead of reading stdin\n\t\tExample: -commands '[[\"right\", 90], [2.0, 0.0]]'")
	debugMode    = flag.Bool("debug", false, "Enable debug logging to stderr and per-run log files")
	debugVerbose = flag.Bool("debug-verbose", false, "Enable verbose debug output (per-step encoder and bridge details)")

	logger *debuglog.Logger
)

// debugMsg is the process-wide debug hook handed to every package.
func debugMsg(component, message string) {
	if logger != nil {
		logger.Msg(component, message)
	}
}

func debugMsgVerbose(component, message string) {
	if logger != nil {
		logger.Verbose(component, message)
	}
}

// report is what the CLI prints for each invocation.
type report struct {
	session.Result
	Error *failure.Error `json:"error,omitempty"`
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "navreel - command sequence to dual-view video")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "USAGE EXAMPLES:")
	fmt.Fprintln(out, "  One-shot:")
	fmt.Fprintln(out, "    navreel -config navreel.yaml -commands '[[\"right\", 90], {\"type\": \"move\", \"x\": 2, \"z\": 0}]'")
	fmt.Fprintln(out, "  Interactive (one JSON array per line, 'exit' to quit):")
	fmt.Fprintln(out, "    navreel -config navreel.yaml -debug")
	fmt.Fprintln(out, "  Offline gridworld backend:")
	fmt.Fprintln(out, "    NAVREEL_BACKEND=gridworld NAVREEL_GRID_MASK=room.png navreel -config room.yaml")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "FLAGS:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		printReport(os.Stdout, report{Error: failure.Report(failure.Wrap(failure.KindConfig, -1, "load config", err))})
		return 2
	}
	if *debugMode {
		cfg.Log.Debug = true
	}
	if *debugVerbose {
		cfg.Log.Debug = true
		cfg.Log.Verbose = true
	}

	logger = debuglog.New(debuglog.Options{
		Enabled: cfg.Log.Debug,
		Verbose: cfg.Log.Verbose,
		Dir:     cfg.Log.Dir,
	})
	defer logger.Close()

	backend.SetDebugFunction(debugMsgVerbose)
	provider.SetDebugFunction(debugMsg)
	ffmpeg.SetDebugFunction(debugMsgVerbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := provider.Open(ctx, cfg.Backend, cfg.Render)
	if err != nil {
		printReport(os.Stdout, report{Error: failure.Report(failure.Wrap(failure.KindBackend, -1, "open backend", err))})
		return 2
	}
	defer b.Close()

	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		printReport(os.Stdout, report{Error: failure.Report(err)})
		return 2
	}
	if cfg.Journal.Enabled {
		ix, err := journal.OpenIndex(cfg.Journal.DBPath)
		if err != nil {
			debugMsg("JOURNAL", fmt.Sprintf("run index unavailable, continuing without it: %v", err))
		} else {
			defer ix.Close()
			opts.Journal = ix
		}
	}

	sess, err := session.New(ctx, b, opts)
	if err != nil {
		printReport(os.Stdout, report{Error: failure.Report(err)})
		return 2
	}
	defer sess.Close()
	sess.SetDebugFunction(debugMsg)
	sess.SetOnRunChanged(logger.SetRun)

	size := sess.FrameSize()
	debugMsg("MAIN", fmt.Sprintf("session ready: %s backend, bounds %.2fx%.2f, frames %dx%d, start %s",
		b.Info().Kind, sess.Bounds().Width(), sess.Bounds().Depth(), size.X, size.Y, sess.Pose()))

	if *commandsJSON != "" {
		res := sess.ExecuteJSON(ctx, []byte(*commandsJSON))
		printReport(os.Stdout, newReport(res))
		if res.Err != nil {
			return 1
		}
		return 0
	}
	return repl(ctx, sess, os.Stdin, os.Stdout)
}

// repl executes one JSON command sequence per input line until exit or EOF.
func repl(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) int {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	fmt.Fprintln(os.Stderr, "Enter a JSON command list per line ('exit' to quit):")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return 0
		}
		res := sess.ExecuteJSON(ctx, []byte(line))
		printReport(out, newReport(res))
		if ctx.Err() != nil {
			return 1
		}
	}
	if err := scanner.Err(); err != nil {
		debugMsg("MAIN", fmt.Sprintf("stdin: %v", err))
		return 1
	}
	return 0
}

func newReport(res session.Result) report {
	return report{Result: res, Error: failure.Report(res.Err)}
}

func printReport(w io.Writer, r report) {
	b, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(b))
}
