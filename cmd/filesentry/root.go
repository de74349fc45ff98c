package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mutagen-io/filesentry"
)

// terminationSignals are those signals this CLI considers to be requesting
// graceful termination, matching the teacher's cmd/signals_posix.go list.
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

var rootConfiguration struct {
	hidden     bool
	noIgnore   bool
	settleMS   int
	tempfiles  bool
	configFile string
}

var rootCommand = &cobra.Command{
	Use:           "filesentry [dir]",
	Short:         "Watch a directory tree and print a coalesced stream of file events",
	Args:          cobra.MaximumNArgs(1),
	RunE:          mainify,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.hidden, "hidden", "H", false, "include hidden (dot) files and directories")
	flags.BoolVarP(&rootConfiguration.noIgnore, "no-ignore", "I", false, "don't honor .gitignore/.ignore/global git-ignore")
	flags.IntVar(&rootConfiguration.settleMS, "settle", 200, "debounce settle time, in milliseconds")
	flags.BoolVar(&rootConfiguration.tempfiles, "tempfiles", false, "report collapsed create+delete pairs as TEMPFILE instead of dropping them")
	flags.StringVar(&rootConfiguration.configFile, "config", "", "optional YAML config file overriding settle time and adding ignore patterns")
}

// mainify is the error-returning entry point for the root command,
// following the teacher's cmd.Mainify convention (cmd/cobra.go) of
// separating fallible logic from process-termination so deferred cleanup
// still runs; RunE gives the same guarantee natively via cobra, so this
// just wraps the body.
func mainify(command *cobra.Command, arguments []string) error {
	dir := "."
	if len(arguments) == 1 {
		dir = arguments[0]
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrap(err, "resolve directory")
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return errors.Wrap(err, "resolve symlinks")
	}
	root := filesentry.NewCanonicalPath(realDir)

	var fileCfg fileConfig
	if rootConfiguration.configFile != "" {
		fileCfg, err = loadFileConfig(rootConfiguration.configFile)
		if err != nil {
			return errors.Wrap(err, "load config file")
		}
	}

	watcher, err := filesentry.New()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	guard := watcher.ShutdownGuard()
	defer guard()

	filter := newCLIFilter(realDir, !rootConfiguration.hidden, !rootConfiguration.noIgnore, fileCfg.Ignore)
	watcher.SetFilter(filter, false)
	watcher.SetSettleTime(fileCfg.settleTime(time.Duration(rootConfiguration.settleMS) * time.Millisecond))
	watcher.SetEmitTempfile(rootConfiguration.tempfiles)

	var eventCount atomic.Int64
	colorize := isatty.IsTerminal(os.Stdout.Fd())
	watcher.AddHandler(func(events filesentry.Events) bool {
		for i := 0; i < events.Len(); i++ {
			printEvent(events.At(i), colorize)
		}
		eventCount.Add(int64(events.Len()))
		return true
	})

	watcher.Start()

	done := make(chan error, 1)
	watcher.AddRoot(root, true, func(err error) { done <- err })
	if err := <-done; err != nil {
		return errors.Wrap(err, "add root")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, terminationSignals...)
	<-signals

	guard()
	fmt.Fprintf(os.Stderr, "filesentry: %s events observed, %s recrawls\n",
		humanize.Comma(eventCount.Load()), humanize.Comma(watcher.RecrawlCount()))
	return nil
}

// printEvent renders one event as `"<path>" <kind>`, per spec.md §6.4,
// colorizing the kind the way the teacher colorizes status output
// (cmd/mutagen/list.go's color.Red for problems).
func printEvent(e filesentry.Event, colorize bool) {
	kind := e.Kind.String()
	if colorize {
		switch e.Kind {
		case filesentry.EventCreate:
			kind = color.GreenString(kind)
		case filesentry.EventDelete:
			kind = color.RedString(kind)
		case filesentry.EventModified:
			kind = color.YellowString(kind)
		case filesentry.EventTempfile:
			kind = color.CyanString(kind)
		}
	}
	fmt.Printf("%q %s\n", e.Path.String(), kind)
}
