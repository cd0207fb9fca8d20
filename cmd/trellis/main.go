package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"trellis/internal/server"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

// exitError ends the program with a status but no message.
type exitError int

func (e exitError) Error() string { return "exit status " + strconv.Itoa(int(e)) }
func (e exitError) ExitCode() int { return int(e) }

func main() {
	if err := run(); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env may override the environment defaults below
	_ = godotenv.Load()

	var (
		logfile   string
		verbosity int
		noCache   bool
		noWatch   bool
		version   bool
		checkDir  string
		cfgFile   string
	)
	flagSet := pflag.NewFlagSet("trellis", pflag.ContinueOnError)
	flagSet.StringVar(&logfile, "logfile", os.Getenv("TRELLIS_LOGFILE"), "path to log file")
	flagSet.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flagSet.BoolVar(&noCache, "no-cache", false, "keep the link store in memory")
	flagSet.BoolVar(&noWatch, "no-watch", false, "rely on the client for file change notifications")
	flagSet.BoolVar(&version, "version", false, "print the version of the program")
	flagSet.StringVar(&checkDir, "check", "", "validate every template under this directory and exit")
	flagSet.StringVar(&cfgFile, "config", "", "JSON configuration file for --check")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if version {
		fmt.Printf("trellis LSP server version %s\n", Version)
		return nil
	}

	if !flagSet.Changed("verbose") {
		if v, err := strconv.Atoi(os.Getenv("TRELLIS_VERBOSITY")); err == nil {
			verbosity = v
		}
	}

	// Logging
	var path *string
	if logfile != "" {
		path = &logfile
	}
	commonlog.Configure(verbosity, path)

	if checkDir != "" {
		return runCheck(os.Stdout, checkDir, cfgFile)
	}

	runtime.GOMAXPROCS(4)

	log := commonlog.GetLogger("trellis")
	log.Noticef("starting trellis LSP server %s", Version)

	s := server.NewServer(server.Options{
		Version: Version,
		NoCache: noCache,
		Watch:   !noWatch,
	})
	if err := s.RunStdio(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
