// Command shortcircuit is a single-threaded, event-driven static file
// server: it binds a listening socket, opens the web root once, and
// serves every subsequent request from an engine.Scheduler run loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/3541/shortcircuit/engine"
	"github.com/3541/shortcircuit/internal/config"
	"github.com/3541/shortcircuit/internal/httpserver"
)

// version is set at release time; "dev" otherwise.
var version = "dev"

const (
	exitOK             = 0
	exitUsage          = 1
	exitMisconfigured  = 2
	exitStartupFailure = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("shortcircuit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		port        uint
		quiet       int
		verbose     int
		showVersion bool
	)
	fs.UintVar(&port, "port", 8000, "listen port")
	fs.UintVar(&port, "p", 8000, "listen port (shorthand)")
	fs.BoolFunc("q", "decrease log verbosity", func(string) error { quiet++; return nil })
	fs.BoolFunc("v", "increase log verbosity", func(string) error { verbose++; return nil })
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [-h] [-p|--port <u16>] [-q] [-v] [--version] [web-root]\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if showVersion {
		fmt.Fprintf(stdout, "shortcircuit %s\n", version)
		return exitOK
	}

	if port > 65535 {
		fmt.Fprintf(stderr, "shortcircuit: port %d out of range\n", port)
		return exitMisconfigured
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "shortcircuit: %v\n", err)
		return exitMisconfigured
	}
	// Only an explicit -p/--port overrides LISTEN_PORT (or the default).
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "port" || f.Name == "p" {
			cfg.ListenPort = uint16(port)
		}
	})
	cfg.Verbosity = verbose - quiet

	if webRoot := fs.Arg(0); webRoot != "" {
		cfg.WebRoot = webRoot
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "shortcircuit: %v\n", err)
		return exitMisconfigured
	}

	logger := newLogger(stderr, cfg.Verbosity)

	if err := engine.BootstrapRlimits(uint64(cfg.URingEntries) * 4096); err != nil {
		logger.Warning().Err(err).Log("rlimit bootstrap failed, continuing with current limits")
	}
	if limit, err := engine.NofileLimit(); err == nil {
		// Each connection can hold the socket plus ~2 transient file fds
		// at once; leave headroom for the ring, listener, and wake fds.
		if need := uint64(cfg.ConnectionPoolSize)*3 + 16; need > limit {
			clamped := int((limit - 16) / 3)
			logger.Warning().
				Uint64("rlimit_nofile", limit).
				Int("configured_pool", cfg.ConnectionPoolSize).
				Int("effective_pool", clamped).
				Log("connection pool exceeds open-file limit, clamping")
			cfg.ConnectionPoolSize = clamped
		}
	}

	webRootFD, err := unix.Open(cfg.WebRoot, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		fmt.Fprintf(stderr, "shortcircuit: opening web root %q: %v\n", cfg.WebRoot, err)
		return exitMisconfigured
	}
	defer unix.Close(webRootFD)

	sched, err := engine.NewScheduler(
		engine.WithLogger(logger),
		engine.WithRingEntries(cfg.URingEntries),
	)
	if err != nil {
		fmt.Fprintf(stderr, "shortcircuit: %v\n", err)
		return exitStartupFailure
	}
	defer sched.Close()

	router := httpserver.NewRouter(httpserver.ServeFile)
	router.Bind(webRootFD)

	listener, err := engine.Listen(sched, int(cfg.ListenPort), cfg.ListenBacklog, engine.ListenerConfig{
		Buffers: engine.BufferSizes{
			RecvInitial: cfg.RecvBufInitial,
			RecvMax:     cfg.RecvBufMax,
			SendInitial: cfg.SendBufInitial,
			SendMax:     cfg.SendBufMax,
		},
		IdleTimeout: cfg.ConnectionTimeout,
		PoolSize:         cfg.ConnectionPoolSize,
		AdmissionRates: map[time.Duration]int{
			time.Second: cfg.ConnectionPoolSize,
		},
		Handle: func(c *engine.Connection) {
			httpserver.Serve(c, cfg, router)
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "shortcircuit: %v\n", err)
		return exitStartupFailure
	}
	defer listener.Close()

	listener.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		sched.RequestShutdown()
	}()

	logger.Notice().Uint64("port", uint64(cfg.ListenPort)).Str("web_root", cfg.WebRoot).Log("listening")

	if err := sched.Run(context.Background()); err != nil {
		fmt.Fprintf(stderr, "shortcircuit: %v\n", err)
		return exitStartupFailure
	}

	return exitOK
}

// newLogger builds the process's logiface logger over a slog.Handler
// writing to stderr, with verbosity mapped onto logiface's level scale
// (0 is Informational; -v lowers the threshold toward Trace, -q raises
// it toward Error).
func newLogger(w *os.File, verbosity int) *logiface.Logger[*islog.Event] {
	level := slog.LevelInfo - slog.Level(verbosity)*4
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return logiface.New[*islog.Event](
		islog.NewLogger(handler),
		logiface.WithLevel[*islog.Event](logifaceLevel(verbosity)),
	)
}

func logifaceLevel(verbosity int) logiface.Level {
	switch {
	case verbosity <= -2:
		return logiface.LevelError
	case verbosity == -1:
		return logiface.LevelWarning
	case verbosity == 0:
		return logiface.LevelInformational
	case verbosity == 1:
		return logiface.LevelDebug
	default:
		return logiface.LevelTrace
	}
}
