package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/udpcast/internal/cliconfig"
	"github.com/bft-labs/udpcast/pkg/lifecycle"
	"github.com/bft-labs/udpcast/pkg/log"
	"github.com/bft-labs/udpcast/pkg/udpcast"
)

const program = "udpcast-listen"

var longHelp = strings.TrimSpace(`
Listen for UDP datagrams and print one line per datagram to stdout.

Each line is the label followed by the raw payload. The sender address is
left out unless --show-sender is given. Logs go to stderr.

Settings come from defaults, then the config file, then UDPCAST_*
environment variables, then flags.
`)

var exampleUsage = strings.TrimSpace(`
  udpcast-listen
  udpcast-listen --port 6000 --show-sender
  udpcast-listen --config $HOME/.udpcast/listen.toml --watch-config
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultListenConfig()
	var cfgPath, envFile string

	logger := cliconfig.Logger()

	root := &cobra.Command{
		Use:           program,
		Short:         "Print every UDP datagram received on a port",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := cliconfig.LoadEnvFile(envFile); err != nil {
				return err
			}

			base := cfg
			resolved, err := cliconfig.LoadListenConfig(base, cfgFile, changed)
			if err != nil {
				return err
			}

			l, err := cliconfig.NewLogger(os.Stderr, resolved.LogLevel)
			if err != nil {
				return err
			}
			logger = l
			logger.Info().Interface("config", resolved).Str("file", cfgFile).Msg("configuration")

			r := &runner{
				base:    base,
				cfgFile: cfgFile,
				changed: changed,
				logger:  logger,
				out:     os.Stdout,
			}
			return r.run(cmd.Context(), resolved)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.udpcast/listen.toml)")
	root.Flags().StringVar(&envFile, "env-file", "", "load UDPCAST_* variables from a dotenv file")
	root.Flags().StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "IPv4 address to bind")
	root.Flags().IntVar(&cfg.Port, "port", cfg.Port, "UDP port to listen on (0 picks a free port)")
	root.Flags().IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "receive buffer size; longer datagrams are truncated")
	root.Flags().BoolVar(&cfg.ReuseAddr, "reuse-addr", cfg.ReuseAddr, "set SO_REUSEADDR on the listening socket")
	root.Flags().StringVar(&cfg.Label, "label", cfg.Label, "text printed before each payload")
	root.Flags().BoolVar(&cfg.ShowSender, "show-sender", cfg.ShowSender, "print the sender address before the payload")
	root.Flags().StringVar(&cfg.Report, "report", cfg.Report, "report format: text (stdout) or log (structured, stderr)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "reload the config file when it changes")

	if err := root.Execute(); err != nil {
		var sockErr *udpcast.SocketError
		if errors.As(err, &sockErr) && sockErr.Fatal() {
			logger.Error().Msgf("%s: %+v", program, err)
			os.Exit(1)
		}
		logger.Error().Err(err).Msg(program)
		os.Exit(1)
	}
}

// runner owns the listener service for one invocation.
type runner struct {
	base    cliconfig.ListenConfig
	cfgFile string
	changed map[string]bool
	logger  zerolog.Logger
	out     io.Writer

	svc  *udpcast.Service
	text *udpcast.TextReporter

	// mu is held across a reload so a rebind is not mistaken for exit.
	mu  sync.Mutex
	cur cliconfig.ListenConfig
}

func (r *runner) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.svc.Status().Active()
}

func (r *runner) run(ctx context.Context, cfg cliconfig.ListenConfig) error {
	adapter := log.NewZerologAdapterWithLogger(r.logger)

	var handler udpcast.Handler
	if cfg.Report == cliconfig.ReportLog {
		handler = udpcast.NewLogReporter(adapter)
	} else {
		r.text = udpcast.NewTextReporter(r.out, cfg.Label, cfg.ShowSender)
		handler = r.text
	}

	svc, err := udpcast.NewService(cfg.Listener(), handler, udpcast.WithLogger(adapter))
	if err != nil {
		return err
	}
	r.svc = svc
	r.cur = cfg

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	if cfg.WatchConfig && r.cfgFile != "" {
		w := cliconfig.NewFileWatcher(r.cfgFile, cliconfig.DefaultDebounce, adapter, func() { r.reload(ctx) })
		go func() {
			if err := w.Run(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.finished() {
					close(doneCh)
					return
				}
			}
		}
	}()

	select {
	case <-sigCh:
		r.logger.Info().Msg("received signal, stopping...")
	case <-doneCh:
		if svc.Status() == lifecycle.StateCrashed {
			return svc.Err()
		}
		return nil
	}

	if err := svc.Stop(); err != nil && !errors.Is(err, udpcast.ErrNotRunning) {
		return fmt.Errorf("stop listener: %w", err)
	}
	r.logger.Info().Uint64("received", svc.Received()).Msg("stopped")
	return nil
}

// reload re-reads the config file and applies what can change at runtime.
// Socket settings rebind the listener; label and sender display apply to
// the next line. The report format is fixed for the life of the process.
func (r *runner) reload(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := cliconfig.LoadListenConfig(r.base, r.cfgFile, r.changed)
	if err != nil {
		r.logger.Warn().Err(err).Msg("config reload rejected")
		return
	}
	if next.Report != r.cur.Report {
		r.logger.Warn().Str("report", next.Report).Msg("report format change needs a restart")
	}
	if r.text != nil {
		r.text.Configure(next.Label, next.ShowSender)
	}
	if err := r.svc.Reload(ctx, next.Listener()); err != nil {
		r.logger.Error().Err(err).Msg("rebind failed")
		return
	}
	r.cur = next
	r.logger.Info().Str("addr", next.Listener().Address()).Msg("config reloaded")
}
