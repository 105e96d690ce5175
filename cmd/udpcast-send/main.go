package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/udpcast/internal/cliconfig"
	"github.com/bft-labs/udpcast/pkg/log"
	"github.com/bft-labs/udpcast/pkg/udpcast"
)

const program = "udpcast-send"

var longHelp = strings.TrimSpace(`
Send one UDP datagram carrying <message> to the broadcast address on <port>.

Delivery is not confirmed: success means the local network stack accepted
the packet. With --wait the socket stays open and any replies sent back to
it are printed, one line each.

Flags must come before <port> so that the message may start with "-".
`)

var exampleUsage = strings.TrimSpace(`
  udpcast-send 5559 "hello"
  udpcast-send --addr 192.168.1.255 --wait 2s 5559 ping
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultSendConfig()
	var envFile string

	logger := cliconfig.Logger()

	root := &cobra.Command{
		Use:           program + " [flags] <port> <message>",
		Short:         "Broadcast one UDP datagram",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliconfig.ParseSendArgs(program, args, &cfg); err != nil {
				return err
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := cliconfig.LoadEnvFile(envFile); err != nil {
				return err
			}
			if err := cliconfig.ApplySendEnv(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			l, err := cliconfig.NewLogger(os.Stderr, cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = l
			return send(cmd.Context(), cfg, log.NewZerologAdapterWithLogger(logger))
		},
	}

	root.Flags().SetInterspersed(false)
	root.Flags().StringVar(&cfg.BroadcastAddr, "addr", cfg.BroadcastAddr, "destination broadcast address (IPv4)")
	root.Flags().BoolVar(&cfg.ReuseAddr, "reuse-addr", cfg.ReuseAddr, "set SO_REUSEADDR on the sending socket")
	root.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "write deadline (0 disables)")
	root.Flags().DurationVar(&cfg.Wait, "wait", cfg.Wait, "keep the socket open this long and print replies")
	root.Flags().IntVar(&cfg.ReplyBufferSize, "reply-buffer", cfg.ReplyBufferSize, "read buffer for replies during --wait")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringVar(&envFile, "env-file", "", "load UDPCAST_* variables from a dotenv file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		var usage *cliconfig.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stdout, usage.Error())
			os.Exit(1)
		}
		var sockErr *udpcast.SocketError
		if errors.As(err, &sockErr) && sockErr.Fatal() {
			logger.Error().Msgf("%s: %+v", program, err)
			os.Exit(1)
		}
		logger.Error().Err(err).Msg(program)
		os.Exit(1)
	}
}

func send(ctx context.Context, cfg cliconfig.SendConfig, logger log.Logger) error {
	bc, err := cfg.Broadcaster()
	if err != nil {
		return err
	}

	opts := []udpcast.Option{udpcast.WithLogger(logger)}
	if cfg.Wait > 0 {
		opts = append(opts,
			udpcast.WithResponseHandler(udpcast.NewTextReporter(os.Stdout, "reply :", true)),
			udpcast.WithResponseBufferSize(cfg.ReplyBufferSize))
	}

	b, err := udpcast.NewBroadcaster(bc, opts...)
	if err != nil {
		return err
	}
	defer b.Close()

	sendCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	n, err := b.SendString(sendCtx, cfg.Message)
	if err != nil {
		return err
	}
	logger.Debug("sent",
		log.Addr("to", b.Destination()),
		log.Addr("from", b.LocalAddr()),
		log.Int("bytes", n))

	if cfg.Wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Wait):
		}
	}
	return nil
}
