package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/RoboCast/internal/client"
	"github.com/dkeye/RoboCast/internal/config"
	"github.com/dkeye/RoboCast/internal/session"
)

var (
	configPath string
	clientCfg  *config.ClientConfig
	rootCmd    = &cobra.Command{
		Use:           "robocast",
		Short:         "RoboCast peer-to-peer video client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			initLog(cfg.LogLevel)
			clientCfg = cfg
			return nil
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "client config file (yaml)")
	pf.String("server", "ws://localhost:5000/api/ws/signal", "relay signaling url")
	pf.StringSlice("ice", []string{"stun:stun.l.google.com:19302"}, "ICE server urls")
	pf.Duration("stats-interval", config.DefaultStatsInterval, "latency sampling interval")
	pf.String("media", "", "IVF file used as the camera when broadcasting")
	pf.String("record", "", "write received video to this IVF file")
	pf.String("api", "http://localhost:8000", "robot dashboard backend url")
	pf.Duration("dial-timeout", 10*time.Second, "signaling dial timeout")
	pf.Bool("auto", false, "view the first available broadcaster")
	pf.StringP("log-level", "l", "info", "log level")

	rootCmd.AddCommand(broadcastCmd, viewCmd, listCmd, statusCmd)
}

func initLog(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// startClient runs a client in the background and waits for the relay welcome.
func startClient(ctx context.Context) (*client.Client, <-chan error, error) {
	c := client.New(clientCfg, client.Deps{})
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	wctx, cancel := context.WithTimeout(ctx, clientCfg.DialTimeout+5*time.Second)
	defer cancel()
	if _, err := c.Await(wctx, func(s session.State) bool { return s.Online }); err != nil {
		return nil, nil, fmt.Errorf("relay %s unreachable: %w", clientCfg.ServerURL, err)
	}
	return c, errCh, nil
}

// follow prints every phase, stage or remote change until ctx ends.
func follow(ctx context.Context, cmd *cobra.Command, c *client.Client) {
	last := c.Machine.Snapshot()
	printState(cmd, last)
	for {
		s, err := c.Await(ctx, func(s session.State) bool {
			return s.Phase != last.Phase || s.Stage != last.Stage || s.RemoteID != last.RemoteID
		})
		if err != nil {
			return
		}
		last = s
		printState(cmd, s)
	}
}

func printState(cmd *cobra.Command, s session.State) {
	line := fmt.Sprintf("%s/%s", s.Phase, s.Stage)
	if s.RemoteID != "" {
		line += " remote=" + s.RemoteID
	}
	if s.RTT > 0 {
		line += " rtt=" + s.RTT.String()
	}
	if s.LastError != "" {
		line += " error=" + s.LastError
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
