package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/RoboCast/internal/session"
)

var viewCmd = &cobra.Command{
	Use:   "view [broadcaster-id]",
	Short: "watch a broadcaster",
	Long: "Watch the given broadcaster. With --auto the first listed broadcaster is chosen; " +
		"without an id or --auto every broadcaster is asked and the first offer wins.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		c, errCh, err := startClient(ctx)
		if err != nil {
			return err
		}

		var events []session.Event
		switch {
		case len(args) == 1:
			events = []session.Event{session.StartViewing{}, session.Select{ID: args[0]}}
		case clientCfg.AutoSelect:
			events = []session.Event{session.StartViewing{}}
		default:
			events = []session.Event{session.ViewAny{}}
		}
		for _, ev := range events {
			if err := c.Machine.Enqueue(ctx, ev); err != nil {
				return err
			}
		}

		follow(ctx, cmd, c)
		<-errCh
		packets, bytes := c.Received()
		fmt.Fprintf(cmd.OutOrStdout(), "received %d packets (%d bytes)\n", packets, bytes)
		return nil
	},
}
