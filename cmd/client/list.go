package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/RoboCast/internal/session"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list live broadcasters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		c, _, err := startClient(ctx)
		if err != nil {
			return err
		}
		seen := c.Machine.Snapshot().ListVersion
		if err := c.Machine.Post(session.RefreshBroadcasters{}); err != nil {
			return err
		}
		wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
		defer wcancel()
		s, err := c.Await(wctx, func(s session.State) bool { return s.ListVersion > seen })
		if err != nil {
			return err
		}
		if len(s.Broadcasters) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no broadcasters")
		}
		for _, id := range s.Broadcasters {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}
