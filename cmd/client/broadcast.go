package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/RoboCast/internal/session"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "publish the configured media to one viewer at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		c, errCh, err := startClient(ctx)
		if err != nil {
			return err
		}

		res := make(chan error, 1)
		if err := c.Machine.Post(session.StartBroadcast{Result: res}); err != nil {
			return err
		}
		select {
		case err := <-res:
			if err != nil {
				return fmt.Errorf("start broadcast: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "broadcasting as %s\n", c.Machine.Snapshot().LocalID)

		follow(ctx, cmd, c)
		<-errCh
		return nil
	},
}
