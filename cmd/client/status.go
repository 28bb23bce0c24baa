package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/RoboCast/internal/adapters/robotapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show robot telemetry from the dashboard backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		api := robotapi.New(clientCfg.APIURL, clientCfg.DialTimeout)
		tel, err := api.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetch telemetry: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Battery: %s %d%%\n", tel.Battery.Status, tel.Battery.Level)
		if tel.Robot != nil {
			fmt.Fprintf(out, "Robot: online=%t last seen %s\n", tel.Robot.Online, tel.Robot.LastSeen)
		}
		fmt.Fprintln(out, "Joints:")
		for _, j := range tel.Joints {
			health := "ok"
			if !j.Healthy {
				health = "FAULT"
			}
			fmt.Fprintf(out, "  %-8s %4d°  %s\n", j.Name, j.Angle, health)
		}
		fmt.Fprintln(out, "Tasks:")
		for _, t := range tel.Tasks {
			fmt.Fprintf(out, "  [%s] %s (%s)\n", t.ID, t.Title, t.State)
		}
		return nil
	},
}
