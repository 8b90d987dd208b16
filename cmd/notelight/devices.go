package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chase3718/notelight/internal/midiin"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List MIDI input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := midiin.NewRtMIDI(midiin.DefaultExcluded, logger)
		if err != nil {
			return err
		}
		defer drv.Close()

		names, err := drv.ListDevices()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no MIDI input devices found")
			return nil
		}
		for i, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
