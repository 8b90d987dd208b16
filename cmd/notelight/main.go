// Command notelight lights a fretboard or keyboard LED matrix from local
// MIDI input and the notes of peers on an MQTT bus.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logger = slog.Default()

// initLogger installs a text handler on stderr. Debug mode adds source
// locations.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

var debug bool

var rootCmd = &cobra.Command{
	Use:   "notelight",
	Short: "Shared note visualizer for LED fretboards and keyboards",
	Long: `notelight merges notes played on a local MIDI device with notes
published by other installations and renders them, colored by pitch class,
onto WLED and serial LED controllers.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (adds source location)")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
