package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagEquity  float64
	flagVerbose bool
)

// rootCmd is the base command for the VolGate CLI
var rootCmd = &cobra.Command{
	Use:   "volgate",
	Short: "VolGate capital admission engine for long-volatility structures",
	Long: `VolGate scores capital-constrained long-volatility option structures and
gates their admission: trajectory cost over layered penalty surfaces,
confidence estimation, hard abort/reject gates, flag decay, bin capacity
and session risk limits.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("VolGate admission engine")
		fmt.Println("Use 'volgate evaluate' to score a candidate or 'volgate serve' to start the control surface")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML configuration (defaults apply when empty)")
	rootCmd.PersistentFlags().Float64Var(&flagEquity, "equity", 250000, "Account equity in USD for cap derivation")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
