package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "orchestratorctl",
	Short: "Control CLI for the creature fleet orchestrator",
	Long: `orchestratorctl talks to a running orchestrator's HTTP API
(spec.md §6.3) to spawn, start, stop, restart, rebuild, wake, and archive
creatures, inspect their budgets and usage, and read fleet-wide status
and narration.`,
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "orchestrator base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "request timeout (default 10s)")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	viper.SetEnvPrefix("ORCHESTRATORCTL")
	viper.AutomaticEnv()
	viper.SetDefault("timeout", "10s")
}

func serverURL() string {
	url := viper.GetString("server")
	if url == "" {
		url = os.Getenv("ORCHESTRATOR_URL")
	}
	if url == "" {
		url = "http://localhost:8080"
	}
	return url
}
