package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd, usageCmd, narrationCmd, evolveCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aggregate orchestrator health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := newAPIClient().get("/api/status", &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-identity LLM spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := newAPIClient().get("/api/usage", &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var narrationCmd = &cobra.Command{
	Use:   "narration",
	Short: "Show recent narrator entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := newAPIClient().get("/api/narration", &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var evolveCmd = &cobra.Command{
	Use:   "evolve <name>",
	Short: "Trigger an immediate creator evaluation for a creature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return newAPIClient().post("/api/creatures/"+args[0]+"/evolve", map[string]string{"reason": reason}, nil)
	},
}

func init() {
	evolveCmd.Flags().String("reason", "", "reason recorded for this evaluation")
}
