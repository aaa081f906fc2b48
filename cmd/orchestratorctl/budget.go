package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	budgetCmd.AddCommand(budgetGetCmd, budgetSetCmd, creatureBudgetGetCmd, creatureBudgetSetCmd)
	rootCmd.AddCommand(budgetCmd)
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect or set LLM spend budgets",
}

type budgetView struct {
	DailyCapUSD   float64 `json:"daily_cap_usd"`
	DailySpentUSD float64 `json:"daily_spent_usd"`
	Action        string  `json:"action"`
}

var budgetGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the global budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		var view budgetView
		if err := newAPIClient().get("/api/budget", &view); err != nil {
			return err
		}
		return printJSON(view)
	},
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the global daily cap and enforcement action",
	RunE: func(cmd *cobra.Command, args []string) error {
		cap, _ := cmd.Flags().GetFloat64("cap")
		action, _ := cmd.Flags().GetString("action")
		return newAPIClient().put("/api/budget", budgetView{DailyCapUSD: cap, Action: action}, nil)
	},
}

var creatureBudgetGetCmd = &cobra.Command{
	Use:   "get-creature <name>",
	Short: "Show a creature's effective budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var view budgetView
		if err := newAPIClient().get(fmt.Sprintf("/api/creatures/%s/budget", args[0]), &view); err != nil {
			return err
		}
		return printJSON(view)
	},
}

var creatureBudgetSetCmd = &cobra.Command{
	Use:   "set-creature <name>",
	Short: "Set a per-creature budget override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cap, _ := cmd.Flags().GetFloat64("cap")
		action, _ := cmd.Flags().GetString("action")
		return newAPIClient().put(fmt.Sprintf("/api/creatures/%s/budget", args[0]), budgetView{DailyCapUSD: cap, Action: action}, nil)
	},
}

func init() {
	for _, c := range []*cobra.Command{budgetSetCmd, creatureBudgetSetCmd} {
		c.Flags().Float64("cap", 0, "daily cap in USD")
		c.Flags().String("action", "warn", "enforcement action: off, warn, or sleep")
	}
}
