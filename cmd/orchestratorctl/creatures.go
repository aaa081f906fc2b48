package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

func init() {
	rootCmd.AddCommand(listCmd, spawnCmd, archiveCmd, eventCmd,
		lifecycleCmd("start"), lifecycleCmd("stop"), lifecycleCmd("restart"),
		lifecycleCmd("rebuild"), lifecycleCmd("wake"))
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every creature in the fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		var items []models.ListItem
		if err := newAPIClient().get("/api/creatures", &items); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tMODEL\tSHA\tSLEEP REASON")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.Name, it.Status, it.Model, shortSHA(it.SHA), it.SleepReason)
		}
		return w.Flush()
	},
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

var spawnCmd = &cobra.Command{
	Use:   "spawn <name>",
	Short: "Scaffold and start a new creature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		genome, _ := cmd.Flags().GetString("genome")
		purpose, _ := cmd.Flags().GetString("purpose")
		model, _ := cmd.Flags().GetString("model")

		var st models.Creature
		err := newAPIClient().post("/api/creatures", map[string]string{
			"name": args[0], "genome": genome, "purpose": purpose, "model": model,
		}, &st)
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

func init() {
	spawnCmd.Flags().String("genome", "", "genome/template to scaffold from")
	spawnCmd.Flags().String("purpose", "", "free-text purpose recorded in PURPOSE.md")
	spawnCmd.Flags().String("model", "", "model override for this creature")
}

func lifecycleCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <name>",
		Short: "Send the " + action + " lifecycle action to a creature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st models.Creature
			if err := newAPIClient().post(fmt.Sprintf("/api/creatures/%s/%s", args[0], action), nil, &st); err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

var archiveCmd = &cobra.Command{
	Use:   "archive <name>",
	Short: "Stop a creature and remove it from the fleet registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAPIClient().post(fmt.Sprintf("/api/creatures/%s/archive", args[0]), nil, nil)
	},
}

var eventCmd = &cobra.Command{
	Use:   "event <name> <type>",
	Short: "Post an inbound event to a creature (for testing the event pipeline)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		return newAPIClient().post(fmt.Sprintf("/api/creatures/%s/event", args[0]), map[string]string{
			"type": args[1], "text": text,
		}, nil)
	},
}

func init() {
	eventCmd.Flags().String("text", "", "free-text event payload")
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
