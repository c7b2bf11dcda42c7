package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/talebot/internal/presentation/graph"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/aretw0/talebot/pkg/safety"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/spf13/cobra"
)

var flowsCmd = &cobra.Command{
	Use:   "flows [kind]",
	Short: "Show the conversation flows",
	Long: `Prints the flow definitions as Mermaid diagrams (graph TD), or as JSON
with --json. Use --flows to check a custom definition file.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		table := loadFlowTable(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")

		defs := table.Definitions()
		if len(args) == 1 {
			def, ok := table.Get(domain.FlowKind(args[0]))
			if !ok {
				fail("Unknown flow %q", args[0])
			}
			defs = []*flow.Definition{def}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(defs); err != nil {
				fail("Error encoding flows: %v", err)
			}
			return
		}
		for i, def := range defs {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%%%% %s: %s\n", def.Kind, def.Title)
			fmt.Print(graph.GenerateMermaid(def, nil))
		}
	},
}

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.Flags().Bool("json", false, "Print the definitions as JSON")
}

// loadFlowTable compiles the configured flows without opening any store.
// Ownership checks are not needed to inspect a flow, so the stock validators
// are enough.
func loadFlowTable(cmd *cobra.Command) *flow.Table {
	cfg := loadConfig(cmd)
	registry := validate.Default(cfg.Policy, safety.NewRules())

	var (
		table *flow.Table
		err   error
	)
	if cfg.FlowsFile != "" {
		table, err = flow.LoadFile(cfg.FlowsFile, registry)
	} else {
		table, err = flow.Default(registry)
	}
	if err != nil {
		fail("Error loading flows: %v", err)
	}
	return table
}
