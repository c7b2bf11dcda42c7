package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/talebot"
	"github.com/aretw0/talebot/internal/presentation/graph"
	"github.com/aretw0/talebot/pkg/persistence/middleware"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage in-progress conversations",
	Long:  `List, inspect, and remove the sessions held by the configured session store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all active sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store, done := openSessionStore(cmd)
		defer done()

		keys, err := store.List(cmd.Context())
		if err != nil {
			fail("Error listing sessions: %v", err)
		}
		if len(keys) == 0 {
			fmt.Println("No active sessions found.")
			return
		}
		fmt.Println("Active Sessions:")
		for _, k := range keys {
			fmt.Println("- " + k)
		}
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-key>",
	Short: "Inspect the state of a session",
	Long: `Prints a session as JSON. Child names and ages are masked unless
--reveal is given; --graph prints the flow with the session's position instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, done := openSessionStore(cmd)
		defer done()

		if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
			store = middleware.Chain(store, middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns))
		}

		session, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			fail("Error loading session '%s': %v", args[0], err)
		}

		if asGraph, _ := cmd.Flags().GetBool("graph"); asGraph {
			def, ok := loadFlowTable(cmd).Get(session.Flow)
			if !ok {
				fail("Session '%s' is in unknown flow %q", args[0], session.Flow)
			}
			fmt.Print(graph.GenerateMermaid(def, graph.OverlayFor(session)))
			return
		}

		data, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			fail("Error marshaling session: %v", err)
		}
		fmt.Println(string(data))
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-key>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, done := openSessionStore(cmd)
		defer done()

		hasError := false
		for _, key := range args {
			if err := store.Delete(cmd.Context(), key); err != nil {
				fmt.Printf("Error removing '%s': %v\n", key, err)
				hasError = true
			} else {
				fmt.Printf("Removed session '%s'\n", key)
			}
		}
		if hasError {
			fail("Some sessions could not be removed")
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionInspectCmd.Flags().Bool("reveal", false, "Show collected fields unmasked")
	sessionInspectCmd.Flags().Bool("graph", false, "Print the flow diagram with the session's position")
}

func openSessionStore(cmd *cobra.Command) (ports.SessionStore, func()) {
	cfg := loadConfig(cmd)
	store, closer, err := talebot.OpenSessionStore(cfg, nil)
	if err != nil {
		fail("Error opening session store: %v", err)
	}
	return store, func() {
		if closer != nil {
			closer.Close()
		}
	}
}
