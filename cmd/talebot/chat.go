package main

import (
	"os"

	"github.com/aretw0/talebot/internal/cli"
	"github.com/aretw0/talebot/internal/presentation/tui"
	"github.com/aretw0/talebot/pkg/console"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to talebot in the terminal",
	Long: `Starts an interactive chat. Send /profile to add a child, /story to get a
story and /help for every command.`,
	Run: func(cmd *cobra.Command, args []string) {
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		app := openApp(sc, cmd, nil)
		defer app.Close()

		opts := []console.Option{
			console.WithProfiles(app.Profiles),
			console.WithHistory(app.Stories),
			console.WithLogger(app.Logger()),
		}
		if key, _ := cmd.Flags().GetString("session"); key != "" {
			opts = append(opts, console.WithSessionKey(key))
		}

		plain, _ := cmd.Flags().GetBool("plain")
		if !plain && console.Interactive(os.Stdout) {
			tui.PrintBanner(os.Stdout)
			render, err := tui.NewRenderer(80)
			if err != nil {
				fail("Error creating renderer: %v", err)
			}
			opts = append(opts, console.WithRenderer(render))
		}

		if err := console.New(app, opts...).Run(sc); err != nil {
			fail("Chat error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "", "Session key to resume (defaults to a new one)")
	chatCmd.Flags().Bool("plain", false, "Print replies as plain markdown")
}
