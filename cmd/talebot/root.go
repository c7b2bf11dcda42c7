package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/talebot"
	"github.com/aretw0/talebot/internal/cli"
	"github.com/aretw0/talebot/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "talebot",
	Short: "talebot writes personalised bedtime stories",
	Long: `talebot collects child profiles and story requests through short chat
conversations and writes a bedtime story with a chat model.

Configuration comes from TALEBOT_* environment variables (a .env file is
loaded first); flags override them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cli.RegisterConfigFlags(rootCmd.PersistentFlags())
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := cli.LoadConfig(cmd.Flags())
	if err != nil {
		fail("Error loading configuration: %v", err)
	}
	return cfg
}

// openApp loads the configuration and wires the application. Logs go to
// stderr so stdout stays free for replies and protocol traffic.
func openApp(ctx context.Context, cmd *cobra.Command, reg prometheus.Registerer) *talebot.App {
	cfg := loadConfig(cmd)
	logger, err := cli.NewLogger(cfg, os.Stderr)
	if err != nil {
		fail("Error configuring logger: %v", err)
	}

	opts := []talebot.Option{talebot.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, talebot.WithRegisterer(reg))
	}
	app, err := talebot.New(ctx, cfg, opts...)
	if err != nil {
		fail("Error initializing talebot: %v", err)
	}
	return app
}
