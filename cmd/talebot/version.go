package main

import (
	"fmt"

	"github.com/aretw0/talebot"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of talebot",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("talebot version %s\n", talebot.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
