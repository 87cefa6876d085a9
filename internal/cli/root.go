// Package cli implements the collabgrid command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/collabgrid/collabgrid/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"   ___     _ _       _     ___      _    _\n" +
		"  / __|___| | |__ _ | |__ / __|_ _ (_)__| |\n" +
		" | (__/ _ \\ | / _` || '_ \\ (_ | '_|| / _` |\n" +
		"  \\___\\___/_|_\\__,_||_.__/\\___|_|  |_\\__,_|\n"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "collabgrid",
	Short: "CollabGrid - multi-agent coordination experiments",
	Long:  color.CyanString(logo) + "\nSimulates teams of language-model agents jointly solving a spatial matching puzzle under four coordination architectures.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("collabgrid %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
}
