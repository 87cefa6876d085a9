package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the experiment HTTP server",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) {
	printHeader("CollabGrid Server")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	srv := server.New(cfg)
	defer srv.Close()
	if err := srv.ListenAndServe(); err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}
