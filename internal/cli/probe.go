package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/oracle"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check connectivity to the configured oracle backends",
	Long:  "Probes the coordinator and every pool backend. The result is advisory; a disconnected backend never blocks a run.",
	Run:   runProbe,
}

func runProbe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	printHeader("Backend Connectivity")
	results := oracle.ProbeAll(context.Background(), cfg.Coordinator, cfg.Pool)
	connected := 0
	for _, res := range results {
		if res.Connected {
			connected++
			color.Green("  %-14s connected  latency=%s", res.Backend, res.Latency.Truncate(time.Millisecond))
			if res.Error != "" {
				color.Yellow("  %-14s warning: %s", "", res.Error)
			}
		} else {
			color.Red("  %-14s disconnected: %s", res.Backend, res.Error)
		}
	}
	fmt.Printf("\n%d/%d backends reachable\n", connected, len(results))
}
