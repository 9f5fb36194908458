package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/t1sbridge/internal/agent"
	"firestige.xyz/t1sbridge/internal/config"
	"firestige.xyz/t1sbridge/internal/log"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the receive path in foreground",
		Long: `Run the receive path in foreground.

The agent will:
  1. Load configuration and initialize logging
  2. Start the metrics server, network stack and inspection consumer
  3. Feed frames from the configured source through the transport
  4. Stop on SIGINT/SIGTERM or when the source is exhausted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(configFile)
		},
	}
}

func runAgent(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Init(&cfg.Log)

	a, err := agent.New(cfg, log.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	if err := a.Start(); err != nil {
		a.Stop()
		return fmt.Errorf("failed to start agent: %w", err)
	}

	// blocks until shutdown
	return a.Run()
}
