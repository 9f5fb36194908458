package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/t1sbridge/internal/config"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Long: `Validate a configuration file and print it as YAML with all defaults
and environment overrides applied.

Examples:
  t1sbridge config -c t1sbridge.yml
  T1S_CAPTURE_ENABLED=true t1sbridge config -c t1sbridge.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(configFile, cmd.OutOrStdout())
		},
	}
}

func runConfig(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	factory, err := plugin.GetSourceFactory(cfg.Source.Type)
	if err != nil {
		return fmt.Errorf("source: %w (available: %v)", err, plugin.SourceNames())
	}
	if err := factory().Init(cfg.Source.Options); err != nil {
		return fmt.Errorf("source %s: %w", cfg.Source.Type, err)
	}

	out, err := yaml.Marshal(map[string]*config.Config{"t1s": cfg})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
