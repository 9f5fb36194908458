// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	_ "firestige.xyz/t1sbridge/plugins"
)

// Build information, set with -ldflags "-X firestige.xyz/t1sbridge/cmd.Version=...".
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "t1sbridge",
		Short: "t1sbridge - 10BASE-T1S MAC-PHY receive path emulator",
		Long: `t1sbridge emulates the receive path of an OPEN Alliance 10BASE-T1S MAC-PHY.
Frames from a source are cut into transport slices, reassembled, and
dispatched to a local UDP stack and an inspection consumer that can dump,
capture to pcap, and mirror frames to Kafka.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
