package main

import (
	"fmt"
	"os"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - keeps a viewing tab on your highest-priority live channel",
	Long: `Warden polls the live status of a prioritized channel list and, when
auto-switch is enabled, steers one managed browser tab toward the
highest-priority live channel. When none are live it falls back to a random
live channel in a configured category.

Run the daemon with 'warden run'; every other command talks to a running
daemon over its control API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Warden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "warden.yaml", "Path to the config file")
	rootCmd.PersistentFlags().String("addr", "", "Daemon control address (defaults to listenAddr from the config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(rerollCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(waitCmd)
}

// daemonAddr resolves --addr, falling back to the configured listen address
func daemonAddr(cmd *cobra.Command) (string, error) {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		return addr, nil
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return "", err
	}
	return cfg.ListenAddr, nil
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, err := daemonAddr(cmd)
	if err != nil {
		return nil, err
	}
	return client.NewClient(addr)
}
