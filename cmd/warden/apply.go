package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply settings and a channel list from a file",
	Long: `Apply a warden configuration from a YAML file. A file may hold several
documents separated by ---.

Examples:
  # Settings document
  kind: Settings
  spec:
    autoSwitchEnabled: true
    fallbackCategory: Chess
    pollIntervalMs: 60000

  # Channels document, listed highest priority first
  kind: Channels
  spec:
    prune: true
    channels: [alpha, beta, gamma]

  warden apply -f warden-state.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is one document of an apply file
type Resource struct {
	Kind string         `yaml:"kind"`
	Spec map[string]any `yaml:"spec"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	resources, err := readResources(filename)
	if err != nil {
		return err
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, res := range resources {
		switch res.Kind {
		case "Settings":
			err = applySettings(c, res.Spec)
		case "Channels":
			err = applyChannels(c, res.Spec)
		default:
			err = fmt.Errorf("unsupported resource kind: %s", res.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readResources(filename string) ([]Resource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	var out []Resource
	dec := yaml.NewDecoder(f)
	for {
		var res Resource
		if err := dec.Decode(&res); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if res.Kind == "" {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func applySettings(c *client.Client, spec map[string]any) error {
	if len(spec) == 0 {
		return fmt.Errorf("settings spec is empty")
	}
	settings, err := c.UpdateSettings(spec)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	fmt.Printf("✓ Settings applied (auto-switch=%t, interval=%s)\n",
		settings.AutoSwitchEnabled, settings.PollInterval())
	return nil
}

// applyChannels converges the tracked list onto the listed order. Channels
// not listed are kept at the bottom unless prune is set.
func applyChannels(c *client.Client, spec map[string]any) error {
	want := getStrings(spec, "channels")
	prune := getBool(spec, "prune")

	current, err := c.ListChannels()
	if err != nil {
		return err
	}

	if prune {
		for _, ch := range current {
			if !containsFold(want, ch.Name) {
				if _, err := c.RemoveChannel(ch.Name); err != nil {
					return fmt.Errorf("failed to remove %s: %w", ch.Name, err)
				}
				fmt.Printf("✓ Removed %s\n", ch.Name)
			}
		}
	}

	for _, name := range want {
		if types.FindChannel(current, name) >= 0 {
			continue
		}
		if current, err = c.AddChannel(name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		fmt.Printf("✓ Tracking %s\n", name)
	}

	for i, name := range want {
		if _, err := c.MoveChannel(name, i+1); err != nil {
			return fmt.Errorf("failed to order %s: %w", name, err)
		}
	}
	fmt.Printf("✓ Channel order applied (%d channels)\n", len(want))
	return nil
}

// Helper functions
func getStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

func getBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func containsFold(list []string, name string) bool {
	for _, s := range list {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
