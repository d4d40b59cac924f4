package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/health"
	"github.com/cuemby/warden/pkg/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Status()
		if err != nil {
			return err
		}
		surface, err := c.ManagedSurface()
		if err != nil {
			return err
		}
		printStatus(st, surface)
		return nil
	},
}

func printStatus(st *api.StatusResponse, surface *api.SurfaceResponse) {
	s := st.Summary

	autoSwitch := color.New(color.FgYellow).Sprint("disabled")
	if s.Enabled {
		autoSwitch = color.New(color.FgGreen).Sprint("enabled")
	}
	fmt.Printf("Auto-switch: %s  [%s]\n", autoSwitch, s.Badge)

	switch {
	case s.Live:
		fmt.Printf("Target:      %s\n", color.New(color.FgHiMagenta).Sprint(s.Target))
	case s.Fallback != "":
		fmt.Printf("Target:      none live, fallback %s\n", color.New(color.FgCyan).Sprint(s.Fallback))
	default:
		fmt.Printf("Target:      %s\n", color.New(color.FgYellow).Sprint("none live"))
	}
	fmt.Printf("Live:        %d tracked\n", s.LiveCount)

	if surface.Bound {
		fmt.Printf("Surface:     %s\n", surface.SurfaceID)
	} else {
		fmt.Printf("Surface:     %s\n", color.New(color.FgYellow).Sprint("(not bound)"))
	}

	sched := st.Scheduler
	state := color.New(color.FgGreen).Sprint(string(sched.State))
	if sched.Reason != "" {
		state = color.New(color.FgRed).Sprintf("%s (%s)", sched.State, sched.Reason)
	}
	fmt.Printf("Scheduler:   %s every %s\n", state, sched.Interval)
	if !sched.NextDue.IsZero() {
		fmt.Printf("Next poll:   %s\n", sched.NextDue.Local().Format(time.TimeOnly))
	}
	if !s.LastCycleAt.IsZero() {
		fmt.Printf("Last poll:   %s\n", s.LastCycleAt.Local().Format(time.TimeOnly))
	}
	if s.LastError != "" {
		fmt.Printf("Last error:  %s\n", color.New(color.FgRed).Sprint(s.LastError))
	}
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a poll cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ForcePoll()
		if err != nil {
			return err
		}
		if !resp.Accepted {
			fmt.Println("Poll skipped: a cycle ran too recently or is still running")
			return nil
		}
		fmt.Println("✓ Poll cycle complete")
		return nil
	},
}

var rerollCmd = &cobra.Command{
	Use:   "reroll",
	Short: "Pick a new fallback channel now",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.ForceReroll()
		if err != nil {
			return err
		}
		if !resp.Accepted {
			fmt.Println("No reroll: auto-switch is off, a tracked channel is live, or nothing is live in the category")
			return nil
		}
		fmt.Println("✓ Managed surface redirected to a new fallback channel")
		return nil
	},
}

// Channel commands
var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage tracked channels",
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked channels by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.ListChannels()
		if err != nil {
			return err
		}
		printChannels(list)
		return nil
	},
}

var channelsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Track a channel at the lowest priority",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.AddChannel(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Tracking %s\n", args[0])
		printChannels(list)
		return nil
	},
}

var channelsRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Stop tracking a channel",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.RemoveChannel(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Removed %s\n", args[0])
		printChannels(list)
		return nil
	},
}

var channelsMoveCmd = &cobra.Command{
	Use:   "move NAME PRIORITY",
	Short: "Move a channel to a priority (1 is highest)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("priority must be a number: %w", err)
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.MoveChannel(args[0], priority)
		if err != nil {
			return err
		}
		printChannels(list)
		return nil
	},
}

func init() {
	channelsCmd.AddCommand(channelsListCmd)
	channelsCmd.AddCommand(channelsAddCmd)
	channelsCmd.AddCommand(channelsRemoveCmd)
	channelsCmd.AddCommand(channelsMoveCmd)
}

func printChannels(list []types.ChannelEntry) {
	if len(list) == 0 {
		fmt.Println("No channels tracked")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tCHANNEL\tSTATUS\tCATEGORY\tTITLE")
	for _, ch := range list {
		state := color.New(color.FgHiBlack).Sprint("offline")
		category, title := "", ""
		if ch.IsLive {
			state = color.New(color.FgGreen).Sprint("live")
			if ch.LiveMetadata != nil {
				category = ch.LiveMetadata.CategoryName
				title = ch.LiveMetadata.Title
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", ch.Priority, ch.Name, state, category, title)
	}
	_ = w.Flush()
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show usage counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			if err := c.ResetAnalytics(); err != nil {
				return err
			}
			fmt.Println("✓ Analytics reset")
			return nil
		}

		a, err := c.Analytics()
		if err != nil {
			return err
		}
		fmt.Printf("Switches: %d\n", a.SwitchCount)
		if a.LastSwitch != nil {
			fmt.Printf("Last:     %s at %s\n", a.LastSwitch.Channel, a.LastSwitch.Timestamp.Local().Format(time.DateTime))
		}

		names := make([]string, 0, len(a.ViewingSecondsByChannel))
		for name := range a.ViewingSecondsByChannel {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return a.ViewingSecondsByChannel[names[i]] > a.ViewingSecondsByChannel[names[j]]
		})
		for _, name := range names {
			watched := time.Duration(a.ViewingSecondsByChannel[name] * float64(time.Second)).Round(time.Second)
			fmt.Printf("  %-25s %s\n", name, watched)
		}
		return nil
	},
}

func init() {
	analyticsCmd.Flags().Bool("reset", false, "Clear all usage counters")
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the daemon reports ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := daemonAddr(cmd)
		if err != nil {
			return err
		}
		if !strings.Contains(addr, "://") {
			addr = "http://" + addr
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		status, err := health.Wait(ctx, health.NewHTTPChecker(strings.TrimRight(addr, "/")+"/ready"), health.DefaultConfig())
		if err != nil {
			return fmt.Errorf("daemon not ready after %s (%d probes): %s", timeout, status.Attempts, status.LastResult.Message)
		}
		fmt.Println("✓ Daemon ready")
		return nil
	},
}

func init() {
	waitCmd.Flags().Duration("timeout", 30*time.Second, "How long to wait")
}
