package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"sensorcode-go/services/config"
)

const listRow = "%-8s %-6s %-10s %-4s %-30s %s\n"

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the sensors a config would install",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			source := "profile " + opts.v.GetString("profile")
			if path := opts.v.GetString("config"); path != "" {
				source = path
			}
			return writeList(cmd.OutOrStdout(), source, cfg)
		},
	}
}

func writeList(out io.Writer, source string, cfg *config.Config) error {
	header := lipgloss.NewRenderer(out).NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	if _, err := fmt.Fprintln(out, header.Render("sensord sensors ("+source+")")); err != nil {
		return err
	}
	fmt.Fprintf(out, listRow, "NAME", "DRIVER", "POLL", "IRQ", "TYPES", "TRAITS")
	for _, sc := range cfg.Sensors {
		mask, err := sc.TypeMask()
		if err != nil {
			return err
		}
		poll := "on-demand"
		if sc.PollRateMs > 0 {
			poll = strconv.FormatUint(uint64(sc.PollRateMs), 10) + "ms"
		}
		irq := "-"
		if sc.IRQPin != nil {
			irq = strconv.Itoa(*sc.IRQPin)
		}
		fmt.Fprintf(out, listRow, sc.Name, sc.Driver, poll, irq, mask.String(), formatTraits(sc.Traits))
	}
	_, err := fmt.Fprintf(out, "%d sensors, notify pool %d, heartbeat %s\n",
		len(cfg.Sensors), cfg.Manager.NotifyPoolSize, cfg.Heartbeat.Interval)
	return err
}

// formatTraits renders e.g. "temperature watermark(18..26)" and
// "gyroscope every 4", joined by "; ".
func formatTraits(tcs []config.TraitConfig) string {
	if len(tcs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(tcs))
	for _, tc := range tcs {
		var b strings.Builder
		b.WriteString(tc.Type)
		if tc.HasThreshold() {
			fmt.Fprintf(&b, " %s(%s..%s)", tc.Algo, joinFloats(tc.Low), joinFloats(tc.High))
		}
		if tc.PollMultiple > 1 {
			fmt.Fprintf(&b, " every %d", tc.PollMultiple)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "; ")
}

func joinFloats(vs []float64) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(s, ",")
}
